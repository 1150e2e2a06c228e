package language

import (
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ISO 639-2/B codes that the BCP 47 parser does not accept.
var bibliographic = map[string]string{
	"alb": "sq",
	"arm": "hy",
	"baq": "eu",
	"chi": "zh",
	"cze": "cs",
	"dut": "nl",
	"fre": "fr",
	"geo": "ka",
	"ger": "de",
	"gre": "el",
	"ice": "is",
	"mac": "mk",
	"may": "ms",
	"per": "fa",
	"rum": "ro",
	"slo": "sk",
	"wel": "cy",
}

// Parse resolves a language code (ISO 639-1, ISO 639-2/T or /B, or a BCP 47
// tag such as zh-CN) to a tag. The boolean is false for unknown or empty input.
func Parse(code string) (xlang.Tag, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return xlang.Und, false
	}
	if alias, ok := bibliographic[strings.ToLower(code)]; ok {
		code = alias
	}
	tag, err := xlang.Parse(code)
	if err != nil || tag == xlang.Und {
		return xlang.Und, false
	}
	return tag, true
}

// ToISO2 converts a recognized code to ISO 639-1. Unknown 2-letter codes pass
// through lowercased; anything else unknown returns "".
func ToISO2(code string) string {
	tag, ok := Parse(code)
	if !ok {
		code = strings.ToLower(strings.TrimSpace(code))
		if len(code) == 2 {
			return code
		}
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// ToISO3 converts a recognized code to ISO 639-2. Unknown 3-letter codes pass
// through; other unknown input maps to "und".
func ToISO3(code string) string {
	tag, ok := Parse(code)
	if !ok {
		code = strings.ToLower(strings.TrimSpace(code))
		if len(code) == 3 {
			return code
		}
		return "und"
	}
	base, _ := tag.Base()
	return base.ISO3()
}

// DisplayName returns the English name for code, "Unknown" for empty input,
// or the uppercased code when it is not recognized.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	tag, ok := Parse(code)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// NativeName returns the language's name in itself (Deutsch, 日本語), or ""
// when unknown.
func NativeName(code string) string {
	tag, ok := Parse(code)
	if !ok {
		return ""
	}
	return display.Self.Name(tag)
}

// Option describes one supported translation target.
type Option struct {
	Code       string
	Name       string
	NativeName string
}

// Supported is the configured set of translation targets. Lookups are
// case-insensitive and return the configured spelling.
type Supported struct {
	codes  []string
	byFold map[string]string
}

// NewSupported builds a set from configured codes, skipping blanks and duplicates.
func NewSupported(codes []string) *Supported {
	s := &Supported{byFold: make(map[string]string, len(codes))}
	for _, code := range codes {
		code = strings.TrimSpace(code)
		key := strings.ToLower(code)
		if code == "" {
			continue
		}
		if _, dup := s.byFold[key]; dup {
			continue
		}
		s.byFold[key] = code
		s.codes = append(s.codes, code)
	}
	return s
}

// Resolve returns the configured spelling of code if it is supported.
func (s *Supported) Resolve(code string) (string, bool) {
	if s == nil {
		return "", false
	}
	canonical, ok := s.byFold[strings.ToLower(strings.TrimSpace(code))]
	return canonical, ok
}

// Codes returns the configured codes in configuration order.
func (s *Supported) Codes() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.codes...)
}

// Options describes every supported code with display names.
func (s *Supported) Options() []Option {
	if s == nil {
		return nil
	}
	out := make([]Option, 0, len(s.codes))
	for _, code := range s.codes {
		out = append(out, Option{Code: code, Name: DisplayName(code), NativeName: NativeName(code)})
	}
	return out
}
