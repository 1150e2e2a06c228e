package subtitles

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Segment is one timed span of recognized speech, in seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Block is a single SRT cue.
type Block struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Document is an ordered list of cues in playback order.
type Document struct {
	Blocks []Block
}

// Len returns the number of blocks.
func (d Document) Len() int { return len(d.Blocks) }

// LastEnd returns the largest end timestamp in the document.
func (d Document) LastEnd() float64 {
	var last float64
	for _, b := range d.Blocks {
		last = math.Max(last, b.End)
	}
	return last
}

// FromSegments builds a document from recognizer output. Segments with empty
// text or a non-positive duration are skipped. Indices start at 1.
func FromSegments(segments []Segment) Document {
	blocks := make([]Block, 0, len(segments))
	for _, seg := range segments {
		text := singleLine(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		blocks = append(blocks, Block{
			Index: len(blocks) + 1,
			Start: math.Max(seg.Start, 0),
			End:   seg.End,
			Text:  text,
		})
	}
	return Document{Blocks: blocks}
}

// Render writes the document as SRT, numbering blocks 1..N regardless of
// their stored indices.
func Render(doc Document) string {
	return render(doc, false)
}

// RenderPreservingIndices writes the document as SRT using each block's stored
// index. Used when a pass must not disturb numbering.
func RenderPreservingIndices(doc Document) string {
	return render(doc, true)
}

func render(doc Document, keepIndex bool) string {
	var b strings.Builder
	b.Grow(len(doc.Blocks) * 64)
	for i, block := range doc.Blocks {
		index := i + 1
		if keepIndex {
			index = block.Index
		}
		b.WriteString(strconv.Itoa(index))
		b.WriteByte('\n')
		b.WriteString(FormatTimestamp(block.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(block.End))
		b.WriteByte('\n')
		b.WriteString(singleLine(block.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Parse reads SRT text. A block is kept only when it has exactly three
// non-blank lines: an integer index, a valid "start --> end" line, and the
// text. Anything else is skipped.
func Parse(content string) Document {
	content = strings.TrimPrefix(content, "\ufeff")
	var (
		blocks []Block
		group  []string
	)
	flush := func() {
		if block, ok := parseGroup(group); ok {
			blocks = append(blocks, block)
		}
		group = group[:0]
	}
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flush()
			continue
		}
		group = append(group, line)
	}
	flush()
	return Document{Blocks: blocks}
}

func parseGroup(lines []string) (Block, bool) {
	if len(lines) != 3 {
		return Block{}, false
	}
	index, err := strconv.Atoi(lines[0])
	if err != nil || index <= 0 {
		return Block{}, false
	}
	start, end, err := parseTimeRange(lines[1])
	if err != nil {
		return Block{}, false
	}
	return Block{Index: index, Start: start, End: end, Text: lines[2]}, true
}

func parseTimeRange(line string) (float64, float64, error) {
	left, right, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("missing arrow in %q", line)
	}
	start, err := ParseTimestamp(left)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(right)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm, truncating to whole
// milliseconds. Negative input renders as zero.
func FormatTimestamp(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "00:00:00,000"
	}
	// Not a strict floor: the epsilon absorbs float representation error
	// (1.001*1000 = 1000.9999...), so values within 1e-9s below a millisecond
	// boundary round up to it.
	total := int64(math.Floor(seconds*1000 + 1e-6))
	ms := total % 1000
	s := (total / 1000) % 60
	m := (total / 60000) % 60
	h := total / 3600000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp parses HH:MM:SS,mmm (a period is accepted in place of the
// comma) into seconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	clock, fraction, ok := strings.Cut(strings.ReplaceAll(value, ".", ","), ",")
	if !ok || fraction == "" || len(fraction) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	secs, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(fraction)
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || secs < 0 || secs > 59 || millis < 0 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	for i := len(fraction); i < 3; i++ {
		millis *= 10
	}
	totalMillis := int64(hours)*3600000 + int64(minutes)*60000 + int64(secs)*1000 + int64(millis)
	return float64(totalMillis) / 1000, nil
}

// ReadFile parses the SRT file at path.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read srt: %w", err)
	}
	return Parse(string(data)), nil
}

// WriteFile renders doc to path through a temporary file in the same
// directory so readers never observe a partial document.
func WriteFile(path string, doc Document) error {
	return writeAtomic(path, []byte(Render(doc)))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".srt-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp srt: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write srt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close srt: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod srt: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename srt: %w", err)
	}
	return nil
}

func singleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
