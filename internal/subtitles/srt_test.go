package subtitles

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{3661.2345, "01:01:01,234"},
		{59.9999, "00:00:59,999"},
		{1.001, "00:00:01,001"},
		{0.9999999995, "00:00:01,000"},
		{0.5, "00:00:00,500"},
		{-4, "00:00:00,000"},
		{36000, "10:00:00,000"},
		{360000.25, "100:00:00,250"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"00:00:01,500", 1.5, false},
		{"01:01:01,234", 3661.234, false},
		{"00:00:01.5", 1.5, false},
		{" 00:02:00,000 ", 120, false},
		{"00:61:00,000", 0, true},
		{"00:00:01", 0, true},
		{"aa:00:01,000", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
		}
	}
}

func TestRenderRenumbersAndFormats(t *testing.T) {
	doc := Document{Blocks: []Block{
		{Index: 7, Start: 0, End: 1.5, Text: "Hello"},
		{Index: 3, Start: 2, End: 3.25, Text: "multi\nline  text"},
	}}
	want := "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n" +
		"2\n00:00:02,000 --> 00:00:03,250\nmulti line text\n\n"
	if got := Render(doc); got != want {
		t.Fatalf("Render mismatch:\n%q\nwant\n%q", got, want)
	}
	if got := Render(Document{}); got != "" {
		t.Fatalf("expected empty render, got %q", got)
	}
}

func TestRenderPreservingIndices(t *testing.T) {
	doc := Document{Blocks: []Block{{Index: 4, Start: 1, End: 2, Text: "x"}}}
	if got := RenderPreservingIndices(doc); !strings.HasPrefix(got, "4\n") {
		t.Fatalf("expected stored index, got %q", got)
	}
}

func TestParseRenderRoundTrip(t *testing.T) {
	doc := Document{Blocks: []Block{
		{Index: 1, Start: 0, End: 1.2, Text: "First line"},
		{Index: 2, Start: 1.2, End: 4.005, Text: "Second, with punctuation!"},
		{Index: 3, Start: 3725.5, End: 3730, Text: "Третий"},
	}}
	got := Parse(Render(doc))
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch:\n%#v\nwant\n%#v", got, doc)
	}
}

func TestParseDropsMalformedBlocks(t *testing.T) {
	input := strings.Join([]string{
		"1",
		"00:00:00,000 --> 00:00:01,000",
		"keep one",
		"",
		"2",
		"00:00:01,000 --> 00:00:02,000",
		"",
		"3",
		"00:00:02,000 --> 00:00:03,000",
		"keep three",
		"",
		"4",
		"00:00:03,000 --> 00:00:04,000",
		"too",
		"many lines",
		"",
		"x",
		"00:00:04,000 --> 00:00:05,000",
		"bad index",
		"",
		"6",
		"not a timestamp",
		"bad time",
		"",
		"7",
		"00:00:06,000 --> 00:00:07,000",
		"keep seven",
	}, "\r\n")

	doc := Parse("\ufeff" + input)
	if doc.Len() != 3 {
		t.Fatalf("expected 3 blocks, got %d: %#v", doc.Len(), doc.Blocks)
	}
	wantText := []string{"keep one", "keep three", "keep seven"}
	wantIndex := []int{1, 3, 7}
	for i, block := range doc.Blocks {
		if block.Text != wantText[i] || block.Index != wantIndex[i] {
			t.Fatalf("block %d = %#v", i, block)
		}
	}
}

func TestParseOneMalformedAmongMany(t *testing.T) {
	doc := Document{}
	for i := 0; i < 5; i++ {
		doc.Blocks = append(doc.Blocks, Block{Index: i + 1, Start: float64(i), End: float64(i) + 0.5, Text: "line"})
	}
	rendered := Render(doc)
	// drop the text line of the third block
	rendered = strings.Replace(rendered, "00:00:02,000 --> 00:00:02,500\nline\n", "00:00:02,000 --> 00:00:02,500\n", 1)
	if got := Parse(rendered).Len(); got != 4 {
		t.Fatalf("expected 4 blocks, got %d", got)
	}
}

func TestParseKeepsBlocksAfterVeryLongLine(t *testing.T) {
	long := strings.Repeat("x", 1100*1024)
	doc := Document{Blocks: []Block{
		{Index: 1, Start: 0, End: 1, Text: "first"},
		{Index: 2, Start: 1, End: 2, Text: long},
		{Index: 3, Start: 2, End: 3, Text: "third"},
		{Index: 4, Start: 3, End: 4, Text: "fourth"},
	}}
	parsed := Parse(Render(doc))
	if parsed.Len() != 4 {
		t.Fatalf("expected 4 blocks, got %d", parsed.Len())
	}
	if len(parsed.Blocks[1].Text) != len(long) {
		t.Fatalf("long text truncated to %d bytes", len(parsed.Blocks[1].Text))
	}
	if parsed.Blocks[2].Text != "third" || parsed.Blocks[3].Text != "fourth" {
		t.Fatalf("unexpected trailing blocks: %#v", parsed.Blocks[2:])
	}
}

func TestParseDropsOnlyMalformedLongBlock(t *testing.T) {
	long := strings.Repeat("y", 1100*1024)
	content := "1\n00:00:00,000 --> 00:00:01,000\nfirst\n\n" +
		"2\n00:00:01,000 --> 00:00:02,000\n" + long + "\nextra line\n\n" +
		"3\n00:00:02,000 --> 00:00:03,000\nthird\n\n" +
		"4\n00:00:03,000 --> 00:00:04,000\nfourth\n\n"
	parsed := Parse(content)
	got := make([]int, 0, parsed.Len())
	for _, block := range parsed.Blocks {
		got = append(got, block.Index)
	}
	if !reflect.DeepEqual(got, []int{1, 3, 4}) {
		t.Fatalf("indices = %v, want [1 3 4]", got)
	}
}

func TestFromSegments(t *testing.T) {
	doc := FromSegments([]Segment{
		{Start: 0, End: 1, Text: "  hello  "},
		{Start: 1, End: 1, Text: "zero length"},
		{Start: 2, End: 3, Text: "   "},
		{Start: 3, End: 4.5, Text: "world\n again"},
	})
	want := Document{Blocks: []Block{
		{Index: 1, Start: 0, End: 1, Text: "hello"},
		{Index: 2, Start: 3, End: 4.5, Text: "world again"},
	}}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("FromSegments = %#v, want %#v", doc, want)
	}
	if doc.LastEnd() != 4.5 {
		t.Fatalf("unexpected LastEnd %v", doc.LastEnd())
	}
}

func TestWriteAndReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.srt")
	doc := Document{Blocks: []Block{{Index: 1, Start: 0, End: 2, Text: "saved"}}}
	if err := WriteFile(path, doc); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("read back %#v", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, found %d entries", len(entries))
	}
	if _, err := ReadFile(filepath.Join(dir, "missing.srt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
