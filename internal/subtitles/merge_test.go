package subtitles

import "testing"

func blocks(n int, start float64) Document {
	doc := Document{}
	for i := 0; i < n; i++ {
		s := start + float64(i)
		doc.Blocks = append(doc.Blocks, Block{Index: i + 1, Start: s, End: s + 0.5, Text: "t"})
	}
	return doc
}

func TestMergeRenumbersContiguously(t *testing.T) {
	merged := Merge(blocks(5, 0), Document{}, blocks(4, 0), blocks(2, 10))
	if merged.Len() != 11 {
		t.Fatalf("expected 11 blocks, got %d", merged.Len())
	}
	for i, block := range merged.Blocks {
		if block.Index != i+1 {
			t.Fatalf("position %d has index %d", i, block.Index)
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a := blocks(2, 0)
	b := blocks(2, 0)
	Merge(a, b)
	if b.Blocks[0].Index != 1 {
		t.Fatalf("input document was mutated: %#v", b.Blocks[0])
	}
}

func TestShift(t *testing.T) {
	doc := blocks(2, 0)
	shifted := Shift(doc, 120)
	if shifted.Blocks[0].Start != 120 || shifted.Blocks[1].End != 121.5 {
		t.Fatalf("unexpected shift %#v", shifted.Blocks)
	}
	if doc.Blocks[0].Start != 0 {
		t.Fatal("Shift must not mutate its input")
	}
	back := Shift(doc, -0.75)
	if back.Blocks[0].Start != 0 || back.Blocks[0].End != 0 {
		t.Fatalf("expected clamp at zero, got %#v", back.Blocks[0])
	}
	if back.Blocks[1].Start != 0.25 {
		t.Fatalf("unexpected start %v", back.Blocks[1].Start)
	}
}

func TestRenumber(t *testing.T) {
	doc := Document{Blocks: []Block{{Index: 9, Start: 0, End: 1, Text: "a"}, {Index: 4, Start: 1, End: 2, Text: "b"}}}
	got := Renumber(doc)
	if got.Blocks[0].Index != 1 || got.Blocks[1].Index != 2 {
		t.Fatalf("unexpected renumber %#v", got.Blocks)
	}
}
