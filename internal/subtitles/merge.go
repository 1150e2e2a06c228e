package subtitles

import "math"

// Merge concatenates documents in the given order and renumbers the result
// 1..N. Input indices are ignored since every part restarts at 1.
func Merge(parts ...Document) Document {
	total := 0
	for _, part := range parts {
		total += len(part.Blocks)
	}
	merged := make([]Block, 0, total)
	for _, part := range parts {
		for _, block := range part.Blocks {
			block.Index = len(merged) + 1
			merged = append(merged, block)
		}
	}
	return Document{Blocks: merged}
}

// Shift returns a copy of doc with every timestamp moved by offset seconds.
// Times that would become negative are clamped to zero.
func Shift(doc Document, offset float64) Document {
	out := make([]Block, len(doc.Blocks))
	for i, block := range doc.Blocks {
		block.Start = math.Max(block.Start+offset, 0)
		block.End = math.Max(block.End+offset, 0)
		out[i] = block
	}
	return Document{Blocks: out}
}

// Renumber returns a copy of doc with indices reassigned 1..N.
func Renumber(doc Document) Document {
	return Merge(doc)
}
