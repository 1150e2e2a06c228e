// Package split cuts oversized videos into contiguous, equal-duration parts
// so each part can be transcribed independently.
//
// The part count is ceil(size_mb / threshold_mb). Each cut is a separate,
// time-bounded ffmpeg stream copy. Parts are written to a caller-owned
// directory and marked Temporary; Cleanup removes them.
package split
