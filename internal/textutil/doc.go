// Package textutil provides file name sanitization helpers.
//
// SafeName and UniqueName produce collision-free, filesystem-safe names for
// uploaded and generated files; SanitizeToken produces short lowercase tokens
// such as language suffixes.
package textutil
