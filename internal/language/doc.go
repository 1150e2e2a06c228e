// Package language normalizes language codes and describes the configured
// set of translation targets.
//
// Conversions between ISO 639-1, ISO 639-2, and BCP 47 tags go through
// golang.org/x/text so codes like zh-CN, deu, and ger all resolve.
package language
