package util

import "unicode/utf8"

// TruncationSuffix marks shared log messages that were cut to fit their
// fixed-width slot.
const TruncationSuffix = "... (truncated)"

// SafeTruncate returns text unchanged when its UTF-8 byte length fits in
// maxWidth. Otherwise it returns a byte-accurate prefix that never splits a
// multi-byte codepoint, followed by suffix, with the total kept within
// maxWidth bytes.
//
// When maxWidth is smaller than the suffix itself, the result is a prefix of
// the suffix. Downstream consumers depend on the exact byte counts this
// produces, so keep the behavior as is.
func SafeTruncate(text string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}
	if len(text) <= maxWidth {
		return text
	}
	if len(suffix) >= maxWidth {
		end := maxWidth
		if end > len(suffix) {
			end = len(suffix)
		}
		for end > 0 && end < len(suffix) && !utf8.RuneStart(suffix[end]) {
			end--
		}
		return suffix[:end]
	}
	end := maxWidth - len(suffix)
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[:end] + suffix
}
