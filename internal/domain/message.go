package domain

import "unicode/utf16"

// MessageLimit is the Bot API cap on the rendered text of one message, counted
// in UTF-16 code units.
const MessageLimit = 4096

// MessageLength returns the length of text as the Bot API counts it.
func MessageLength(text string) int {
	n := 0
	for _, r := range text {
		n += utf16.RuneLen(r)
	}
	return n
}
