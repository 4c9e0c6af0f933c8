// Package sessions holds per-chat conversation state.
//
// Chat IDs follow the WhatsApp bridge format:
//
//	Direct: {number}@c.us
//	Group:  {id}@g.us
//
// Examples:
//
//	34600111222@c.us
//	120363041234567890@g.us
package sessions

import (
	"strings"
	"unicode"
)

const (
	directSuffix = "@c.us"
	groupSuffix  = "@g.us"
)

// ChatID normalizes operator input into a chat ID. A bare phone number
// (digits, optionally with a leading "+" and spaces) becomes {number}@c.us;
// anything containing "@" is returned as is.
func ChatID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "@") {
		return s
	}
	digits := strings.Map(func(r rune) rune {
		if r == '+' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return digits + directSuffix
}

// IsGroup reports whether chatID names a group conversation.
func IsGroup(chatID string) bool {
	return strings.HasSuffix(chatID, groupSuffix)
}

// Number returns the phone-number part of a direct chat ID.
func Number(chatID string) string {
	number, _, _ := strings.Cut(chatID, "@")
	return number
}
