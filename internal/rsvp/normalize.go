package rsvp

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"wedding-site/internal/models"
)

const (
	MinGuests        = 1
	MaxGuests        = 12
	MaxMessageLength = 320
)

// ParseGuestCount reads a party size the way a browser parseInt would and
// clamps it into [MinGuests, MaxGuests]. Anything unparsable counts as 1.
func ParseGuestCount(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return MinGuests
	}

	var n int
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return MinGuests
		}
		parsed, ok := leadingInt(s)
		if !ok {
			return MinGuests
		}
		n = parsed
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) {
			return MinGuests
		}
		n = clampFloat(math.Trunc(f))
	}
	return ClampGuestCount(n)
}

// ClampGuestCount bounds n to [MinGuests, MaxGuests].
func ClampGuestCount(n int) int {
	return min(max(n, MinGuests), MaxGuests)
}

func clampFloat(f float64) int {
	if f > MaxGuests {
		return MaxGuests
	}
	if f < MinGuests {
		return MinGuests
	}
	return int(f)
}

// leadingInt parses an optional sign and the digits that follow it,
// ignoring leading whitespace and any trailing text.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Too many digits for an int; the sign decides which bound wins.
		if s[0] == '-' {
			return MinGuests, true
		}
		return MaxGuests, true
	}
	return n, true
}

// NormalizeStatus keeps an exact allowed status and maps anything else,
// including other casings, to yes.
func NormalizeStatus(s string) models.RSVPStatus {
	status := models.RSVPStatus(s)
	if status.Valid() {
		return status
	}
	return models.RSVPYes
}

// TruncateMessage trims s and keeps at most MaxMessageLength characters.
func TruncateMessage(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > MaxMessageLength {
		return string(runes[:MaxMessageLength])
	}
	return s
}

// CombineGuestNames joins the submitter and the extra guests into the
// single display string stored on the response.
func CombineGuestNames(primary string, extras []string) string {
	names := make([]string, 0, len(extras)+1)
	for _, entry := range append([]string{primary}, extras...) {
		if name := strings.TrimSpace(entry); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// stringValue renders a loosely typed JSON scalar as text: strings as-is,
// numbers and booleans by their literal, anything else as "".
func stringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 'n', '[', '{':
		return ""
	default:
		return string(raw)
	}
}

func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringValue(item))
	}
	return out
}
