package protocol

import (
	"strings"
)

// FieldSeparator splits the fields of a frame. Separators inside field values
// are escaped, so any text survives a round trip.
const FieldSeparator = '|'

// FormatPacket renders a frame: every field is escaped and joined with the
// separator, and the frame is terminated with a newline.
func FormatPacket(pktType string, fields ...string) string {
	var b strings.Builder
	b.WriteString(Escape(pktType))
	for _, field := range fields {
		b.WriteRune(FieldSeparator)
		b.WriteString(Escape(field))
	}
	b.WriteByte('\n')
	return b.String()
}

// SplitFields splits a frame on unescaped separators and unescapes each
// field. A trailing CR/LF is ignored.
func SplitFields(line string) []string {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	raw := splitUnescaped(line, FieldSeparator)
	fields := make([]string, len(raw))
	for i, part := range raw {
		fields[i] = unescape(part)
	}
	return fields
}

// splitUnescaped splits s on delimiter, skipping escaped delimiters. Escape
// sequences are kept so that unescape can decode each part.
func splitUnescaped(s string, delimiter rune) []string {
	var parts []string
	var current strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			current.WriteRune(r)
			escape = false
			continue
		}

		if r == '\\' {
			escape = true
			current.WriteRune(r)
			continue
		}

		if r == delimiter {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}

		current.WriteRune(r)
	}

	parts = append(parts, current.String())
	return parts
}

func unescape(s string) string {
	var result strings.Builder
	escape := false

	for _, r := range s {
		if escape {
			switch r {
			case '|':
				result.WriteRune('|')
			case ',':
				result.WriteRune(',')
			case '\\':
				result.WriteRune('\\')
			case 'n':
				result.WriteRune('\n')
			case 'r':
				result.WriteRune('\r')
			default:
				// unknown sequences are kept verbatim
				result.WriteRune('\\')
				result.WriteRune(r)
			}
			escape = false
			continue
		}

		if r == '\\' {
			escape = true
			continue
		}

		result.WriteRune(r)
	}

	// dangling backslash at the end of the field
	if escape {
		result.WriteRune('\\')
	}

	return result.String()
}

// Escape encodes the characters that carry meaning in a frame.
func Escape(s string) string {
	var result strings.Builder

	for _, r := range s {
		switch r {
		case '|':
			result.WriteString("\\|")
		case ',':
			result.WriteString("\\,")
		case '\\':
			result.WriteString("\\\\")
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}
