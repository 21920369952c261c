package csvstream

import "strings"

// SplitFields splits one record on unquoted commas. Quotes are removed, an escaped ""
// inside a quoted field becomes a literal quote, and every field is trimmed of
// surrounding whitespace. An empty record yields a single empty field.
func SplitFields(record string) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(record); i++ {
		c := record[i]

		switch {
		case c == '"' && inQuotes && i+1 < len(record) && record[i+1] == '"':
			field.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}

	return append(fields, strings.TrimSpace(field.String()))
}
