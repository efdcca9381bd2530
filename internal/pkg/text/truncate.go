// Package text holds small string helpers shared by gateway logging.
package text

// Truncate caps s at max bytes, appending "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// TruncateBytes is Truncate for raw response bodies.
func TruncateBytes(raw []byte, max int) string {
	return Truncate(string(raw), max)
}
