package booking

import "fmt"

const codePrefix = "RSV-"

// FormatCode renders a counter value as a reservation code, e.g. RSV-000042.
func FormatCode(seq int64) string {
	return fmt.Sprintf("%s%06d", codePrefix, seq)
}
