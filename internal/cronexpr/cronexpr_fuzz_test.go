package cronexpr

import (
	"testing"
	"time"
)

// FuzzParse ensures the parser never panics and, when it does accept an
// expression, that NextFire never panics either.
func FuzzParse(f *testing.F) {
	f.Add("* * * * *")
	f.Add("*/15 * * * *")
	f.Add("0 0 1 1 0")
	f.Add("5-10/2 3,4,5 1-15 */2 1-5")
	f.Add("")

	f.Fuzz(func(t *testing.T, raw string) {
		e, err := Parse(raw)
		if err != nil {
			return
		}
		_ = e.NextFire(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	})
}
