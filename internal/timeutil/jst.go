package timeutil

import "time"

// JST is the fixed display timezone for all bucketing and labels.
// UTC+9 with no daylight saving, so a fixed-offset zone is exact.
var JST = time.FixedZone("JST", 9*60*60)

// ToJST shifts an instant into Japan Standard Time. The absolute time is
// unchanged; only the civil representation moves.
func ToJST(t time.Time) time.Time {
	return t.In(JST)
}

// NowJST returns the current time in Japan Standard Time.
func NowJST() time.Time {
	return time.Now().In(JST)
}

// FormatJST formats an instant using its JST representation.
func FormatJST(t time.Time, layout string) string {
	return t.In(JST).Format(layout)
}
