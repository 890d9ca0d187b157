package service

import "time"

// DefaultDuration is used for missing or unrecognized durations.
const DefaultDuration = "15m"

var durations = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
}

// parseDuration maps a duration label to its lifetime. Unknown labels fall
// back to DefaultDuration.
func parseDuration(label string) (string, time.Duration) {
	if d, ok := durations[label]; ok {
		return label, d
	}
	return DefaultDuration, durations[DefaultDuration]
}
