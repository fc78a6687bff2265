package scoring

import "time"

const (
	DefaultMaxAgeHours = 48.0
	// UnknownRecency is used when the feed did not carry a publish date.
	UnknownRecency = 0.5
)

// RecencyScore decays linearly from 1 at publish time to 0 at maxAgeHours.
// Future timestamps count as fresh to tolerate clock skew.
func RecencyScore(published *time.Time, now time.Time, maxAgeHours float64) float64 {
	if published == nil {
		return UnknownRecency
	}
	if maxAgeHours <= 0 {
		maxAgeHours = DefaultMaxAgeHours
	}
	age := now.Sub(*published).Hours()
	if age < 0 {
		return 1
	}
	return max(0, 1-age/maxAgeHours)
}
