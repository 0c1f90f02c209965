package auth

import "time"

// ResetTokenDeadline computes the absolute expiry for a reset token issued
// now, from a duration pattern such as "10m".
func ResetTokenDeadline(pattern string) (time.Time, error) {
	window, err := time.ParseDuration(pattern)
	if err != nil {
		return time.Time{}, err
	}

	return time.Now().Add(window), nil
}
