// Package id provides unique identifier generation for jobs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: job-<timestamp>-<random>
// Example: job-1701432000-a1b2c3d4
func Generate() string {
	timestamp := time.Now().Unix()
	u, err := uuid.NewRandom()
	if err != nil {
		// the random source failed; the clock still keeps IDs apart
		return fmt.Sprintf("job-%d-%08x", timestamp, uint32(time.Now().UnixNano()))
	}
	return fmt.Sprintf("job-%d-%s", timestamp, u.String()[:8])
}

// Valid reports whether s has the shape produced by Generate.
func Valid(s string) bool {
	var ts int64
	var suffix string
	n, err := fmt.Sscanf(s, "job-%d-%s", &ts, &suffix)
	if err != nil || n != 2 || len(suffix) != 8 || s != fmt.Sprintf("job-%d-%s", ts, suffix) {
		return false
	}
	for _, c := range suffix {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
