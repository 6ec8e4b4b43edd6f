package domain

import (
	"os"
	"strconv"
	"time"
)

// SourceDateEpochEnv pins every timestamp written into layers and artifacts.
const SourceDateEpochEnv = "SOURCE_DATE_EPOCH"

// SourceDateEpoch returns the time named by SOURCE_DATE_EPOCH.
// ok is false when the variable is unset or not a non-negative integer.
func SourceDateEpoch() (t time.Time, ok bool) {
	raw := os.Getenv(SourceDateEpochEnv)
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
