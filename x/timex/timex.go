package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Clock yields Unix milliseconds. Tests substitute a manual clock.
type Clock func() int64

// AgeMs returns now-ts, or -1 when ts is zero (never set).
func AgeMs(now, ts int64) int64 {
	if ts == 0 {
		return -1
	}
	if ts > now {
		return 0
	}
	return now - ts
}

// Ms converts a millisecond count from config into a Duration.
// Non-positive values yield def.
func Ms(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
