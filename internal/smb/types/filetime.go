package types

import "time"

// Windows FILETIME epoch: January 1, 1601 UTC
// Difference from Unix epoch (January 1, 1970) in 100-nanosecond intervals
const filetimeUnixDiff = 116444736000000000

// TimeToFiletime converts Go time.Time to Windows FILETIME.
// The zero time maps to 0, which SET_INFO interprets as "do not change".
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + filetimeUnixDiff
}

// FiletimeToTime converts Windows FILETIME to Go time.Time.
func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 || ft < filetimeUnixDiff {
		return time.Time{}
	}
	nsec := int64(ft-filetimeUnixDiff) * 100
	return time.Unix(0, nsec)
}
