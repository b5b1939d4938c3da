package memory

import "time"

// utcDate formats a unix timestamp in seconds as YYYY-MM-DD in UTC.
func utcDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
