package pathminter

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const prefix = "optimized"

// Mint returns a fresh destination key of the form
// "optimized/<yyyy-MM-dd-HH-mm-ss-SSS>_<offset>_<uuid>.<format>".
// The timestamp is local wall clock; the offset is the local UTC offset with
// the minutes omitted for whole hours.
func Mint(format string) string {
	return mintAt(time.Now(), format)
}

func mintAt(now time.Time, format string) string {
	ts := fmt.Sprintf("%s-%03d", now.Format("2006-01-02-15-04-05"), now.Nanosecond()/int(time.Millisecond))
	return fmt.Sprintf("%s/%s_%s_%s.%s", prefix, ts, utcOffset(now), uuid.NewString(), format)
}

func utcOffset(t time.Time) string {
	_, secs := t.Zone()
	sign := "+"
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	if minutes == 0 {
		return fmt.Sprintf("%s%d", sign, hours)
	}
	return fmt.Sprintf("%s%d:%02d", sign, hours, minutes)
}
