package domain

import "time"

// PastWorkdayStart returns midnight at the start of the day the given number
// of working days before now. A working day is any day that is not Saturday
// or Sunday; no holiday calendar is consulted. With workdays=2 on a Monday
// the result is the preceding Thursday's midnight.
func PastWorkdayStart(now time.Time, workdays int) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for remaining := workdays; remaining > 0; {
		day = day.AddDate(0, 0, -1)
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return day
}
