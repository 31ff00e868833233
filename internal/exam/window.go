package exam

import "time"

// CheckWindow reports whether now falls inside [start, end]. Comparisons are in UTC.
func CheckWindow(now, start, end time.Time) error {
	now = now.UTC()
	if now.Before(start.UTC()) {
		return ErrExamNotYetOpen
	}
	if now.After(end.UTC()) {
		return ErrExamEnded
	}
	return nil
}
