package usecase

import "time"

// NormalizeRetryIntervals shapes a configured backoff schedule to exactly
// maxRetries entries so callers can index it by retry ordinal without bounds
// checks. Short schedules repeat their last interval; long ones are cut.
//
//	NormalizeRetryIntervals(3, [15s])          -> [15s 15s 15s]
//	NormalizeRetryIntervals(2, [10s 20s 30s])  -> [10s 20s]
func NormalizeRetryIntervals(maxRetries int, intervals []time.Duration) []time.Duration {
	if maxRetries <= 0 {
		return nil
	}
	if len(intervals) == 0 {
		intervals = []time.Duration{30 * time.Second}
	}
	out := make([]time.Duration, maxRetries)
	for i := 0; i < maxRetries; i++ {
		if i < len(intervals) {
			out[i] = intervals[i]
		} else {
			out[i] = intervals[len(intervals)-1]
		}
	}
	return out
}

// DelayForAttempt returns the backoff before the next try after the given
// attempt number (1-based, counting the try that just failed). Attempts past
// the end of the schedule reuse its last interval.
func DelayForAttempt(attempt int, intervals []time.Duration) time.Duration {
	if len(intervals) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(intervals) {
		idx = len(intervals) - 1
	}
	return intervals[idx]
}
