package core

// EndTimeReached reports whether now is strictly past endTime.
func EndTimeReached(now, endTime Timestamp) bool {
	return now > endTime
}
