package domain

import "time"

// CycleStats summarises one poll -> parse -> persist cycle
type CycleStats struct {
	CycleID       string
	StartTime     time.Time
	EndTime       time.Time
	BytesRead     int
	LinesRead     int
	RecordsParsed int
	Truncated     bool

	// Per collection outcome
	Persisted map[string]int
	Failed    map[string]int
	Dropped   int // unknown category or not allow-listed
}

// Duration returns the wall time of the cycle
func (s *CycleStats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
