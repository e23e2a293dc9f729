package domain

import "time"

// FeedbackRecord is one executed step remembered for retrieval. Rating is
// 0 (unrated) or clamped to [1,5] when set by the user.
type FeedbackRecord struct {
	Timestamp  time.Time
	Query      string
	Capability string
	Tool       string
	Command    string
	Result     string
	Rating     int
	Success    bool
}

// AuditEntry is one append-only audit row.
type AuditEntry struct {
	Timestamp  time.Time
	Capability string
	Task       string
	Result     string
	Status     string
}
