package domain

import "time"

// CrawlRun records one invocation of the crawler
type CrawlRun struct {
	ID         string     `json:"id"`
	Seed       string     `json:"seed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Done       int        `json:"done"`
	Failed     int        `json:"failed"`
	Stopped    bool       `json:"stopped"` // ended by a stop signal rather than an empty queue
}

// Finished reports whether the run reached its end
func (r *CrawlRun) Finished() bool {
	return r.FinishedAt != nil
}
