package crawl

import (
	"time"

	"cdpcrawler/internal/domain"
)

// FailedDevice is a device the crawl gave up on
type FailedDevice struct {
	Key       string `json:"key"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

// Summary is the terminal report of a crawl run
type Summary struct {
	RunID      string         `json:"run_id"`
	Seed       string         `json:"seed"`
	Elapsed    time.Duration  `json:"elapsed"`
	Total      int            `json:"total"`
	Done       int            `json:"done"`
	Failed     int            `json:"failed"`  // terminal failures
	Pending    int            `json:"pending"` // left for a resumed run
	Stopped    bool           `json:"stopped"`
	FailedKeys []FailedDevice `json:"failed_devices,omitempty"`
}

// Complete reports whether every known device was reached
func (s *Summary) Complete() bool {
	return s.Failed == 0 && s.Pending == 0
}

// summarize builds the report and closes out run
func (e *Engine) summarize(run *domain.CrawlRun) *Summary {
	now := time.Now()
	summary := &Summary{
		RunID:   run.ID,
		Seed:    run.Seed,
		Elapsed: now.Sub(run.StartedAt),
		Stopped: e.state.Draining(),
	}

	for _, rec := range e.state.Snapshot() {
		summary.Total++
		switch {
		case rec.Status == domain.DeviceStatusDone:
			summary.Done++
		case e.state.Terminal(rec):
			summary.Failed++
			summary.FailedKeys = append(summary.FailedKeys, FailedDevice{
				Key:       rec.Key,
				Attempts:  rec.Attempts,
				LastError: rec.LastError,
			})
		default:
			summary.Pending++
		}
	}

	run.FinishedAt = &now
	run.Done = summary.Done
	run.Failed = summary.Failed
	run.Stopped = summary.Stopped
	return summary
}
