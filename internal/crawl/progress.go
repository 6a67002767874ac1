package crawl

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"cdpcrawler/internal/domain"
)

// Progress is one sample of the crawl counters
type Progress struct {
	Elapsed       time.Duration               `json:"elapsed"`
	Discovered    int                         `json:"discovered"`
	Processed     int                         `json:"processed"`
	Queued        int                         `json:"queued"`
	Retrying      int                         `json:"retrying"`
	Counts        map[domain.DeviceStatus]int `json:"counts"`
	Active        []string                    `json:"active"`
	RatePerMinute float64                     `json:"rate_per_minute"`
}

// Reporter periodically logs crawl progress. It only reads the state store.
type Reporter struct {
	state    *State
	interval time.Duration
	start    time.Time
	events   Publisher
	logger   zerolog.Logger
}

// NewReporter creates a reporter timed from now
func NewReporter(state *State, interval time.Duration, events Publisher, logger zerolog.Logger) *Reporter {
	if events == nil {
		events = nopPublisher{}
	}
	return &Reporter{
		state:    state,
		interval: interval,
		start:    time.Now(),
		events:   events,
		logger:   logger,
	}
}

// Sample reads the current counters
func (r *Reporter) Sample() Progress {
	st := r.state.Stats()
	elapsed := time.Since(r.start)

	p := Progress{
		Elapsed:    elapsed,
		Discovered: st.Total,
		Processed:  st.Processed(),
		Queued:     st.Queued,
		Retrying:   st.Retrying,
		Counts:     st.Counts,
		Active:     st.Active,
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		p.RatePerMinute = float64(p.Processed) / minutes
	}
	return p
}

// Run reports every interval until ctx is done
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs and publishes one sample
func (r *Reporter) Report() Progress {
	p := r.Sample()

	r.logger.Info().
		Str("running", p.Elapsed.Truncate(time.Second).String()).
		Int("discovered", p.Discovered).
		Int("processed", p.Processed).
		Str("rate", formatRate(p.RatePerMinute)).
		Int("active", len(p.Active)).
		Int("queued", p.Queued).
		Int("retrying", p.Retrying).
		Strs("processing", p.Active).
		Msg("Crawl progress")

	r.events.Publish(domain.Event{
		Type:    domain.EventProgress,
		RunID:   r.state.RunID(),
		Time:    time.Now(),
		Payload: p,
	})
	return p
}

func formatRate(perMinute float64) string {
	return strconv.FormatFloat(perMinute, 'f', 1, 64) + "/min"
}
