package crawl

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/repository"
)

// ErrFinished is returned by Next once nothing is queued, running or
// waiting on a retry timer
var ErrFinished = errors.New("crawl finished")

// StateOption configures a State
type StateOption func(*State)

// WithRetryCeiling sets how many times a failing device is retried
func WithRetryCeiling(n int) StateOption {
	return func(s *State) {
		s.ceiling = n
	}
}

// WithRetryDelay sets the delay before a failed device is queued again
func WithRetryDelay(d time.Duration) StateOption {
	return func(s *State) {
		s.retryDelay = d
	}
}

// WithStateLogger sets the logger
func WithStateLogger(logger zerolog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

// WithPublisher sets where device lifecycle events go
func WithPublisher(p Publisher) StateOption {
	return func(s *State) {
		s.events = p
	}
}

// State is the crawl state store: the device map and the FIFO work queue
// behind one mutex, written through to a repository. Every check-and-insert
// happens under the lock, so a key leaves Discovered exactly once.
//
// A device is also found by its management address and by the hostname it
// reports about itself, so the same box reached first by IP and later by name
// stays one record.
//
// Repository writes run while the lock is held. Workers therefore serialize
// on store latency for state transitions; the network I/O of a device runs
// outside the lock.
type State struct {
	mu        sync.Mutex
	records   map[string]*domain.DeviceRecord
	byAddress map[string]string // management address -> key
	aliases   map[string]string // self-reported name -> key
	queue    []string
	inflight map[string]struct{}
	retries  map[string]*time.Timer
	changed  chan struct{} // closed and replaced on every transition
	nextSeq  int64
	draining bool
	runID    string

	ceiling    int
	retryDelay time.Duration
	repo       repository.Repository
	events     Publisher
	logger     zerolog.Logger
}

// NewState creates an empty state store persisting to repo
func NewState(repo repository.Repository, opts ...StateOption) *State {
	s := &State{
		records:   make(map[string]*domain.DeviceRecord),
		byAddress: make(map[string]string),
		aliases:   make(map[string]string),
		inflight:  make(map[string]struct{}),
		retries:   make(map[string]*time.Timer),
		changed:   make(chan struct{}),
		ceiling:   3,
		repo:      repo,
		events:    nopPublisher{},
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetRunID stamps records created from now on with id
func (s *State) SetRunID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = id
}

// RunID returns the current run ID
func (s *State) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Restore rebuilds the in-memory state from the repository. Done and
// terminally failed devices stay as they are; everything else is queued
// again in original discovery order. It returns the number requeued.
func (s *State) Restore(ctx context.Context) (int, error) {
	recs, err := s.repo.ListByStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load crawl state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var requeued []*domain.DeviceRecord
	for _, rec := range recs {
		s.records[rec.Key] = rec
		s.indexLocked(rec)
		if rec.Sequence >= s.nextSeq {
			s.nextSeq = rec.Sequence + 1
		}
		if s.terminalLocked(rec) {
			continue
		}
		rec.Status = domain.DeviceStatusQueued
		rec.UpdatedAt = time.Now()
		s.queue = append(s.queue, rec.Key)
		requeued = append(requeued, rec)
	}

	if len(requeued) > 0 {
		if err := s.repo.UpsertAll(ctx, requeued); err != nil {
			return 0, fmt.Errorf("failed to requeue restored devices: %w", err)
		}
	}

	s.broadcastLocked()
	return len(requeued), nil
}

// Seed queues the crawl's starting device. It returns false when the key is
// already known, as after Restore.
func (s *State) Seed(ctx context.Context, key, rawLabel, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if rec.ManagementAddress == "" && address != "" {
			rec.ManagementAddress = address
			s.indexLocked(rec)
			return false, s.persistLocked(ctx, rec)
		}
		return false, nil
	}

	return true, s.admitLocked(ctx, domain.NewDeviceRecord(key, rawLabel, address))
}

// Discover records a neighbor of from. An unknown device is created and
// queued in one step and true is returned. A device already known by key,
// by an alias or by its management address only has its empty attributes
// filled in.
func (s *State) Discover(ctx context.Context, from string, rec *domain.DeviceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.resolveLocked(rec); ok {
		if existing.Key != rec.Key {
			s.logger.Debug().Str("neighbor", rec.Key).Str("device", existing.Key).
				Str("address", rec.ManagementAddress).Msg("Neighbor matches a known device")
		}
		if existing.MergeAttributes(rec) {
			existing.UpdatedAt = time.Now()
			s.indexLocked(existing)
			return false, s.persistLocked(ctx, existing)
		}
		return false, nil
	}

	c := rec.Clone()
	c.DiscoveredFrom = from
	c.Status = domain.DeviceStatusDiscovered
	c.Attempts = 0
	c.LastError = ""
	return true, s.admitLocked(ctx, c)
}

// admitLocked moves a new record from Discovered to Queued
func (s *State) admitLocked(ctx context.Context, rec *domain.DeviceRecord) error {
	now := time.Now()
	rec.Sequence = s.nextSeq
	s.nextSeq++
	rec.RunID = s.runID
	rec.DiscoveredAt = now
	s.records[rec.Key] = rec
	s.indexLocked(rec)

	s.publishLocked(domain.EventDeviceDiscovered, rec.Key, map[string]interface{}{
		"from":     rec.DiscoveredFrom,
		"platform": rec.Platform,
		"address":  rec.ManagementAddress,
	})

	rec.Status = domain.DeviceStatusQueued
	rec.UpdatedAt = now
	s.queue = append(s.queue, rec.Key)
	s.broadcastLocked()

	return s.persistLocked(ctx, rec)
}

// Next blocks until a device can be handed to a worker and marks it
// InProgress. It returns ErrFinished when the crawl has run out of work,
// domain.ErrStopped while draining, or the context's error.
func (s *State) Next(ctx context.Context) (*domain.DeviceRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.draining {
			s.mu.Unlock()
			return nil, domain.ErrStopped
		}

		if len(s.queue) > 0 {
			key := s.queue[0]
			s.queue[0] = ""
			s.queue = s.queue[1:]

			rec := s.records[key]
			rec.Status = domain.DeviceStatusInProgress
			rec.UpdatedAt = time.Now()
			s.inflight[key] = struct{}{}
			s.publishLocked(domain.EventDeviceStarted, key, nil)
			if err := s.persistLocked(ctx, rec); err != nil {
				// The in-memory record stays authoritative; the next
				// transition writes it again
				s.logger.Warn().Err(err).Str("device", key).Msg("Device handed out with stale stored status")
			}

			out := rec.Clone()
			s.mu.Unlock()
			return out, nil
		}

		if s.idleLocked() {
			s.mu.Unlock()
			return nil, ErrFinished
		}

		wait := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Complete marks an in-progress device Done and stores the attributes
// gathered while processing it
func (s *State) Complete(ctx context.Context, rec *domain.DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.Key]
	if !ok {
		return fmt.Errorf("complete %s: %w", rec.Key, domain.ErrNotFound)
	}

	applyAttributes(cur, rec)
	s.indexLocked(cur)
	now := time.Now()
	cur.Status = domain.DeviceStatusDone
	cur.LastError = ""
	cur.UpdatedAt = now
	cur.CompletedAt = &now
	delete(s.inflight, cur.Key)

	s.publishLocked(domain.EventDeviceDone, cur.Key, map[string]interface{}{
		"platform":    cur.Platform,
		"device_type": cur.DeviceType,
		"attempts":    cur.Attempts,
	})
	s.broadcastLocked()

	return s.persistLocked(ctx, cur)
}

// Fail records a failed attempt. Under the retry ceiling the device is
// queued again after the retry delay and true is returned; otherwise the
// failure is terminal.
func (s *State) Fail(ctx context.Context, key string, cause error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[key]
	if !ok {
		return false, fmt.Errorf("fail %s: %w", key, domain.ErrNotFound)
	}

	cur.Attempts++
	cur.LastError = cause.Error()
	cur.Status = domain.DeviceStatusFailed
	cur.UpdatedAt = time.Now()
	delete(s.inflight, key)

	retrying := cur.Attempts <= s.ceiling && !s.draining
	if retrying {
		s.publishLocked(domain.EventDeviceRetry, key, map[string]interface{}{
			"attempts": cur.Attempts,
			"error":    cur.LastError,
			"delay":    s.retryDelay.String(),
		})
		if s.retryDelay <= 0 {
			cur.Status = domain.DeviceStatusQueued
			s.queue = append(s.queue, key)
		} else {
			s.retries[key] = time.AfterFunc(s.retryDelay, func() { s.requeue(key) })
		}
	} else {
		s.publishLocked(domain.EventDeviceFailed, key, map[string]interface{}{
			"attempts": cur.Attempts,
			"error":    cur.LastError,
		})
	}
	s.broadcastLocked()

	return retrying, s.persistLocked(ctx, cur)
}

// requeue runs when a retry timer fires
func (s *State) requeue(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drain removes the entry before the timer gets the lock
	if _, ok := s.retries[key]; !ok {
		return
	}
	delete(s.retries, key)

	cur := s.records[key]
	cur.Status = domain.DeviceStatusQueued
	cur.UpdatedAt = time.Now()
	s.queue = append(s.queue, key)
	s.broadcastLocked()

	if err := s.persistLocked(context.Background(), cur); err != nil {
		s.logger.Warn().Err(err).Str("device", key).Msg("Retry queued with stale stored status")
	}
}

// Alias registers name, the hostname a device reports about itself, as
// another key of the device key. It returns false when name already belongs
// to a different device; both records are then kept.
func (s *State) Alias(key, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" || name == key {
		return true
	}
	if _, ok := s.records[key]; !ok {
		return false
	}
	if _, ok := s.records[name]; ok {
		return false
	}
	if owner, ok := s.aliases[name]; ok {
		return owner == key
	}
	s.aliases[name] = key
	return true
}

// resolveLocked finds the known record rec refers to: by key, then by alias,
// then by management address
func (s *State) resolveLocked(rec *domain.DeviceRecord) (*domain.DeviceRecord, bool) {
	if existing, ok := s.records[rec.Key]; ok {
		return existing, true
	}
	if key, ok := s.aliases[rec.Key]; ok {
		return s.records[key], true
	}
	if rec.ManagementAddress != "" {
		if key, ok := s.byAddress[rec.ManagementAddress]; ok {
			return s.records[key], true
		}
	}
	return nil, false
}

// indexLocked makes rec findable by its management address. The first device
// seen with an address keeps it.
func (s *State) indexLocked(rec *domain.DeviceRecord) {
	if rec.ManagementAddress == "" {
		return
	}
	if _, ok := s.byAddress[rec.ManagementAddress]; !ok {
		s.byAddress[rec.ManagementAddress] = rec.Key
	}
}

// Drain stops handing out work. Pending retry timers are cancelled and the
// affected devices stay Failed with attempts left, so a later Restore
// queues them again. In-flight devices may still Complete or Fail.
func (s *State) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return
	}
	s.draining = true
	for key, timer := range s.retries {
		timer.Stop()
		delete(s.retries, key)
	}
	s.broadcastLocked()
}

// Draining reports whether Drain was called
func (s *State) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// Stats is a point-in-time view of the crawl counters
type Stats struct {
	Counts   map[domain.DeviceStatus]int
	Total    int
	Queued   int // keys waiting in the queue
	Retrying int // failed devices waiting on a retry timer
	Active   []string
}

// Processed counts devices that finished an attempt with a final outcome
func (st Stats) Processed() int {
	return st.Counts[domain.DeviceStatusDone] + st.Counts[domain.DeviceStatusFailed] - st.Retrying
}

// Stats samples the counters
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Counts:   make(map[domain.DeviceStatus]int, len(domain.AllStatuses)),
		Total:    len(s.records),
		Queued:   len(s.queue),
		Retrying: len(s.retries),
		Active:   make([]string, 0, len(s.inflight)),
	}
	for _, rec := range s.records {
		st.Counts[rec.Status]++
	}
	for key := range s.inflight {
		st.Active = append(st.Active, key)
	}
	slices.Sort(st.Active)
	return st
}

// Get returns a copy of the record for key or for a name registered with Alias
func (s *State) Get(key string) (*domain.DeviceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		if owner, aliased := s.aliases[key]; aliased {
			rec, ok = s.records[owner]
		}
	}
	return rec.Clone(), ok
}

// Snapshot returns copies of every record in discovery order
func (s *State) Snapshot() []*domain.DeviceRecord {
	s.mu.Lock()
	out := make([]*domain.DeviceRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b *domain.DeviceRecord) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out
}

// Terminal reports whether a record will not be attempted again in this crawl
func (s *State) Terminal(rec *domain.DeviceRecord) bool {
	return s.terminalLocked(rec)
}

func (s *State) terminalLocked(rec *domain.DeviceRecord) bool {
	switch rec.Status {
	case domain.DeviceStatusDone:
		return true
	case domain.DeviceStatusFailed:
		return rec.Attempts > s.ceiling
	default:
		return false
	}
}

func (s *State) idleLocked() bool {
	return len(s.queue) == 0 && len(s.inflight) == 0 && len(s.retries) == 0
}

func (s *State) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *State) publishLocked(t domain.EventType, key string, payload interface{}) {
	s.events.Publish(domain.Event{
		Type:    t,
		RunID:   s.runID,
		Key:     key,
		Time:    time.Now(),
		Payload: payload,
	})
}

func (s *State) persistLocked(ctx context.Context, rec *domain.DeviceRecord) error {
	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("device", rec.Key).Msg("Failed to persist device state")
		return fmt.Errorf("persist %s: %w", rec.Key, err)
	}
	return nil
}

// applyAttributes copies the non-empty attributes of src onto dst. What a
// device reports about itself replaces what its neighbors advertised.
func applyAttributes(dst, src *domain.DeviceRecord) {
	set := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}
	set(&dst.ManagementAddress, src.ManagementAddress)
	set(&dst.Platform, src.Platform)
	set(&dst.Capabilities, src.Capabilities)
	set(&dst.Serial, src.Serial)
	set(&dst.Model, src.Model)
	set(&dst.Version, src.Version)
	set(&dst.DeviceType, src.DeviceType)
}
