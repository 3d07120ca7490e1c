package timer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SchedulerTag is the owner tag reserved for compiled schedule transitions.
// It is the only tag allowed to hold more than one entry at a time.
const SchedulerTag = "scheduler"

// Default loop timings.
const (
	DefaultIdleSleep      = time.Hour
	DefaultPauseThreshold = time.Second
	DefaultYieldInterval  = 10 * time.Millisecond
)

// Callback is work deferred through the scheduler.
type Callback func()

// Logger is the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tunes a Scheduler. Zero values select the defaults.
type Options struct {
	// IdleSleep is how long the loop sleeps when the queue is empty.
	IdleSleep time.Duration

	// PauseThreshold is the distance to the nearest entry beyond which
	// the loop parks on a one-shot clock timer instead of polling.
	PauseThreshold time.Duration

	// YieldInterval is the polling interval for entries closer than
	// PauseThreshold.
	YieldInterval time.Duration

	// Locker is held around every callback. Pass the same lock the API
	// layer holds so callbacks and remote commands never interleave.
	Locker sync.Locker
}

// Entry describes a pending callback.
type Entry struct {
	Key    int64     `json:"key"`
	Tag    string    `json:"tag"`
	Expiry time.Time `json:"expiry"`
}

type entry struct {
	key int64
	tag string
	fn  Callback
}

// Scheduler is an epoch-millisecond priority queue of deferred callbacks.
//
// Keys are unique: a collision is resolved by bumping the key 1ms at a time.
// Each owner tag holds at most one entry, except SchedulerTag.
//
// Thread Safety: Create, CreateAt, Cancel and Pending are safe to call from
// any goroutine. Callbacks run one at a time on the goroutine that calls Run
// (or RunPending), with the configured Locker held.
type Scheduler struct {
	clock          Clock
	locker         sync.Locker
	logger         Logger
	idleSleep      time.Duration
	pauseThreshold time.Duration
	yieldInterval  time.Duration

	mu    sync.Mutex
	queue []entry // ascending by key
	wake  chan struct{}
}

// New creates a Scheduler driven by clock.
func New(clock Clock, opts Options) *Scheduler {
	if clock == nil {
		clock = Real()
	}
	s := &Scheduler{
		clock:          clock,
		locker:         opts.Locker,
		logger:         noopLogger{},
		idleSleep:      opts.IdleSleep,
		pauseThreshold: opts.PauseThreshold,
		yieldInterval:  opts.YieldInterval,
		wake:           make(chan struct{}, 1),
	}
	if s.locker == nil {
		s.locker = &sync.Mutex{}
	}
	if s.idleSleep <= 0 {
		s.idleSleep = DefaultIdleSleep
	}
	if s.pauseThreshold <= 0 {
		s.pauseThreshold = DefaultPauseThreshold
	}
	if s.yieldInterval <= 0 {
		s.yieldInterval = DefaultYieldInterval
	}
	return s
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Clock returns the clock driving the scheduler.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Create schedules fn to run no sooner than period from now and returns the
// entry key.
//
// Unless tag is SchedulerTag, any existing entry with the same tag is
// removed first, so repeated calls supersede each other.
func (s *Scheduler) Create(period time.Duration, fn Callback, tag string) int64 {
	return s.CreateAt(s.clock.Now().Add(period), fn, tag)
}

// CreateAt schedules fn to run no sooner than at. See Create.
func (s *Scheduler) CreateAt(at time.Time, fn Callback, tag string) int64 {
	key := at.UnixMilli()

	s.mu.Lock()
	if tag != SchedulerTag {
		s.removeLocked(tag)
	}
	for s.indexLocked(key) >= 0 {
		key++
	}
	i := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].key > key })
	s.queue = append(s.queue, entry{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = entry{key: key, tag: tag, fn: fn}
	s.mu.Unlock()

	s.signal()
	return key
}

// Cancel removes every entry owned by tag and returns how many were removed.
func (s *Scheduler) Cancel(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(tag)
}

// Pending returns a snapshot of the queue in firing order.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.queue))
	for i, e := range s.queue {
		out[i] = Entry{Key: e.key, Tag: e.tag, Expiry: time.UnixMilli(e.key)}
	}
	return out
}

// Has reports whether tag owns at least one pending entry.
func (s *Scheduler) Has(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.queue {
		if e.tag == tag {
			return true
		}
	}
	return false
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunPending fires every entry that has expired, in ascending key order,
// and returns the number fired.
//
// Entries are popped one at a time, so an entry cancelled by an earlier
// callback in the same pass never fires. Entries created during the pass
// wait for the next one.
func (s *Scheduler) RunPending() int {
	now := s.clock.Now().UnixMilli()

	s.mu.Lock()
	budget := 0
	for budget < len(s.queue) && s.queue[budget].key <= now {
		budget++
	}
	s.mu.Unlock()

	fired := 0
	for ; budget > 0; budget-- {
		e, ok := s.popExpired(now)
		if !ok {
			break
		}
		s.fire(e)
		fired++
	}
	return fired
}

// Run drives the queue until ctx is cancelled.
//
// Each iteration fires expired entries, then sleeps: IdleSleep when the
// queue is empty, until the nearest expiry when it is further away than
// PauseThreshold, otherwise YieldInterval. Create wakes a sleeping loop
// immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "pending", s.Len())
	for {
		s.RunPending()

		wait := s.sleepDuration()
		t := s.clock.AfterFunc(wait, s.signal)

		select {
		case <-ctx.Done():
			t.Stop()
			s.logger.Info("scheduler stopped", "pending", s.Len())
			return ctx.Err()
		case <-s.wake:
			t.Stop()
		}
	}
}

func (s *Scheduler) sleepDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return s.idleSleep
	}
	until := time.Duration(s.queue[0].key-s.clock.Now().UnixMilli()) * time.Millisecond
	if until > s.pauseThreshold {
		return until
	}
	if until < s.yieldInterval {
		if until < 0 {
			return 0
		}
		return until
	}
	return s.yieldInterval
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) popExpired(now int64) (entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0].key > now {
		return entry{}, false
	}
	e := s.queue[0]
	s.queue = s.queue[1:]
	return e, true
}

func (s *Scheduler) fire(e entry) {
	s.locker.Lock()
	defer s.locker.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler callback panicked",
				"tag", e.tag,
				"key", e.key,
				"error", fmt.Sprint(r),
			)
		}
	}()
	e.fn()
}

func (s *Scheduler) indexLocked(key int64) int {
	i := sort.Search(len(s.queue), func(i int) bool { return s.queue[i].key >= key })
	if i < len(s.queue) && s.queue[i].key == key {
		return i
	}
	return -1
}

func (s *Scheduler) removeLocked(tag string) int {
	kept := s.queue[:0]
	removed := 0
	for _, e := range s.queue {
		if e.tag == tag {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = entry{}
	}
	s.queue = kept
	return removed
}
