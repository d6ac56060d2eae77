package event

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize/english"
	"golang.org/x/time/rate"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("event queue is closed")

// DefaultCapacity is the queue bound used when none is configured.
const DefaultCapacity = 256

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for overflow messages.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithAlertInterval sets the minimum spacing between two overflow alerts.
func WithAlertInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue is a bounded, coalescing event queue with a single consumer.
type Queue struct {
	capacity int
	logger   *slog.Logger
	limiter  *rate.Limiter
	now      func() time.Time

	mu      sync.Mutex
	items   []Event
	alert   *Event // pending overflow alert, outside items
	seq     uint64
	paneSeq map[string]uint64
	closed  bool

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
	out    chan Event

	startOnce sync.Once
	closeOnce sync.Once

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	coalesced atomic.Uint64
}

// NewQueue creates a queue holding at most capacity undelivered events.
// A non-positive capacity selects DefaultCapacity.
func NewQueue(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{
		capacity: capacity,
		logger:   slog.Default(),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		now:      time.Now,
		items:    make([]Event, 0, capacity),
		paneSeq:  make(map[string]uint64),
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		out:      make(chan Event),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish stamps e with its sequence numbers and queues it. A queued
// SyncUpdate for the same pane is replaced. When the queue is full the
// oldest event is dropped and, at most once per alert interval, an overflow
// alert is raised.
func (q *Queue) Publish(e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	if e.Kind == SyncUpdate {
		q.paneSeq[e.Pane]++
		e.PaneSeq = q.paneSeq[e.Pane]
		q.coalesce(e.Pane)
	}

	if len(q.items) >= q.capacity {
		q.dropOldest()
		if e.Kind != PerformanceAlert && q.limiter.Allow() {
			q.raiseAlert()
		}
	}
	q.push(e)
	q.published.Add(1)
	return nil
}

// push appends e. The caller makes room first. Requires mu.
func (q *Queue) push(e Event) {
	q.stamp(&e)
	q.items = append(q.items, e)
	q.signal()
}

// raiseAlert sets the pending overflow alert, replacing an undelivered
// one. Requires mu.
func (q *Queue) raiseAlert() {
	dropped := q.dropped.Load()
	a := Event{
		Kind:    PerformanceAlert,
		Message: fmt.Sprintf("event queue full, %s dropped", english.Plural(int(dropped), "event", "events")),
		Dropped: dropped,
	}
	q.stamp(&a)
	q.alert = &a
	q.signal()
	q.logger.Warn("event queue overflow", "capacity", q.capacity, "dropped", dropped)
}

// stamp requires mu.
func (q *Queue) stamp(e *Event) {
	q.seq++
	e.Seq = q.seq
	if e.At.IsZero() {
		e.At = q.now()
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// dropOldest requires mu.
func (q *Queue) dropOldest() {
	q.items[0] = Event{}
	q.items = q.items[1:]
	q.dropped.Add(1)
}

// coalesce removes queued sync updates of pane. Requires mu.
func (q *Queue) coalesce(pane string) {
	kept := q.items[:0]
	for _, it := range q.items {
		if it.Kind == SyncUpdate && it.Pane == pane {
			q.coalesced.Add(1)
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = Event{}
	}
	q.items = kept
}

func (q *Queue) next() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.alert != nil && (len(q.items) == 0 || q.alert.Seq < q.items[0].Seq) {
		e := *q.alert
		q.alert = nil
		return e, true
	}
	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	return e, true
}

// Events returns the delivery channel. Delivery starts on the first call;
// events published before that are held in the queue. The channel is
// closed by Close.
func (q *Queue) Events() <-chan Event {
	q.startOnce.Do(func() {
		go q.pump()
	})
	return q.out
}

func (q *Queue) pump() {
	defer close(q.done)
	defer close(q.out)

	for {
		e, ok := q.next()
		if !ok {
			select {
			case <-q.notify:
				continue
			case <-q.stop:
				return
			}
		}
		select {
		case q.out <- e:
			q.delivered.Add(1)
		case <-q.stop:
			return
		}
	}
}

// Close stops delivery and discards undelivered events.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.stop)

		started := true
		q.startOnce.Do(func() { started = false })
		if started {
			<-q.done
		} else {
			close(q.out)
		}
	})
	return nil
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Pending   int    `json:"pending"`
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Coalesced uint64 `json:"coalesced"`
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := len(q.items)
	if q.alert != nil {
		pending++
	}
	q.mu.Unlock()
	return Stats{
		Capacity:  q.capacity,
		Pending:   pending,
		Published: q.published.Load(),
		Delivered: q.delivered.Load(),
		Dropped:   q.dropped.Load(),
		Coalesced: q.coalesced.Load(),
	}
}
