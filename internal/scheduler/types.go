package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "voxnote/pkg/logx"
)

// TimerID is the opaque handle issued for every registered timer. It is the
// only key used to look a timer up, cancel it, or have it cancel itself from
// inside its own callback.
type TimerID uint64

type TimerKind int

const (
	KindInterval TimerKind = iota
	KindTimeout
)

func (k TimerKind) String() string {
	if k == KindTimeout {
		return "timeout"
	}
	return "interval"
}

// IntervalConfig describes a repeating timer.
type IntervalConfig struct {
	// Period between ticks. Values <= 0 are clamped to 1ms.
	Period time.Duration

	// Immediate fires one tick right after registration, before the first
	// period elapses. It counts toward MaxExecutions.
	Immediate bool

	// MaxExecutions, when > 0, auto-cancels the timer after that many ticks
	// and fires OnComplete exactly once. Zero means unbounded.
	MaxExecutions int

	// OnExecute runs on every tick. The timer's own ID is passed in so the
	// callback can self-cancel. A returned error goes to OnError and does
	// not stop the timer.
	OnExecute func(ctx context.Context, id TimerID) error

	// OnComplete fires once when MaxExecutions is exhausted. It does not
	// fire on explicit cancellation.
	OnComplete func()

	// OnError receives callback errors (and recovered panics). Nil routes
	// them to the scheduler's logger.
	OnError func(error)
}

// RecurringOptions tunes CreateRecurringTask.
type RecurringOptions struct {
	Immediate     bool
	MaxExecutions int
	OnError       func(error)
}

// RetryOptions tunes CreateRetryTask.
type RetryOptions struct {
	// Period between attempts. Values <= 0 are clamped to 1ms.
	Period time.Duration

	// MaxRetries is the attempt budget. Values <= 0 are treated as 1.
	MaxRetries int

	// Immediate runs the first attempt right after registration.
	Immediate bool

	// Exactly one of OnSuccess/OnFailure fires per retry task (unless the
	// task is cancelled externally before either condition is reached).
	OnSuccess func()
	OnFailure func(err error)
}

// TimerInfo is a read-only snapshot of one tracked timer.
type TimerInfo struct {
	ID         TimerID
	Kind       TimerKind
	Name       string
	Period     time.Duration
	Executions int
	LastRun    time.Time
	Created    time.Time
}

// TimerStats aggregates the live registry.
type TimerStats struct {
	Total     int
	Intervals int
	Timeouts  int

	// OldestAge is the age of the longest-lived active timer.
	OldestAge time.Duration

	// TotalExecutions sums the execution counts of all active timers.
	TotalExecutions int
}

// timer is the scheduler's per-timer bookkeeping. All mutable fields are
// guarded by the scheduler mutex; the dispatch goroutine copies what it
// needs under that lock.
type timer struct {
	id   TimerID
	kind TimerKind
	name string

	period    time.Duration
	immediate bool
	maxExec   int
	cronSched cron.Schedule // non-nil for cron-driven recurring timers

	onExecute  func(ctx context.Context, id TimerID) error
	onComplete func()
	onError    func(error)

	created   time.Time
	execCount int
	lastRun   time.Time
	active    bool

	// cancel stops the dispatch goroutine and is the ctx seen by callbacks.
	cancel context.CancelFunc
	ctx    context.Context
}

// Scheduler creates, tracks, and cancels timers.
type Scheduler struct {
	log logx.Logger

	mu     sync.Mutex
	seq    TimerID
	timers map[TimerID]*timer

	wg sync.WaitGroup
}

func New(log logx.Logger) *Scheduler {
	return &Scheduler{
		log:    log,
		timers: map[TimerID]*timer{},
	}
}
