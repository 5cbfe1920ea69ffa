package monitor

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"voxnote/internal/scheduler"
	logx "voxnote/pkg/logx"
)

// Category classifies what an alert is about.
type Category string

const (
	CategoryMemory   Category = "memory"
	CategoryLatency  Category = "latency"
	CategoryResource Category = "resource"
	CategoryError    Category = "error"
)

// SeverityLevel is an alert's classified urgency.
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityCritical SeverityLevel = "critical"
)

// Alert is one classified threshold breach.
type Alert struct {
	Category  Category
	Severity  SeverityLevel
	Message   string
	Value     float64
	Threshold float64
	Time      time.Time
}

// Snapshot is one periodic sample. Latencies holds the named latency fields
// written by Measure calls that land between samples.
type Snapshot struct {
	Time          time.Time
	MemoryMB      float64
	Latencies     map[string]time.Duration
	IntervalCount int
	TimeoutCount  int
	ListenerCount int
}

// OperationRecord captures one measured operation.
type OperationRecord struct {
	Label    string
	Duration time.Duration
	Failed   bool
	Time     time.Time
}

// ResourceStats is the read interface the monitor consumes; it does not own
// timer or listener bookkeeping itself.
type ResourceStats struct {
	IntervalCount int
	TimeoutCount  int
	ListenerCount int
}

type ResourceCounter interface {
	Stats() ResourceStats
}

// Stable latency field names used across the app (spec'd so collaborators
// and thresholds agree on keys).
const (
	FieldAPIResponse = "api_response"
	FieldStore       = "store"
	FieldExport      = "export"
	FieldTranscribe  = "transcribe"
	FieldAudio       = "audio"
)

// Thresholds are the fixed comparison points for sampling and measurement.
type Thresholds struct {
	MemoryMB  float64
	Timers    int
	Listeners int

	// Latency maps a field name to its per-operation threshold. Fields
	// without an entry never raise latency alerts.
	Latency map[string]time.Duration
}

// DefaultThresholds returns the stock threshold table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryMB:  256,
		Timers:    50,
		Listeners: 100,
		Latency: map[string]time.Duration{
			FieldAPIResponse: 2 * time.Second,
			FieldStore:       500 * time.Millisecond,
			FieldExport:      2 * time.Second,
			FieldTranscribe:  5 * time.Second,
			FieldAudio:       time.Second,
		},
	}
}

// Config controls the monitor.
//
// Zero values fall back to defaults: 5s sampling, 60 metric snapshots,
// 100 alerts, 100 operation records, 5 surfaced alerts per second.
type Config struct {
	SampleInterval       time.Duration
	HistorySize          int
	AlertHistorySize     int
	OperationHistorySize int
	Thresholds           Thresholds

	// AlertLogPerSec throttles the logging side-channel for high/critical
	// alerts. History recording is never throttled.
	AlertLogPerSec int

	// MemorySample overrides the memory source (tests). Returns MB.
	MemorySample func() (float64, error)
}

func (c Config) withDefaults() Config {
	if c.SampleInterval <= 0 {
		c.SampleInterval = 5 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 60
	}
	if c.AlertHistorySize <= 0 {
		c.AlertHistorySize = 100
	}
	if c.OperationHistorySize <= 0 {
		c.OperationHistorySize = 100
	}
	if c.Thresholds.Latency == nil && c.Thresholds.MemoryMB == 0 && c.Thresholds.Timers == 0 && c.Thresholds.Listeners == 0 {
		c.Thresholds = DefaultThresholds()
	}
	if c.AlertLogPerSec <= 0 {
		c.AlertLogPerSec = 5
	}
	if c.MemorySample == nil {
		c.MemorySample = processMemoryMB
	}
	return c
}

// Monitor owns the metrics, alert, and operation histories exclusively.
type Monitor struct {
	log   logx.Logger
	sched *scheduler.Scheduler
	res   ResourceCounter
	cfg   Config

	limiter *rate.Limiter

	mu         sync.Mutex
	sampling   bool
	samplingID scheduler.TimerID
	metrics    []Snapshot
	alerts     []Alert
	ops        []OperationRecord
}

func New(cfg Config, sched *scheduler.Scheduler, res ResourceCounter, log logx.Logger) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		log:     log,
		sched:   sched,
		res:     res,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.AlertLogPerSec), cfg.AlertLogPerSec),
	}
}
