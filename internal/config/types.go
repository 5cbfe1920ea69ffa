package config

// Config is the on-disk daemon configuration. YAML and JSON are both
// accepted; YAML is coerced to JSON and decoded strictly, so unknown keys
// are rejected in either format.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Monitor    MonitorConfig    `json:"monitor,omitempty"`
	Store      StoreConfig      `json:"store,omitempty"`
	Transcribe TranscribeConfig `json:"transcribe,omitempty"`
	Debug      DebugConfig      `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// MonitorConfig tunes sampling, history bounds, and thresholds.
//
// Defaults (when fields are omitted/zero):
//   - sample_interval: "5s"
//   - history_size: 60
//   - alert_history_size: 100
//   - operation_history_size: 100
//   - alert_log_per_sec: 5
//   - thresholds: stock table (see monitor.DefaultThresholds)
type MonitorConfig struct {
	SampleInterval       string `json:"sample_interval,omitempty"`
	HistorySize          int    `json:"history_size,omitempty"`
	AlertHistorySize     int    `json:"alert_history_size,omitempty"`
	OperationHistorySize int    `json:"operation_history_size,omitempty"`
	AlertLogPerSec       int    `json:"alert_log_per_sec,omitempty"`

	MemoryThresholdMB float64 `json:"memory_threshold_mb,omitempty"`
	TimerThreshold    int     `json:"timer_threshold,omitempty"`
	ListenerThreshold int     `json:"listener_threshold,omitempty"`

	// LatencyThresholds maps a latency field name (api_response, store,
	// export, transcribe, audio) to a duration string.
	LatencyThresholds map[string]string `json:"latency_thresholds,omitempty"`
}

// StoreConfig controls the note store and its scheduled maintenance.
type StoreConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// AutosaveInterval drives the recurring flush of staged notes.
	AutosaveInterval string `json:"autosave_interval,omitempty"`

	// RetentionDays and RetentionSchedule drive the purge cron task.
	// Schedule accepts standard cron specs and descriptors ("@daily").
	RetentionDays     int    `json:"retention_days,omitempty"`
	RetentionSchedule string `json:"retention_schedule,omitempty"`
}

// DebugConfig controls the local diagnostics endpoint (pprof, metrics,
// timers). Binding to a non-loopback address requires a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

// TranscribeConfig points at the speech-to-text endpoint.
type TranscribeConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// RetryPeriod/MaxRetries tune the bounded submission retry task.
	RetryPeriod string `json:"retry_period,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty"`
}
