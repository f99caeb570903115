package config

import "time"

// AppConfig is the runtime configuration of the cadence binary.
type AppConfig struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Activities ActivitiesConfig `yaml:"activities"`
	Engine     EngineConfig     `yaml:"engine"`
}

// LogConfig selects verbosity and output format. HumanReadable nil means
// "console output when stdout is a terminal".
type LogConfig struct {
	Level         string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	HumanReadable *bool  `yaml:"human_readable,omitempty"`
}

// StoreConfig selects the snapshot store backend.
type StoreConfig struct {
	Driver          string        `yaml:"driver" validate:"required,store_driver"`
	DSN             string        `yaml:"dsn" validate:"required_unless=Driver memory"`
	PingTimeout     time.Duration `yaml:"ping_timeout" validate:"gt=0"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" validate:"gte=0"`
}

// ActivitiesConfig tunes the email activity chain.
type ActivitiesConfig struct {
	SendTimeout    time.Duration `yaml:"send_timeout" validate:"gt=0"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	MaxAttempts    int           `yaml:"max_attempts" validate:"gte=0"`
	SanitizeHTML   bool          `yaml:"sanitize_html"`
	SendLatency    time.Duration `yaml:"send_latency" validate:"gte=0"`
}

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay" validate:"gte=0"`
}

// CadenceFile is the YAML form of a cadence template.
type CadenceFile struct {
	ID    string     `yaml:"id" validate:"required,step_id"`
	Name  string     `yaml:"name" validate:"required"`
	Steps []StepSpec `yaml:"steps" validate:"dive"`
}

// StepSpec is one step of a cadence file. Type is written in lower case
// ("wait", "send_email").
type StepSpec struct {
	ID      string `yaml:"id" validate:"required,step_id"`
	Type    string `yaml:"type" validate:"required,step_type"`
	Seconds int    `yaml:"seconds,omitempty" validate:"required_if=Type wait,gte=0"`
	Subject string `yaml:"subject,omitempty"`
	Body    string `yaml:"body,omitempty"`
}
