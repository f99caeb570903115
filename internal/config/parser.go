package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	cadenceerrors "github.com/alexisbeaulieu97/cadence/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Environment variables that override the configuration file.
const (
	EnvStoreDriver = "CADENCE_STORE_DRIVER"
	EnvStoreDSN    = "CADENCE_STORE_DSN"
	EnvLogLevel    = "CADENCE_LOG_LEVEL"
)

// DefaultAppConfig returns the configuration used when no file is given.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:          "memory",
			PingTimeout:     2 * time.Second,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Activities: ActivitiesConfig{
			SendTimeout:    2 * time.Minute,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			SanitizeHTML:   true,
			SendLatency:    500 * time.Millisecond,
		},
		Engine: EngineConfig{SettleDelay: 3 * time.Second},
	}
}

// LoadAppConfig reads the runtime configuration. An empty path yields the
// defaults. Values from the file are layered over the defaults, environment
// overrides are applied last, and the result is validated.
func LoadAppConfig(path string, lookupEnv func(string) (string, bool)) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, cadenceerrors.NewParseError(path, 0, err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := decodeStrict(data, &cfg); err != nil {
				return nil, cadenceerrors.NewParseError(path, extractLine(err), err)
			}
		}
	}

	ApplyEnv(&cfg, lookupEnv)

	if err := ValidateAppConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides store and log settings from the environment.
func ApplyEnv(cfg *AppConfig, lookupEnv func(string) (string, bool)) {
	if cfg == nil || lookupEnv == nil {
		return
	}
	if v, ok := lookupEnv(EnvStoreDriver); ok && v != "" {
		cfg.Store.Driver = v
	}
	if v, ok := lookupEnv(EnvStoreDSN); ok && v != "" {
		cfg.Store.DSN = v
	}
	if v, ok := lookupEnv(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// ParseCadence loads a cadence template from disk, validates it, and returns
// the domain model.
func ParseCadence(path string) (cadence.Cadence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cadence.Cadence{}, cadenceerrors.NewParseError(path, 0, err)
	}
	return ParseCadenceBytes(path, data)
}

// ParseCadenceBytes parses cadence YAML already in memory. path is only used
// in error messages.
func ParseCadenceBytes(path string, data []byte) (cadence.Cadence, error) {
	var file CadenceFile
	if err := decodeStrict(data, &file); err != nil {
		return cadence.Cadence{}, cadenceerrors.NewParseError(path, extractLine(err), err)
	}
	if err := ValidateCadenceFile(&file); err != nil {
		return cadence.Cadence{}, err
	}
	return file.ToDomain(), nil
}

// ParseSteps parses a bare YAML list of steps, the payload of an update.
func ParseSteps(path string, data []byte) ([]cadence.Step, error) {
	var specs []StepSpec
	if err := decodeStrict(data, &specs); err != nil {
		return nil, cadenceerrors.NewParseError(path, extractLine(err), err)
	}
	file := CadenceFile{ID: "update", Name: "update", Steps: specs}
	if err := ValidateCadenceFile(&file); err != nil {
		return nil, err
	}
	return file.ToDomain().Steps, nil
}

// ToDomain converts the file form into the domain model.
func (f CadenceFile) ToDomain() cadence.Cadence {
	steps := make([]cadence.Step, 0, len(f.Steps))
	for _, spec := range f.Steps {
		steps = append(steps, spec.ToDomain())
	}
	return cadence.Cadence{ID: f.ID, Name: f.Name, Steps: steps}
}

// ToDomain converts one step spec.
func (s StepSpec) ToDomain() cadence.Step {
	switch strings.ToLower(s.Type) {
	case "wait":
		return cadence.Wait(s.ID, s.Seconds)
	case "send_email":
		return cadence.SendEmail(s.ID, s.Subject, s.Body)
	}
	return cadence.Step{ID: s.ID, Type: cadence.StepType(strings.ToUpper(s.Type))}
}

// decodeStrict rejects unknown keys so typos surface as parse errors.
func decodeStrict(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("document is empty")
		}
		return err
	}
	return nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
