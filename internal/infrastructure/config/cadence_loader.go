package config

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	cfgpkg "github.com/alexisbeaulieu97/cadence/internal/config"
	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
	cadenceerrors "github.com/alexisbeaulieu97/cadence/pkg/errors"
)

// CadenceLoader reads cadence templates and step updates from YAML files on
// disk and reports failures as domain errors.
type CadenceLoader struct {
	logger ports.Logger
}

func NewCadenceLoader(logger ports.Logger) *CadenceLoader {
	return &CadenceLoader{logger: logger}
}

// Load parses and validates a cadence file.
func (l *CadenceLoader) Load(ctx context.Context, path string) (cadence.Cadence, error) {
	if err := contextCheck(ctx); err != nil {
		return cadence.Cadence{}, err
	}
	if err := checkExtension(path); err != nil {
		return cadence.Cadence{}, err
	}

	l.logDebug(ctx, "loading cadence", map[string]interface{}{"path": path})

	c, err := cfgpkg.ParseCadence(path)
	if err != nil {
		l.logError(ctx, "failed to load cadence", err, map[string]interface{}{"path": path})
		return cadence.Cadence{}, convertError(err, path)
	}
	if err := c.Validate(); err != nil {
		l.logError(ctx, "cadence failed domain validation", err, map[string]interface{}{"path": path})
		return cadence.Cadence{}, err
	}

	for _, warning := range c.Warnings() {
		l.logWarn(ctx, "cadence content warning", map[string]interface{}{"path": path, "cadence_id": c.ID, "warning": warning})
	}
	l.logInfo(ctx, "cadence loaded", map[string]interface{}{"path": path, "cadence_id": c.ID, "steps": len(c.Steps)})
	return c, nil
}

// LoadSteps parses a replacement step list. The file may hold either a bare
// list of steps or a whole cadence, whose steps are used.
func (l *CadenceLoader) LoadSteps(ctx context.Context, path string) ([]cadence.Step, error) {
	if err := contextCheck(ctx); err != nil {
		return nil, err
	}
	if err := checkExtension(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, convertError(cadenceerrors.NewParseError(path, 0, err), path)
	}

	if isSequence(data) {
		steps, err := cfgpkg.ParseSteps(path, data)
		if err != nil {
			l.logError(ctx, "failed to load steps", err, map[string]interface{}{"path": path})
			return nil, convertError(err, path)
		}
		return steps, nil
	}

	c, err := cfgpkg.ParseCadenceBytes(path, data)
	if err != nil {
		l.logError(ctx, "failed to load steps", err, map[string]interface{}{"path": path})
		return nil, convertError(err, path)
	}
	return c.Steps, nil
}

// isSequence reports whether the document's root is a YAML list. Undecodable
// input returns false and is reported by the cadence parser.
func isSequence(data []byte) bool {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return false
	}
	return root.Content[0].Kind == yaml.SequenceNode
}

func checkExtension(path string) error {
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		return nil
	default:
		return cadence.NewError(cadence.ErrCodeValidation, "unsupported cadence file extension", nil, map[string]interface{}{"path": path, "extension": ext})
	}
}

func convertError(err error, path string) error {
	if err == nil {
		return nil
	}
	if parseErr, ok := cadenceerrors.AsParseError(err); ok {
		if parseErr.Missing() {
			return cadence.NewError(cadence.ErrCodeNotFound, "cadence file not found", parseErr.Err, map[string]interface{}{"path": path})
		}
		return cadence.NewError(cadence.ErrCodeValidation, "invalid cadence syntax", err, map[string]interface{}{"path": parseErr.Path, "line": parseErr.Line})
	}
	if valErr, ok := cadenceerrors.AsValidationError(err); ok {
		context := map[string]interface{}{"path": path}
		if valErr.Field != "" {
			context["field"] = valErr.Field
		}
		code := cadence.ErrCodeValidation
		if strings.Contains(strings.ToLower(valErr.Message), "duplicate") {
			code = cadence.ErrCodeDuplicate
		}
		return cadence.NewError(code, valErr.Message, valErr.Err, context)
	}
	return cadence.NewError(cadence.ErrCodeInternal, "cadence load failed", err, map[string]interface{}{"path": path})
}

func contextCheck(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return cadence.NewError(cadence.ErrCodeCancelled, "operation cancelled", err, nil)
	}
	return nil
}

func (l *CadenceLoader) logDebug(ctx context.Context, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Debug(ctx, msg, flattenFields(fields)...)
}

func (l *CadenceLoader) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Info(ctx, msg, flattenFields(fields)...)
}

func (l *CadenceLoader) logWarn(ctx context.Context, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(ctx, msg, flattenFields(fields)...)
}

func (l *CadenceLoader) logError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["error"] = err
	l.logger.Error(ctx, msg, flattenFields(payload)...)
}

func flattenFields(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}
