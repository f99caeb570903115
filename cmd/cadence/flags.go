package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var flagValidator = validator.New()

func validateRunOptions(opts runOptions) error {
	if err := validateFilePath("cadence file", opts.CadencePath); err != nil {
		return err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return fmt.Errorf("--email is required")
	}
	if err := flagValidator.Var(opts.Email, "email"); err != nil {
		return fmt.Errorf("invalid --email %q", opts.Email)
	}
	if opts.UpdatePath != "" {
		if err := validateFilePath("update file", opts.UpdatePath); err != nil {
			return err
		}
	}
	if opts.UpdateAfter < 0 {
		return fmt.Errorf("--after must not be negative")
	}
	if opts.UpdatePath == "" && opts.UpdateAfter != 0 {
		return fmt.Errorf("--after requires --update")
	}
	return nil
}

func validateFilePath(label, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%s is required", label)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s path: %w", label, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("%s does not exist: %w", label, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s path %s is a directory", label, abs)
	}

	return nil
}

// shutdownTimeout bounds how long a command waits for engines to park.
const shutdownTimeout = 10 * time.Second
