package config

import (
	"fmt"
	"os"
	"strings"
)

// SourceRef points at a secret without embedding it in the config file.
// Exactly one of Value, Env or File should be set; Value wins when more
// than one is.
type SourceRef struct {
	Value string `yaml:"value"`
	Env   string `yaml:"env"`
	File  string `yaml:"file"`
}

// Resolve returns the referenced value. An entirely empty ref resolves
// to an empty string, which callers treat as "not configured".
func (r SourceRef) Resolve() (string, error) {
	switch {
	case r.Value != "":
		return r.Value, nil
	case r.Env != "":
		value, ok := os.LookupEnv(r.Env)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", r.Env)
		}

		return value, nil
	case r.File != "":
		data, err := os.ReadFile(r.File)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", r.File, err)
		}

		return strings.TrimSpace(string(data)), nil
	default:
		return "", nil
	}
}
