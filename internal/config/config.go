// Package config holds the process-wide ProgramConfig: defaults
// layered with an optional JSON config file, following the teacher's
// own flags-then-file-overrides-defaults pattern, but validated
// against an embedded JSON Schema before being decoded rather than
// unmarshaled blind.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/cannero/kvreplica/pkg/schema"
)

// ProgramConfig is the full set of bootstrap options, CLI-overridable
// and optionally seeded from a JSON file named by --config.
type ProgramConfig struct {
	Port              int    `json:"port"`
	ReplicaOf         string `json:"replicaof"`
	AdminAddr         string `json:"admin-addr"`
	NatsURL           string `json:"nats-url"`
	HeartbeatInterval string `json:"heartbeat-interval"`
	LogLevel          string `json:"log-level"`
	LogDateTime       bool   `json:"log-date-time"`
}

// Defaults mirrors the spec's CLI defaults (port 6379, no replicaof)
// plus this implementation's ambient additions, all off/empty unless
// explicitly configured.
var Defaults = ProgramConfig{
	Port:     6379,
	LogLevel: "info",
}

// Load validates and decodes the file at path over base, returning
// base unchanged if path is empty. Callers pass their flag-derived
// config as base so flags set the defaults and the file, if present,
// only overrides the fields it names (spec's flags-then-file
// precedence) — an empty path is not an error, since the server runs
// fine on defaults plus whatever CLI flags supplied.
func Load(base ProgramConfig, path string) (ProgramConfig, error) {
	cfg := base
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return ProgramConfig{}, err
	}

	if err := schema.ValidateConfig(bytes.NewReader(raw)); err != nil {
		return ProgramConfig{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ProgramConfig{}, err
	}
	return cfg, nil
}
