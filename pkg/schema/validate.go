// Package schema validates the optional on-disk server config file
// against an embedded JSON Schema before internal/config decodes it.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

// Load resolves an "embedFS://..." schema reference to its embedded
// file contents; registered with jsonschema.Loaders in init below.
// url.Parse puts the first path element in Host ("schemas"), so the
// embedded file name is Host followed by Path.
func Load(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Host + u.Path)
}

func init() {
	// url.Parse lowercases the scheme, and the loader is looked up by it.
	jsonschema.Loaders["embedfs"] = Load
}

// ValidateConfig decodes r as JSON and validates it against the
// embedded server config schema.
func ValidateConfig(r io.Reader) error {
	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		kvlog.Errorf("schema.ValidateConfig: failed to decode: %v", err)
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}
