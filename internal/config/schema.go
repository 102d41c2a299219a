package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "taskboard-config.schema.json"

// Durations are checked in nanoseconds, the JSON form of time.Duration.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["server", "pages", "journal", "log", "labels"],
  "properties": {
    "server": {
      "type": "object",
      "required": ["addr", "base_path"],
      "properties": {
        "addr": {"type": "string", "minLength": 1},
        "base_path": {"type": "string", "pattern": "^/"},
        "shutdown_timeout": {"type": "integer", "minimum": 0}
      }
    },
    "pages": {
      "type": "object",
      "properties": {
        "idle_ttl": {"type": "integer", "minimum": 1000000000},
        "sweep_interval": {"type": "integer", "minimum": 1000000},
        "max_open": {"type": "integer", "minimum": 1}
      }
    },
    "journal": {
      "type": "object",
      "required": ["dsn"],
      "properties": {"dsn": {"type": "string", "minLength": 1}}
    },
    "log": {
      "type": "object",
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["text", "json", "logfmt"]}
      }
    },
    "labels": {
      "type": "object",
      "properties": {
        "new": {"type": "string", "minLength": 1, "maxLength": 64},
        "current": {"type": "string", "minLength": 1, "maxLength": 64},
        "archived": {"type": "string", "minLength": 1, "maxLength": 64}
      }
    },
    "webhooks": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "url": {"type": "string", "pattern": "^https?://"},
          "events": {"type": ["array", "null"], "items": {"type": "string"}},
          "timeout_seconds": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(configSchema)); err != nil {
			compileErr = fmt.Errorf("add config schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
	})
	return compiled, compileErr
}

func validateSchema(c *Config) error {
	s, err := schema()
	if err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("invalid config: %s", strings.Join(schemaMessages(ve), "; "))
		}
		return err
	}
	return nil
}

func schemaMessages(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		loc := strings.TrimPrefix(err.InstanceLocation, "/")
		loc = strings.ReplaceAll(loc, "/", ".")
		if loc == "" {
			return []string{err.Message}
		}
		return []string{"config." + loc + ": " + err.Message}
	}
	var out []string
	for _, cause := range err.Causes {
		out = append(out, schemaMessages(cause)...)
	}
	return out
}
