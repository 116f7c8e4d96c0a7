package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ObserverType discriminates the maintenance observer variants.
type ObserverType string

const (
	ObserverSQL  ObserverType = "sql"
	ObserverHTTP ObserverType = "http"
	ObserverFile ObserverType = "file"
)

// ObserverSettings configures how a stack's maintenance flag is observed.
// Exactly one of SQL, HTTP or File is set, matching Type.
type ObserverSettings struct {
	Type             ObserverType
	PollInterval     time.Duration
	MaintenanceValue string
	SQL              *SQLObserver
	HTTP             *HTTPObserver
	File             *FileObserver
}

// SQLObserver reads a single value with a query.
type SQLObserver struct {
	Driver           string `yaml:"driver" json:"driver"`
	ConnectionString string `yaml:"connectionString" json:"connectionString"`
	Query            string `yaml:"query" json:"query"`
}

// HTTPObserver reads a JSON field or the raw body of an endpoint.
type HTTPObserver struct {
	URL       string `yaml:"url" json:"url"`
	JSONField string `yaml:"jsonField,omitempty" json:"jsonField,omitempty"`
}

// FileObserver treats the existence or content of a file as the flag.
type FileObserver struct {
	Path string `yaml:"path" json:"path"`
	// ContentMode compares file content with MaintenanceValue instead of
	// checking for existence.
	ContentMode bool `yaml:"contentMode,omitempty" json:"contentMode,omitempty"`
}

type observerEnvelope struct {
	Type             ObserverType `yaml:"type" json:"type"`
	PollInterval     string       `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"`
	MaintenanceValue string       `yaml:"maintenanceValue,omitempty" json:"maintenanceValue,omitempty"`
}

// observerYAML is the flat YAML shape; the type field selects which keys apply.
type observerYAML struct {
	Type             ObserverType `yaml:"type"`
	PollInterval     string       `yaml:"pollInterval,omitempty"`
	MaintenanceValue string       `yaml:"maintenanceValue,omitempty"`
	Driver           string       `yaml:"driver,omitempty"`
	ConnectionString string       `yaml:"connectionString,omitempty"`
	Query            string       `yaml:"query,omitempty"`
	URL              string       `yaml:"url,omitempty"`
	JSONField        string       `yaml:"jsonField,omitempty"`
	Path             string       `yaml:"path,omitempty"`
	ContentMode      bool         `yaml:"contentMode,omitempty"`
}

// Validate checks that the variant matching Type is present and complete.
func (o *ObserverSettings) Validate() error {
	switch o.Type {
	case ObserverSQL:
		if o.SQL == nil || o.SQL.Driver == "" || o.SQL.ConnectionString == "" || o.SQL.Query == "" {
			return fmt.Errorf("sql observer requires driver, connectionString and query")
		}
	case ObserverHTTP:
		if o.HTTP == nil || o.HTTP.URL == "" {
			return fmt.Errorf("http observer requires url")
		}
	case ObserverFile:
		if o.File == nil || o.File.Path == "" {
			return fmt.Errorf("file observer requires path")
		}
	default:
		return fmt.Errorf("unknown observer type %q", o.Type)
	}
	if o.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

func (o *ObserverSettings) envelope() observerEnvelope {
	env := observerEnvelope{Type: o.Type, MaintenanceValue: o.MaintenanceValue}
	if o.PollInterval > 0 {
		env.PollInterval = o.PollInterval.String()
	}
	return env
}

func (o *ObserverSettings) applyEnvelope(env observerEnvelope) error {
	o.Type = env.Type
	o.MaintenanceValue = env.MaintenanceValue
	if env.PollInterval != "" {
		d, err := time.ParseDuration(env.PollInterval)
		if err != nil {
			return fmt.Errorf("poll interval: %w", err)
		}
		o.PollInterval = d
	}
	return nil
}

// UnmarshalYAML decodes the variant selected by the type field.
func (o *ObserverSettings) UnmarshalYAML(node *yaml.Node) error {
	var raw observerYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*o = ObserverSettings{}
	env := observerEnvelope{Type: raw.Type, PollInterval: raw.PollInterval, MaintenanceValue: raw.MaintenanceValue}
	if err := o.applyEnvelope(env); err != nil {
		return err
	}
	switch raw.Type {
	case ObserverSQL:
		o.SQL = &SQLObserver{Driver: raw.Driver, ConnectionString: raw.ConnectionString, Query: raw.Query}
	case ObserverHTTP:
		o.HTTP = &HTTPObserver{URL: raw.URL, JSONField: raw.JSONField}
	case ObserverFile:
		o.File = &FileObserver{Path: raw.Path, ContentMode: raw.ContentMode}
	default:
		return fmt.Errorf("line %d: unknown observer type %q", node.Line, raw.Type)
	}
	return nil
}

// MarshalYAML encodes the settings with the type discriminator.
func (o ObserverSettings) MarshalYAML() (interface{}, error) {
	env := o.envelope()
	raw := observerYAML{Type: env.Type, PollInterval: env.PollInterval, MaintenanceValue: env.MaintenanceValue}
	switch o.Type {
	case ObserverSQL:
		if o.SQL == nil {
			return nil, fmt.Errorf("sql observer settings missing")
		}
		raw.Driver, raw.ConnectionString, raw.Query = o.SQL.Driver, o.SQL.ConnectionString, o.SQL.Query
	case ObserverHTTP:
		if o.HTTP == nil {
			return nil, fmt.Errorf("http observer settings missing")
		}
		raw.URL, raw.JSONField = o.HTTP.URL, o.HTTP.JSONField
	case ObserverFile:
		if o.File == nil {
			return nil, fmt.Errorf("file observer settings missing")
		}
		raw.Path, raw.ContentMode = o.File.Path, o.File.ContentMode
	default:
		return nil, fmt.Errorf("unknown observer type %q", o.Type)
	}
	return raw, nil
}

// UnmarshalJSON decodes the variant selected by the type field.
func (o *ObserverSettings) UnmarshalJSON(data []byte) error {
	var env observerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*o = ObserverSettings{}
	if err := o.applyEnvelope(env); err != nil {
		return err
	}
	switch env.Type {
	case ObserverSQL:
		o.SQL = &SQLObserver{}
		return json.Unmarshal(data, o.SQL)
	case ObserverHTTP:
		o.HTTP = &HTTPObserver{}
		return json.Unmarshal(data, o.HTTP)
	case ObserverFile:
		o.File = &FileObserver{}
		return json.Unmarshal(data, o.File)
	default:
		return fmt.Errorf("unknown observer type %q", env.Type)
	}
}

// MarshalJSON encodes the settings with the type discriminator.
func (o ObserverSettings) MarshalJSON() ([]byte, error) {
	env := o.envelope()
	switch o.Type {
	case ObserverSQL:
		if o.SQL == nil {
			return nil, fmt.Errorf("sql observer settings missing")
		}
		return json.Marshal(struct {
			observerEnvelope
			*SQLObserver
		}{env, o.SQL})
	case ObserverHTTP:
		if o.HTTP == nil {
			return nil, fmt.Errorf("http observer settings missing")
		}
		return json.Marshal(struct {
			observerEnvelope
			*HTTPObserver
		}{env, o.HTTP})
	case ObserverFile:
		if o.File == nil {
			return nil, fmt.Errorf("file observer settings missing")
		}
		return json.Marshal(struct {
			observerEnvelope
			*FileObserver
		}{env, o.File})
	default:
		return nil, fmt.Errorf("unknown observer type %q", o.Type)
	}
}
