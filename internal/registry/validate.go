package registry

import (
	"fmt"
	"os"
	"strings"
)

// FieldError describes one invalid definition field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates per-field failures for a definition payload.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid app definition: " + strings.Join(parts, "; ")
}

// Validate checks a definition before it enters the registry. Path must be
// an existing directory; entry must look like "module:callable"; port must
// be a valid TCP port.
func Validate(d Definition) error {
	var fields []FieldError
	add := func(field, msg string) { fields = append(fields, FieldError{Field: field, Message: msg}) }

	if strings.TrimSpace(d.Name) == "" {
		add("name", "name is required")
	}
	switch path := strings.TrimSpace(d.Path); {
	case path == "":
		add("path", "path is required")
	default:
		if fi, err := os.Stat(path); err != nil {
			add("path", "path does not exist")
		} else if !fi.IsDir() {
			add("path", "path must be a directory")
		}
	}
	switch entry := strings.TrimSpace(d.Entry); {
	case entry == "":
		add("entry", "entry is required (example: main:app)")
	case !strings.Contains(entry, ":"):
		add("entry", "entry must look like 'module:app'")
	}
	if strings.TrimSpace(d.Host) == "" {
		add("host", "host is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		add("port", fmt.Sprintf("port must be between 1 and 65535, got %d", d.Port))
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Normalize trims whitespace and applies defaults prior to validation.
func Normalize(d Definition) Definition {
	d.Name = strings.TrimSpace(d.Name)
	d.Path = strings.TrimSpace(d.Path)
	d.Entry = strings.TrimSpace(d.Entry)
	d.Host = strings.TrimSpace(d.Host)
	if d.Host == "" {
		d.Host = "127.0.0.1"
	}
	d.Args = strings.TrimSpace(d.Args)
	return d
}
