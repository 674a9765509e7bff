package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Format is a bundle file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultMaxFileSize limits the size of bundle files that are read.
const DefaultMaxFileSize = 1 << 20

// FormatFor returns the encoding implied by the extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported template file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
}

// LoadError reports a bundle file that could not be read or decoded.
type LoadError struct {
	FilePath string
	Message  string
	Cause    error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template %s: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("template %s: %s", e.FilePath, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Encode serializes b in the given format.
func Encode(b *Bundle, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported template format %q", format)
}

// Decode parses data in the given format.
func Decode(data []byte, format Format) (*Bundle, error) {
	var b Bundle
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}
	return &b, nil
}

// WriteFile writes b to path, choosing the encoding from the extension. An
// unnamed bundle takes the file name without extension.
func WriteFile(path string, b *Bundle) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	data, err := Encode(b, format)
	if err != nil {
		return fmt.Errorf("failed to encode template %q: %w", b.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}
	return nil
}

// ReadFile reads and decodes the bundle at path. Files larger than maxSize
// bytes are rejected; maxSize <= 0 uses DefaultMaxFileSize.
func ReadFile(path string, maxSize int64) (*Bundle, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	format, err := FormatFor(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "unsupported format", Cause: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > maxSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), maxSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}

	b, err := Decode(data, format)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: fmt.Sprintf("%s parsing failed", strings.ToUpper(string(format))), Cause: err}
	}
	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return b, nil
}
