// Package yamlutil wraps YAML parsing to isolate the external dependency.
// This allows swapping the underlying YAML library without modifying callers.
// It also splits the YAML front matter block that opens site documents.
package yamlutil

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
)

func validateInput(data []byte, v any) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	if v == nil {
		return ErrNilDestination
	}
	return nil
}

func Unmarshal(data []byte, v any) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

func Marshal(v any) ([]byte, error) {
	result, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return result, nil
}

// UnmarshalStrict rejects unknown fields in the input.
func UnmarshalStrict(data []byte, v any) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.Strict()); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// frontMatterFence delimits a front matter block.
var frontMatterFence = []byte("---")

// SplitFrontMatter separates a leading "---" fenced YAML block from the rest
// of a document. head is the block including both fences and the newline
// after the closing one, yaml is the text between the fences, and body is
// everything after head. ok is false when data does not open with a complete
// block, in which case body is data.
func SplitFrontMatter(data []byte) (head, yamlText, body []byte, ok bool) {
	first, rest, found := cutLine(data)
	if !found || !bytes.Equal(bytes.TrimRight(first, " \t\r"), frontMatterFence) {
		return nil, nil, data, false
	}

	offset := len(data) - len(rest)
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		trimmed := bytes.TrimRight(line, " \t\r")
		if bytes.Equal(trimmed, frontMatterFence) || bytes.Equal(trimmed, []byte("...")) {
			start := len(data) - len(rest)
			end := len(data) - len(next)
			return data[:end], data[offset:start], data[end:], true
		}
		rest = next
	}
	return nil, nil, data, false
}

// cutLine splits off the first line, without its "\n". found reports whether
// a newline terminated it.
func cutLine(data []byte) (line, rest []byte, found bool) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i], data[i+1:], true
	}
	return data, nil, false
}
