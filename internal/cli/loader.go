package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/qinfer/internal/compiler"
	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeLoadFailed   = "E004" // CUE load or build failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeStoreFailed  = "E008" // Resolution log error
	ErrCodeBadQuery     = "E009" // Query input unreadable or malformed
	ErrCodeNoModel      = "E010" // No model configured
	ErrCodeInvalidModel = "E110" // Entity definition does not compile
	ErrCodeInvalidNamed = "E111" // Named query does not decode
	ErrCodeLinkFailed   = "E112" // Model does not link (e.g., cyclic foreign keys)
	ErrCodeValidation   = "E120" // Model validation failed; individual findings carry E120-E127
)

// LoadError represents an error that occurred while loading a model.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModel loads and compiles a model. Validation findings are returned
// as compiler.ValidationErrors; every other failure as a *LoadError.
func LoadModel(path string) (*compiler.Compiled, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model not found: %s", path)}
	}
	compiled, err := compiler.LoadModel(path)
	if err != nil {
		return nil, classifyLoadError(err)
	}
	return compiled, nil
}

// classifyLoadError converts a compiler error to a LoadError with position info.
func classifyLoadError(err error) error {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	if csn.IsModelError(err) {
		return &LoadError{Code: ErrCodeLinkFailed, Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "entities" || strings.HasPrefix(field, "entities."):
		return ErrCodeInvalidModel
	case field == "queries" || strings.HasPrefix(field, "queries."):
		return ErrCodeInvalidNamed
	default:
		return ErrCodeLoadFailed
	}
}

// loadErrorDetails returns the code and message of a LoadModel error.
func loadErrorDetails(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return ErrCodeValidation, verrs.Error()
	}
	return ErrCodeGeneric, err.Error()
}

// ReadQuery reads a query in the JSON query notation. arg is "-" for
// stdin, inline JSON when it starts with "{", and a file path otherwise.
func ReadQuery(arg string, stdin io.Reader) (cqn.Query, error) {
	var data []byte
	var err error
	switch {
	case arg == "-":
		data, err = io.ReadAll(stdin)
	case strings.HasPrefix(strings.TrimSpace(arg), "{"):
		data = []byte(arg)
	default:
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty query")
	}
	return cqn.Unmarshal(data)
}
