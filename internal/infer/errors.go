package infer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes resolution errors.
type ErrorCode string

const (
	// CodeUnresolvedReference indicates a path step with no matching element in any scope.
	CodeUnresolvedReference ErrorCode = "UNRESOLVED_REFERENCE"

	// CodeAmbiguousReference indicates an unqualified name present in more than one source.
	CodeAmbiguousReference ErrorCode = "AMBIGUOUS_REFERENCE"

	// CodeDuplicateElement indicates two columns projecting to the same name.
	CodeDuplicateElement ErrorCode = "DUPLICATE_ELEMENT"

	// CodeDuplicateAlias indicates two sources claiming the same alias.
	CodeDuplicateAlias ErrorCode = "DUPLICATE_ALIAS"

	// CodeInvalidFilterPlacement indicates a filter on a step that cannot carry one.
	CodeInvalidFilterPlacement ErrorCode = "INVALID_FILTER_PLACEMENT"

	// CodeRestrictedFilterAccess indicates traversal beyond foreign keys inside an infix filter.
	CodeRestrictedFilterAccess ErrorCode = "RESTRICTED_FILTER_ACCESS"

	// CodeIllegalCast indicates a cast of a structured element or to an unknown type.
	CodeIllegalCast ErrorCode = "ILLEGAL_CAST"

	// CodeSelfReferentialCalculated indicates a calculated element whose value reaches itself.
	CodeSelfReferentialCalculated ErrorCode = "SELF_REFERENTIAL_CALCULATED_ELEMENT"

	// CodeCyclicReference indicates $self columns that reference each other in a cycle.
	CodeCyclicReference ErrorCode = "CYCLIC_REFERENCE"

	// CodeRecursionLimit indicates nesting deeper than the configured maximum depth.
	CodeRecursionLimit ErrorCode = "RECURSION_LIMIT"

	// CodeExpectedAlias indicates an expression column without a name.
	CodeExpectedAlias ErrorCode = "EXPECTED_ALIAS"

	// CodeInvalidExpand indicates expand or inline on an element without nested elements.
	CodeInvalidExpand ErrorCode = "INVALID_EXPAND"

	// CodeInvalidQuery indicates a structurally malformed query.
	CodeInvalidQuery ErrorCode = "INVALID_QUERY"
)

// Error is a resolution error. Every error aborts the resolution of the
// whole query; none is retried.
type Error struct {
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the reference being resolved, in dotted form, if any.
	Path string

	// Candidates lists the source aliases of an ambiguous reference, or the
	// elements of a cycle.
	Candidates []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Candidates, ", "))
	}
	return b.String()
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of a resolution error, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsUnresolvedReference returns true for CodeUnresolvedReference errors.
func IsUnresolvedReference(err error) bool {
	return IsCode(err, CodeUnresolvedReference)
}

// IsAmbiguousReference returns true for CodeAmbiguousReference errors.
func IsAmbiguousReference(err error) bool {
	return IsCode(err, CodeAmbiguousReference)
}

// IsDuplicateElement returns true for CodeDuplicateElement errors.
func IsDuplicateElement(err error) bool {
	return IsCode(err, CodeDuplicateElement)
}

func errorf(code ErrorCode, path string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Path: path}
}

func newAmbiguousError(path, name string, aliases []string) *Error {
	return &Error{
		Code:       CodeAmbiguousReference,
		Message:    fmt.Sprintf("ambiguous reference to %q, qualify it with one of the source aliases", name),
		Path:       path,
		Candidates: aliases,
	}
}

// errDeferred marks a $self reference to a column that is not resolved yet.
var errDeferred = errors.New("reference deferred")
