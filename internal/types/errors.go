package types

import (
	"fmt"
	"strings"
)

// FormatErrorKind classifies a FormatError
type FormatErrorKind string

// Format error kinds
const (
	FormatNotFound           FormatErrorKind = "not_found"           // required element or file absent
	FormatInvalidStructure   FormatErrorKind = "invalid_structure"   // malformed or missing marker
	FormatUnsupportedVersion FormatErrorKind = "unsupported_version" // recognised but too old/new
	FormatInvalidEncoding    FormatErrorKind = "invalid_encoding"
)

// FormatError reports a malformed or unsupported source.
type FormatError struct {
	Format Format
	Kind   FormatErrorKind
	Path   string
	Msg    string
	Err    error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Format))
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FormatError) Unwrap() error { return e.Err }

// NewFormatError builds a FormatError with a formatted message.
func NewFormatError(format Format, kind FormatErrorKind, path, msg string, args ...any) *FormatError {
	return &FormatError{Format: format, Kind: kind, Path: path, Msg: fmt.Sprintf(msg, args...)}
}

// NotFoundError reports a missing file, project, or referenced scene.
type NotFoundError struct {
	Kind string // "file", "project", "scene", ...
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// PreconditionError reports an operation that cannot run in the current state.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Msg
}

// PartialApplyWarning records one accepted item that could not be applied.
// It is non-fatal.
type PartialApplyWarning struct {
	ItemID   string   `json:"item_id"`
	ItemType ItemKind `json:"item_type,omitempty"`
	Reason   string   `json:"reason"`
}

func (w PartialApplyWarning) Error() string {
	if w.ItemType != "" {
		return fmt.Sprintf("skipped %s %s: %s", w.ItemType, w.ItemID, w.Reason)
	}
	return fmt.Sprintf("skipped %s: %s", w.ItemID, w.Reason)
}

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
