package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrFilmNotFound is returned when the target film row does not exist.
	ErrFilmNotFound = errors.New("film not found")
	// ErrQueueClosed is returned by avatar queues after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

// Supported error kinds.
const (
	KindFetch    ErrorKind = "fetch"
	KindParse    ErrorKind = "parse"
	KindField    ErrorKind = "field"
	KindDatabase ErrorKind = "database"
	KindUnknown  ErrorKind = "unknown"
)

// FetchError reports a transport failure or non-2xx response. Always fatal.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a missing or invalid structured-data block. Always fatal.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse: " + e.Reason
	}
	return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FieldExtractionError reports a single field or list item that could not be
// extracted. It is logged where it happens and never returned from Parse.
// Index is -1 for scalar fields.
type FieldExtractionError struct {
	Field    string
	Index    int
	Fragment string
	Err      error
}

func (e *FieldExtractionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("extract %s[%d]: %v", e.Field, e.Index, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
}

func (e *FieldExtractionError) Unwrap() error { return e.Err }

// DatabaseError reports a failed ingestion statement. Phase names the step
// (update_film, commit, insert_lookup, ...); Entity names the offending item.
type DatabaseError struct {
	Phase  string
	Entity string
	Err    error
}

func (e *DatabaseError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("database %s %q: %v", e.Phase, e.Entity, e.Err)
	}
	return fmt.Sprintf("database %s: %v", e.Phase, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Kind returns the classification of err, looking through wrapping.
func Kind(err error) ErrorKind {
	var (
		fetchErr *FetchError
		parseErr *ParseError
		fieldErr *FieldExtractionError
		dbErr    *DatabaseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &fieldErr):
		return KindField
	case errors.As(err, &dbErr):
		return KindDatabase
	default:
		return KindUnknown
	}
}
