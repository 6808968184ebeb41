package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Compare with errors.Is; the typed errors below wrap them.
var (
	ErrMissingField          = errors.New("missing required field")
	ErrMissingDirectionData  = errors.New("missing direction data")
	ErrUnknownConfigKey      = errors.New("unknown config key")
	ErrUnknownMetaThing      = errors.New("unknown meta-thing reference")
	ErrDuplicateMetaThing    = errors.New("duplicate meta-thing")
	ErrUnsupportedValueKind  = errors.New("unsupported value kind")
	ErrUnsupportedShape      = errors.New("unsupported shape")
	ErrUnsupportedTerrain    = errors.New("unsupported terrain storage strategy")
	ErrNotImplemented        = errors.New("not implemented")
	ErrFieldTooLong          = errors.New("field too long")
	ErrSectionTooLarge       = errors.New("section too large")
	ErrSchema                = errors.New("schema violation")
	ErrMissingReference      = errors.New("referenced asset not built")
	ErrKeyTableNotAppendOnly = errors.New("key table is not an append-only extension")

	// Decode side.
	ErrTruncated           = errors.New("truncated data")
	ErrSectionSizeMismatch = errors.New("section size mismatch")
	ErrTrailingData        = errors.New("trailing data")
	ErrUnsupportedVersion  = errors.New("unsupported format version")
)

// ValidationError reports a problem with the input document. Field is a dotted
// path into the input ("models[2].modelName", "directions.5") and Index is the
// record index when the field lives in a list, or -1.
type ValidationError struct {
	Err    error
	Field  string
	Index  int
	Detail string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s", e.Field)
		if e.Index >= 0 {
			fmt.Fprintf(&b, ", record %d", e.Index)
		}
		b.WriteString(")")
	} else if e.Index >= 0 {
		fmt.Fprintf(&b, " (record %d)", e.Index)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError that is not tied to a record.
func Invalid(sentinel error, field, detail string) error {
	return &ValidationError{Err: sentinel, Field: field, Index: -1, Detail: detail}
}

// InvalidAt builds a ValidationError for record index i.
func InvalidAt(sentinel error, field string, i int, detail string) error {
	return &ValidationError{Err: sentinel, Field: field, Index: i, Detail: detail}
}

// InvalidJSON turns a failure to decode the input document into a
// ValidationError. The field path is taken from the decoder when it names
// one; otherwise doc names the document.
func InvalidJSON(doc string, err error) error {
	field := doc
	var ute *json.UnmarshalTypeError
	var se *json.SyntaxError
	switch {
	case errors.As(err, &ute):
		if ute.Field != "" {
			field = ute.Field
		}
		return Invalid(ErrSchema, field, fmt.Sprintf("cannot use %s as %s", ute.Value, ute.Type))
	case errors.As(err, &se):
		return Invalid(ErrSchema, field, fmt.Sprintf("%v at offset %d", se, se.Offset))
	}
	return Invalid(ErrSchema, field, err.Error())
}

// IOError reports a filesystem failure while reading inputs or writing outputs.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func NewIOError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIO reports whether err is (or wraps) an IOError.
func IsIO(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
