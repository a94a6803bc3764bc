package client

import (
	"slices"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"

	"github.com/grafana/cqlclient/pkg/driver"
)

// TimestampLayout is the layout used by Value.FormattedTimestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	textTypes      = []gocql.Type{gocql.TypeAscii, gocql.TypeVarchar, gocql.TypeText}
	timestampTypes = []gocql.Type{gocql.TypeTimestamp}
	int32Types     = []gocql.Type{gocql.TypeInt}
	int64Types     = []gocql.Type{gocql.TypeBigInt, gocql.TypeCounter}
	boolTypes      = []gocql.Type{gocql.TypeBoolean}
)

// noCopy lets go vet's copylocks check flag copies of a Value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Value is one cell of a Row. It is a view into data owned by the Result and
// is only handed out by pointer. Decoding is type directed: asking for a type
// that does not match the cell's declared type fails with a
// *TypeMismatchError.
type Value struct {
	_ noCopy

	result *Result
	cell   *driver.Value
	err    error
}

// Type returns the declared type of the cell.
func (v *Value) Type() gocql.Type {
	if v.cell == nil {
		return gocql.TypeCustom
	}
	return v.cell.Type()
}

// IsNull reports whether the cell holds a CQL null.
func (v *Value) IsNull() bool {
	return v.cell != nil && v.cell.IsNull()
}

func (v *Value) raw(want []gocql.Type) (interface{}, error) {
	switch {
	case v.err != nil:
		return nil, v.err
	case v.result.closed.Load():
		return nil, ErrResultClosed
	}
	if typ := v.cell.Type(); !slices.Contains(want, typ) {
		return nil, &TypeMismatchError{Want: want, Got: typ}
	}
	if v.cell.IsNull() {
		return nil, ErrNullValue
	}
	return v.cell.Raw(), nil
}

func unexpected(raw interface{}, typ gocql.Type) error {
	return errors.Errorf("unexpected %T representation for %s value", raw, typ)
}

// Text decodes an ascii, varchar or text cell.
func (v *Value) Text() (string, error) {
	raw, err := v.raw(textTypes)
	if err != nil {
		return "", err
	}
	s, ok := raw.(string)
	if !ok {
		return "", unexpected(raw, v.Type())
	}
	return s, nil
}

// Timestamp decodes a timestamp cell. The result is in UTC with millisecond
// precision.
func (v *Value) Timestamp() (time.Time, error) {
	raw, err := v.raw(timestampTypes)
	if err != nil {
		return time.Time{}, err
	}
	ms, ok := raw.(int64)
	if !ok {
		return time.Time{}, unexpected(raw, v.Type())
	}
	return time.UnixMilli(ms).UTC(), nil
}

// FormattedTimestamp decodes a timestamp cell and formats it with
// TimestampLayout.
func (v *Value) FormattedTimestamp() (string, error) {
	t, err := v.Timestamp()
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// FormatTimestamp formats t in UTC with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Int32 decodes an int cell.
func (v *Value) Int32() (int32, error) {
	raw, err := v.raw(int32Types)
	if err != nil {
		return 0, err
	}
	i, ok := raw.(int32)
	if !ok {
		return 0, unexpected(raw, v.Type())
	}
	return i, nil
}

// Int64 decodes a bigint or counter cell.
func (v *Value) Int64() (int64, error) {
	raw, err := v.raw(int64Types)
	if err != nil {
		return 0, err
	}
	i, ok := raw.(int64)
	if !ok {
		return 0, unexpected(raw, v.Type())
	}
	return i, nil
}

// Bool decodes a boolean cell.
func (v *Value) Bool() (bool, error) {
	raw, err := v.raw(boolTypes)
	if err != nil {
		return false, err
	}
	b, ok := raw.(bool)
	if !ok {
		return false, unexpected(raw, v.Type())
	}
	return b, nil
}
