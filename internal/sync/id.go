package sync

import (
	"bytes"
	"fmt"
	"strconv"
)

// ID is a durable backend identifier. Invoice and accounting entry ids
// can exceed 2^53, so IDs always marshal as decimal strings; numeric
// literals are still accepted on input for backward compatibility.
type ID int64

// String returns the decimal representation.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 returns the raw value.
func (id ID) Int64() int64 {
	return int64(id)
}

// MarshalJSON emits the id as a decimal string.
func (id ID) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, id.String()), nil
}

// UnmarshalJSON accepts either a decimal string or a numeric literal.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("sync: empty id")
	}
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("sync: malformed id %s", data)
		}
		data = []byte(unquoted)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("sync: malformed id %q", data)
	}
	*id = ID(v)
	return nil
}

// NewID wraps a raw identifier.
func NewID(v int64) *ID {
	id := ID(v)
	return &id
}
