package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexID is an identifier decoded from either a JSON number or a numeric string.
type FlexID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: id %q", ErrInvalidArgument, string(data))
	}
	*id = FlexID(v)
	return nil
}

// Int64 returns the id as an int64.
func (id FlexID) Int64() int64 {
	return int64(id)
}
