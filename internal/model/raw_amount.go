package model

import (
	"bytes"
	"encoding/json"
)

// RawAmount captures a JSON number or string verbatim.
type RawAmount string

func (r *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawAmount(s)
		return nil
	}
	*r = RawAmount(data)
	return nil
}
