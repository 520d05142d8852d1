package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Amount is a monetary value. Clients encode prices inconsistently, so it
// accepts either a JSON number or a numeric string ("1000", "19.99") and
// normalizes to float64 before validation and storage.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q", s)
		}
		*a = Amount(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

func (a Amount) Float64() float64 {
	return float64(a)
}
