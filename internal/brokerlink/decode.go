package brokerlink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"thermowatch/internal/model"
)

// Decoder převede surový payload na teplotu ve °C.
type Decoder func(payload []byte) (float64, error)

// Pole, ve kterých hledáme teplotu (v tomto pořadí).
var temperatureFields = []string{"temperature", "temp", "value"}

var errNoTemperature = errors.New("payload has no numeric temperature field")

// DecodeTemperature přijímá JSON objekt {"temperature": 24.5} nebo holé číslo
// "24.5" (formát, který posílají jednoduché senzory). Hodnota musí být konečná.
func DecodeTemperature(payload []byte) (float64, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return 0, errors.New("empty payload")
	}

	var val float64
	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return 0, fmt.Errorf("invalid JSON payload: %w", err)
		}
		found := false
		for _, name := range temperatureFields {
			raw, ok := fields[name]
			if !ok {
				continue
			}
			// Unmarshal do float64 odmítne string, bool i null.
			if err := json.Unmarshal(raw, &val); err != nil || bytes.Equal(raw, []byte("null")) {
				return 0, fmt.Errorf("field %q is not a number: %s", name, raw)
			}
			found = true
			break
		}
		if !found {
			return 0, errNoTemperature
		}
	} else {
		v, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number: %w", trimmed, err)
		}
		val = v
	}

	if !model.IsFinite(val) {
		return 0, fmt.Errorf("value %v is not finite", val)
	}
	return val, nil
}
