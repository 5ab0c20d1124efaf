package brokerlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTemperature(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    float64
		wantErr bool
	}{
		{"json temperature", `{"temperature": 24.5}`, 24.5, false},
		{"json temp alias", `{"temp": -3}`, -3, false},
		{"json value alias", `{"value": 18.25, "unit": "C"}`, 18.25, false},
		{"bare number", " 21.75\n", 21.75, false},
		{"string field", `{"temperature": "24.5"}`, 0, true},
		{"null field", `{"temperature": null}`, 0, true},
		{"missing field", `{"humidity": 40}`, 0, true},
		{"broken json", `{"temperature": `, 0, true},
		{"not a number", "hot", 0, true},
		{"nan", "NaN", 0, true},
		{"inf", "+Inf", 0, true},
		{"empty", "  ", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTemperature([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
