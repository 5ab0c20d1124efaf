package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"thermowatch/internal/brokerlink"
	"thermowatch/internal/model"
)

func TestReadingCounters(t *testing.T) {
	m := New("test")
	limit := 30.0

	m.ReadingRecorded(model.Reading{Value: 25})
	m.ReadingRecorded(model.Reading{Value: 31, ThresholdValue: &limit})
	m.ReadingsCleared(2)
	m.ThresholdAppended(30)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readingsExceeded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsCleared))
	assert.Equal(t, 31.0, testutil.ToFloat64(m.lastReading))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.lastThreshold))
}

func TestLinkObserver(t *testing.T) {
	m := New("test")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkState.WithLabelValues("disconnected")))

	m.OnStateChange(brokerlink.Disconnected, brokerlink.Connected)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.linkState.WithLabelValues("disconnected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkState.WithLabelValues("connected")))

	m.OnError(&brokerlink.Error{Kind: brokerlink.DecodeError, Err: errors.New("bad")})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkErrors.WithLabelValues("decode_error")))

	m.OnValue(model.LiveReading{Value: 22.5})
	assert.Equal(t, 22.5, testutil.ToFloat64(m.liveValue))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.ThresholdAppended(30)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "thermowatch_threshold_appends_total"))
}
