package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/box-go/internal/events"
)

func TestSink_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()

	sink, err := NewSink(reg)
	require.NoError(t, err)

	sink.Emit(events.Event{Kind: events.KindRetry, StatusCode: 503, Backoff: time.Second})
	sink.Emit(events.Event{Kind: events.KindRetry, StatusCode: 503, Backoff: 2 * time.Second})
	sink.Emit(events.Event{Kind: events.KindRetriesExhausted, StatusCode: 503})
	sink.Emit(events.Event{Kind: events.KindTokenRefreshed})

	assert.InDelta(t, 2, testutil.ToFloat64(sink.events.WithLabelValues("retry")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(sink.events.WithLabelValues("retries_exhausted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(sink.events.WithLabelValues("token_refreshed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(sink.status.WithLabelValues("503")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(sink.backoff))
}

func TestNewSink_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewSink(reg)
	require.NoError(t, err)

	_, err = NewSink(reg)
	require.Error(t, err)
}

func TestNewSink_FailedRegistrationRollsBack(t *testing.T) {
	reg := prometheus.NewRegistry()

	clash := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "box_sdk",
		Name:      "retried_responses_total",
		Help:      "Retried or exhausted requests by HTTP status (0 = network error).",
	})
	require.NoError(t, reg.Register(clash))

	_, err := NewSink(reg)
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, f := range families {
		assert.Equal(t, "box_sdk_retried_responses_total", f.GetName())
	}

	require.True(t, reg.Unregister(clash))

	_, err = NewSink(reg)
	require.NoError(t, err)
}
