package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard-sdk/pkg/types"
)

func TestCollector_RecordsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, prometheus.Labels{"user_id": "alice"})

	c.MessageReceived(types.MessageTypeSystem)
	c.MessageReceived(types.MessageTypeSystem)
	c.MessageSent(types.MessageTypeAnalytics)
	c.DecodeError()
	c.HandlerFailure("message")
	c.ReconnectAttempt()
	c.SetState(types.StateConnected)
	c.Error(types.KindConnectionLost)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesReceived.WithLabelValues("system")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesSent.WithLabelValues("analytics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handlerFailures.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnectAttempts))
	assert.Equal(t, float64(types.StateConnected), testutil.ToFloat64(c.connectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("connection_lost")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollector_IndependentDefaultRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nil, nil)
		NewCollector(nil, nil)
	})
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.MessageReceived(types.MessageTypeRequest)
		c.MessageSent(types.MessageTypeRequest)
		c.DecodeError()
		c.HandlerFailure("error")
		c.ReconnectAttempt()
		c.SetState(types.StateFailed)
		c.Error(types.KindDecode)
	})
}
