package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisher_StampFillsIdentity(t *testing.T) {
	p := &NATSPublisher{server: "gateway-1"}

	stamped := p.stamp(Exchange{UserID: 9, Path: "text", Outcome: OutcomeFallback, ErrorKind: "timeout"})
	assert.NotEmpty(t, stamped.ID)
	assert.NotZero(t, stamped.Timestamp)
	assert.Equal(t, "gateway-1", stamped.Server)

	kept := p.stamp(Exchange{ID: "fixed", Timestamp: 10})
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, int64(10), kept.Timestamp)
}

func TestExchangeJSONOmitsEmptyErrorKind(t *testing.T) {
	data, err := json.Marshal(Exchange{ID: "1", Path: "command", Outcome: OutcomeOK})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "error_kind")
	assert.Contains(t, string(data), `"outcome":"ok"`)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Exchange{}))
	assert.NoError(t, p.Close())
}
