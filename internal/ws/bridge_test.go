package ws

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/models"
	"rtc-service/internal/observability"
)

type capturingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *capturingPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func TestBridgedBroadcastPublishesRoutingKey(t *testing.T) {
	publisher := &capturingPublisher{}
	observability.SetPublisher(publisher)
	defer observability.SetPublisher(nil)

	local := &fakeBroadcaster{}
	bridge := NewBridgedBroadcaster(local)

	err := bridge.Broadcast(ChannelRoom("c1"), models.OutboundEvent{Event: "message:new"}, "conn1")
	require.NoError(t, err)

	require.Len(t, local.recorded(), 1)
	assert.Equal(t, []string{"conn1"}, local.recorded()[0].Exclude)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.keys, 1)
	assert.Equal(t, "fabric.channel", publisher.keys[0])
}

func TestBridgedBroadcastReturnsLocalError(t *testing.T) {
	observability.SetPublisher(nil)

	local := &fakeBroadcaster{err: assert.AnError}
	bridge := NewBridgedBroadcaster(local)

	err := bridge.Broadcast(WorkspaceRoom("w1"), models.OutboundEvent{Event: "presence:changed"})
	assert.ErrorIs(t, err, assert.AnError)
}
