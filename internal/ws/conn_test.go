package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtc-service/internal/models"
)

func TestConnSendAfterClose(t *testing.T) {
	conn := newTestConn("u1")

	assert.True(t, conn.Send(models.OutboundEvent{Event: "message:new"}))

	conn.Close()
	conn.Close()

	assert.True(t, conn.Closed())
	assert.False(t, conn.Send(models.OutboundEvent{Event: "message:new"}))
}

func TestConnFullBufferCloses(t *testing.T) {
	conn := newTestConn("u1")

	for i := 0; i < sendBufSize; i++ {
		assert.True(t, conn.Send(models.OutboundEvent{Event: "message:new"}))
	}

	// no writer is draining, so the next enqueue marks the peer dead
	assert.False(t, conn.Send(models.OutboundEvent{Event: "message:new"}))
	assert.True(t, conn.Closed())
}
