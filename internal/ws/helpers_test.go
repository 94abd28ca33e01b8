package ws

import (
	"sync"

	"rtc-service/internal/models"
)

type recordedBroadcast struct {
	RoomID  string
	Event   models.OutboundEvent
	Exclude []string
}

// fakeBroadcaster records fan-out calls instead of delivering them.
type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []recordedBroadcast
	err   error
}

func (f *fakeBroadcaster) Broadcast(roomID string, event models.OutboundEvent, exclude ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedBroadcast{RoomID: roomID, Event: event, Exclude: exclude})
	return f.err
}

func (f *fakeBroadcaster) recorded() []recordedBroadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedBroadcast, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBroadcaster) events(name string) []recordedBroadcast {
	var out []recordedBroadcast
	for _, call := range f.recorded() {
		if call.Event.Event == name {
			out = append(out, call)
		}
	}
	return out
}

type recordedSend struct {
	ConnID string
	Event  models.OutboundEvent
}

// fakeSender records point-to-point sends; unknown connections fail.
type fakeSender struct {
	mu    sync.Mutex
	known map[string]bool
	sends []recordedSend
}

func newFakeSender(connIDs ...string) *fakeSender {
	known := make(map[string]bool, len(connIDs))
	for _, id := range connIDs {
		known[id] = true
	}
	return &fakeSender{known: known}
}

func (f *fakeSender) Send(connID string, event models.OutboundEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[connID] {
		return false
	}
	f.sends = append(f.sends, recordedSend{ConnID: connID, Event: event})
	return true
}

func (f *fakeSender) recorded() []recordedSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedSend, len(f.sends))
	copy(out, f.sends)
	return out
}
