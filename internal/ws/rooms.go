package ws

import (
	"fmt"
	"hash/fnv"
	"sync"

	"rtc-service/internal/models"
)

const roomShards = 32

// Room id helpers. Rooms are named broadcast scopes; they exist while they
// have members and carry no persistent state.
func WorkspaceRoom(id string) string { return "workspace:" + id }
func ChannelRoom(id string) string   { return "channel:" + id }
func HuddleRoom(id string) string    { return "huddle:" + id }
func UserRoom(id string) string      { return "user:" + id }

// Broadcaster fans an event out to every connection joined to a room.
// Implementations may bridge to an external pub/sub for multi-process
// deployments; callers do not change.
type Broadcaster interface {
	Broadcast(roomID string, event models.OutboundEvent, exclude ...string) error
}

// Sender delivers an event to a single connection.
type Sender interface {
	Send(connID string, event models.OutboundEvent) bool
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Conn
}

// Registry maps room ids to member connections, sharded by room id.
type Registry struct {
	shards [roomShards]*roomBucket

	mu        sync.RWMutex
	conns     map[string]*Conn
	connRooms map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		conns:     make(map[string]*Conn),
		connRooms: make(map[string]map[string]struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &roomBucket{rooms: make(map[string]map[string]*Conn)}
	}
	return r
}

func (r *Registry) bucket(roomID string) *roomBucket {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return r.shards[h.Sum32()%roomShards]
}

// Register makes a connection joinable.
func (r *Registry) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
	r.connRooms[conn.ID] = make(map[string]struct{})
}

// Unregister forgets the connection. LeaveAll should run first.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	delete(r.connRooms, connID)
}

// Join adds the connection to a room. Redundant joins are no-ops.
func (r *Registry) Join(connID, roomID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.connRooms[connID][roomID] = struct{}{}
	r.mu.Unlock()

	b := r.bucket(roomID)
	b.Lock()
	defer b.Unlock()
	if _, ok := b.rooms[roomID]; !ok {
		b.rooms[roomID] = make(map[string]*Conn)
	}
	b.rooms[roomID][connID] = conn
}

// Leave removes the connection from a room. Empty rooms are dropped.
func (r *Registry) Leave(connID, roomID string) {
	r.mu.Lock()
	if rooms, ok := r.connRooms[connID]; ok {
		delete(rooms, roomID)
	}
	r.mu.Unlock()

	b := r.bucket(roomID)
	b.Lock()
	defer b.Unlock()
	if members, ok := b.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
}

// LeaveAll removes the connection from every room it joined.
func (r *Registry) LeaveAll(connID string) {
	r.mu.Lock()
	roomSet := r.connRooms[connID]
	roomIDs := make([]string, 0, len(roomSet))
	for roomID := range roomSet {
		roomIDs = append(roomIDs, roomID)
	}
	r.connRooms[connID] = make(map[string]struct{})
	r.mu.Unlock()

	for _, roomID := range roomIDs {
		b := r.bucket(roomID)
		b.Lock()
		if members, ok := b.rooms[roomID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(b.rooms, roomID)
			}
		}
		b.Unlock()
	}
}

// Broadcast delivers the event to every member of the room except the
// excluded connections. The shard lock is held across the enqueue loop so
// concurrent broadcasts to one room reach every member in the same order;
// Send only enqueues onto a buffered channel and never blocks, so the
// critical section stays short. The error reports how many enqueues failed;
// the caller decides whether that matters.
func (r *Registry) Broadcast(roomID string, event models.OutboundEvent, exclude ...string) error {
	b := r.bucket(roomID)
	b.Lock()
	defer b.Unlock()

	members := b.rooms[roomID]
	total := 0
	failed := 0
	for connID, conn := range members {
		if contains(exclude, connID) {
			continue
		}
		total++
		if !conn.Send(event) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("broadcast %s %s: %d of %d sends failed", roomID, event.Event, failed, total)
	}
	return nil
}

// Send delivers the event to one connection, reporting whether it was
// enqueued. Unknown connections return false.
func (r *Registry) Send(connID string, event models.OutboundEvent) bool {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return conn.Send(event)
}

// Members returns the connection ids currently joined to a room.
func (r *Registry) Members(roomID string) []string {
	b := r.bucket(roomID)
	b.RLock()
	defer b.RUnlock()
	members := make([]string, 0, len(b.rooms[roomID]))
	for connID := range b.rooms[roomID] {
		members = append(members, connID)
	}
	return members
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
