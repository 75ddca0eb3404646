package bus

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// Deliverer is the push collaborator that physically moves an event to a
// remote client. Delivery is best-effort: errors are counted and logged,
// never propagated to publishers.
type Deliverer interface {
	Deliver(connectionID string, event Event) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(connectionID string, event Event) error

// Deliver calls f.
func (f DelivererFunc) Deliver(connectionID string, event Event) error {
	return f(connectionID, event)
}

// deliverySlack is the extra queue headroom beyond a full history replay.
const deliverySlack = 64

// subscriber pairs a connection with its room memberships and the queue
// its delivery goroutine drains. One goroutine per subscriber keeps
// events to a single connection in publish order while connections stay
// independent of each other.
type subscriber struct {
	conn  *models.Connection
	rooms []string
	queue chan Event
}

// Bus maintains the connection registry, room membership, and the bounded
// replay history.
type Bus struct {
	deliverer Deliverer
	clock     sched.Clock

	// mu protects subs, rooms, and history.
	mu   sync.RWMutex
	subs map[string]*subscriber
	// rooms maps room name to the set of connection IDs in it.
	rooms map[string]map[string]bool
	// history is a ring of the most recent events, oldest first.
	history    []Event
	historyCap int

	// wg tracks in-flight deliveries so tests and shutdown can drain them.
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// New creates a Bus delivering through the given collaborator and keeping
// at most historyCap events for replay.
func New(deliverer Deliverer, clock sched.Clock, historyCap int) *Bus {
	if historyCap <= 0 {
		historyCap = 100
	}
	return &Bus{
		deliverer:  deliverer,
		clock:      clock,
		subs:       make(map[string]*subscriber),
		rooms:      make(map[string]map[string]bool),
		historyCap: historyCap,
	}
}

// Register creates a connection for the given role and subscribes it to its
// agent room, its project room (when projectID is non-empty), and global.
// Recent history is replayed to the new connection before it sees live
// events.
func (b *Bus) Register(agentRole, sessionID, projectID string) (*models.Connection, error) {
	if agentRole == "" {
		return nil, fmt.Errorf("register connection: empty agent role: %w", models.ErrValidation)
	}

	now := b.clock.Now()
	conn := &models.Connection{
		ID:          uuid.New().String(),
		AgentRole:   agentRole,
		SessionID:   sessionID,
		ProjectID:   projectID,
		Status:      models.ConnectionActive,
		ConnectedAt: now,
		LastSeen:    now,
	}

	rooms := []string{RoomGlobal, AgentRoom(agentRole)}
	if projectID != "" {
		rooms = append(rooms, ProjectRoom(projectID))
	}

	sub := &subscriber{
		conn:  conn,
		rooms: rooms,
		queue: make(chan Event, b.historyCap+deliverySlack),
	}

	b.mu.Lock()
	b.subs[conn.ID] = sub
	for _, room := range rooms {
		if b.rooms[room] == nil {
			b.rooms[room] = make(map[string]bool)
		}
		b.rooms[room][conn.ID] = true
	}
	// Replay is queued under the lock, so any publish that happens after
	// registration lands behind it in the same queue.
	for _, ev := range b.history {
		b.enqueueLocked(sub, ev)
	}
	b.mu.Unlock()

	go b.drain(sub)
	return conn.Clone(), nil
}

// Disconnect removes the connection and announces the departure to the
// global room.
func (b *Bus) Disconnect(connectionID string) error {
	b.mu.Lock()
	sub, ok := b.subs[connectionID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("connection %s: %w", connectionID, models.ErrNotFound)
	}
	b.removeLocked(connectionID, sub)
	role := sub.conn.AgentRole
	b.mu.Unlock()

	b.Publish(Event{
		Type:      EventAgentStatus,
		AgentRole: role,
		Message:   "disconnected",
	})
	return nil
}

// removeLocked drops the subscriber from every room it joined and closes
// its queue, letting the delivery goroutine finish the backlog and exit.
// Enqueues happen only under b.mu, so nothing can send after the close.
func (b *Bus) removeLocked(connectionID string, sub *subscriber) {
	sub.conn.Status = models.ConnectionClosed
	delete(b.subs, connectionID)
	for _, room := range sub.rooms {
		if members := b.rooms[room]; members != nil {
			delete(members, connectionID)
			if len(members) == 0 {
				delete(b.rooms, room)
			}
		}
	}
	close(sub.queue)
}

// Touch refreshes the connection's LastSeen, keeping the idle sweep away.
func (b *Bus) Touch(connectionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[connectionID]
	if !ok {
		return fmt.Errorf("connection %s: %w", connectionID, models.ErrNotFound)
	}
	sub.conn.LastSeen = b.clock.Now()
	return nil
}

// Publish delivers the event to the global room.
func (b *Bus) Publish(event Event) {
	b.publishRooms(event, []string{RoomGlobal})
}

// PublishToAgents delivers the event to the agent rooms of the given roles
// only.
func (b *Bus) PublishToAgents(event Event, roles ...string) {
	rooms := make([]string, 0, len(roles))
	for _, role := range roles {
		rooms = append(rooms, AgentRoom(role))
	}
	b.publishRooms(event, rooms)
}

// PublishToProject delivers the event to the project room.
func (b *Bus) PublishToProject(event Event, projectID string) {
	b.publishRooms(event, []string{ProjectRoom(projectID)})
}

// publishRooms stamps the event, records it in history, and queues it for
// every connection in the target rooms. Each subscriber's queue preserves
// publish order for that connection; a slow or failed connection never
// holds up the rest, it just falls behind until its queue fills and
// further events are dropped.
func (b *Bus) publishRooms(event Event, rooms []string) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.Timestamp = b.clock.Now()

	seen := make(map[string]bool)
	b.mu.Lock()
	b.appendHistoryLocked(event)
	for _, room := range rooms {
		for connID := range b.rooms[room] {
			if seen[connID] {
				continue
			}
			seen[connID] = true
			if sub, ok := b.subs[connID]; ok {
				b.enqueueLocked(sub, event)
			}
		}
	}
	b.mu.Unlock()
}

// enqueueLocked queues one event for one subscriber without blocking.
// Called with b.mu held; a full queue counts as a drop.
func (b *Bus) enqueueLocked(sub *subscriber, event Event) {
	b.wg.Add(1)
	select {
	case sub.queue <- event:
	default:
		b.wg.Done()
		count := b.dropped.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[bus] WARNING: delivery queue for %s full (total dropped: %d)", sub.conn.ID, count)
		}
	}
}

// drain delivers the subscriber's queued events one at a time, in order,
// until the queue is closed by removeLocked.
func (b *Bus) drain(sub *subscriber) {
	for event := range sub.queue {
		if err := b.deliverer.Deliver(sub.conn.ID, event); err != nil {
			count := b.dropped.Add(1)
			if count%10 == 1 { // Log every 10th drop to avoid spam
				log.Printf("[bus] WARNING: delivery to %s failed (total dropped: %d): %v", sub.conn.ID, count, err)
			}
			b.wg.Done()
			continue
		}
		b.mu.Lock()
		if s, ok := b.subs[sub.conn.ID]; ok {
			s.conn.LastSeen = b.clock.Now()
		}
		b.mu.Unlock()
		b.wg.Done()
	}
}

// appendHistoryLocked records the event, evicting the oldest once full.
func (b *Bus) appendHistoryLocked(event Event) {
	if len(b.history) >= b.historyCap {
		b.history = b.history[1:]
	}
	b.history = append(b.history, event)
}

// History returns up to limit of the most recent events, oldest first.
// A limit of 0 returns everything retained.
func (b *Bus) History(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.history
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]Event(nil), events...)
}

// Connections returns copies of the active connections, ordered by connect
// time then id.
func (b *Bus) Connections() []*models.Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conns := make([]*models.Connection, 0, len(b.subs))
	for _, sub := range b.subs {
		conns = append(conns, sub.conn.Clone())
	}
	sort.Slice(conns, func(i, j int) bool {
		if !conns[i].ConnectedAt.Equal(conns[j].ConnectedAt) {
			return conns[i].ConnectedAt.Before(conns[j].ConnectedAt)
		}
		return conns[i].ID < conns[j].ID
	})
	return conns
}

// SweepIdle disconnects connections idle past the threshold. Timestamps
// are checked at sweep time, so a connection touched after the sweep was
// scheduled survives. Returns the number reaped.
func (b *Bus) SweepIdle(threshold time.Duration) int {
	cutoff := b.clock.Now().Add(-threshold)

	var reaped []*subscriber
	b.mu.Lock()
	for _, sub := range b.subs {
		if sub.conn.LastSeen.Before(cutoff) {
			reaped = append(reaped, sub)
		}
	}
	for _, sub := range reaped {
		b.removeLocked(sub.conn.ID, sub)
	}
	b.mu.Unlock()

	for _, sub := range reaped {
		b.Publish(Event{
			Type:      EventAgentStatus,
			AgentRole: sub.conn.AgentRole,
			Message:   "disconnected",
		})
	}
	return len(reaped)
}

// Dropped returns the number of failed deliveries since start.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Flush blocks until all in-flight deliveries have finished. Used by tests
// and shutdown; publishers never wait on it.
func (b *Bus) Flush() {
	b.wg.Wait()
}
