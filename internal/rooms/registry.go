package rooms

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"codecollab/internal/protocol"
)

// DefaultLanguage is what a freshly created room starts with.
const DefaultLanguage = "javascript"

// Sender is the outbound half of one member's connection. Enqueue must
// not block: it reports false when the member can no longer accept
// frames (buffer full or connection gone), which the registry treats as
// that member's disconnect.
type Sender interface {
	Enqueue(frame []byte) bool
	Close()
}

// Bridge mirrors room events to other service instances. Optional; the
// registry works standalone when none is set.
type Bridge interface {
	Publish(roomID string, frame []byte)
	Subscribe(roomID string)
	Unsubscribe(roomID string)
}

type member struct {
	id   string
	name string
	send Sender
}

// room is the unit of serialization: mu covers membership, document,
// language and the fan-out enqueue, so every member observes the same
// per-room event sequence.
type room struct {
	id       string
	mu       sync.Mutex
	members  []*member
	document string
	language string
	closed   bool // set once the registry has dropped the room
}

// Snapshot is a point-in-time copy of one room's state.
type Snapshot struct {
	RoomID   string
	Members  []string
	Document string
	Language string
}

// Registry is the single source of truth for room membership, document
// and language. Operations on different rooms proceed concurrently;
// operations on the same room are serialized by the room's lock.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	bridge Bridge
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// SetBridge wires cross-instance fan-out. Call before serving traffic.
func (reg *Registry) SetBridge(b Bridge) { reg.bridge = b }

// getOrCreate returns the live room for id, creating it on first join.
func (reg *Registry) getOrCreate(id string) *room {
	reg.mu.RLock()
	r, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	r, ok = reg.rooms[id]
	if !ok {
		r = &room{id: id, language: DefaultLanguage}
		reg.rooms[id] = r
	}
	reg.mu.Unlock()

	if !ok && reg.bridge != nil {
		reg.bridge.Subscribe(id)
	}
	return r
}

func (reg *Registry) get(id string) *room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// dropIfEmpty removes the room from the map once its last member is
// gone. Rechecked under both locks: a join may have raced the leave.
func (reg *Registry) dropIfEmpty(r *room) {
	reg.mu.Lock()
	r.mu.Lock()
	empty := len(r.members) == 0 && !r.closed
	if empty {
		r.closed = true
		delete(reg.rooms, r.id)
	}
	r.mu.Unlock()
	reg.mu.Unlock()

	if empty {
		zap.L().Info("room.closed", zap.String("room", r.id))
		if reg.bridge != nil {
			reg.bridge.Unsubscribe(r.id)
		}
	}
}

// Join registers the connection under roomID and returns the updated
// member-name list. The joiner first receives the room's current state
// (document, if any, and language), then everyone including the joiner
// receives the full membership list.
func (reg *Registry) Join(roomID, connID, name string, s Sender) []string {
	var r *room
	for {
		r = reg.getOrCreate(roomID)
		r.mu.Lock()
		if !r.closed {
			break
		}
		// Lost a race against the last leave; the map entry is gone.
		r.mu.Unlock()
	}

	r.members = append(r.members, &member{id: connID, name: name, send: s})
	names := r.memberNamesLocked()

	if r.document != "" {
		s.Enqueue(protocol.CodeUpdate(r.document))
	}
	s.Enqueue(protocol.LanguageUpdate(r.language))

	failed := r.broadcastLocked(protocol.UserJoined(names), "")
	count := len(r.members)
	r.mu.Unlock()

	zap.L().Info("room.join",
		zap.String("room", roomID), zap.String("user", name), zap.Int("members", count))
	reg.dropFailed(roomID, failed)
	return names
}

// Leave removes the connection from the room. Idempotent: leaving a
// room you are not in, or an unknown room, is a no-op. Remaining
// members receive the updated membership list; an emptied room is
// deleted.
func (reg *Registry) Leave(roomID, connID string) {
	r := reg.get(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	removed := false
	for i, m := range r.members {
		if m.id == connID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		r.mu.Unlock()
		return
	}
	var failed []*member
	if len(r.members) > 0 {
		failed = r.broadcastLocked(protocol.UserJoined(r.memberNamesLocked()), "")
	}
	empty := len(r.members) == 0
	r.mu.Unlock()

	zap.L().Info("room.leave", zap.String("room", roomID), zap.String("conn", connID))
	reg.dropFailed(roomID, failed)
	if empty {
		reg.dropIfEmpty(r)
	}
}

// SetDocument replaces the room's buffer with code (whole-buffer,
// last-writer-wins) and fans the new text out to every member except
// the originator. Reports whether the connection was a room member.
func (reg *Registry) SetDocument(roomID, connID, code string) bool {
	r := reg.get(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	if r.memberLocked(connID) == nil {
		r.mu.Unlock()
		return false
	}
	r.document = code
	frame := protocol.CodeUpdate(code)
	failed := r.broadcastLocked(frame, connID)
	r.mu.Unlock()

	reg.publish(roomID, frame)
	reg.dropFailed(roomID, failed)
	return true
}

// SetLanguage replaces the room's language and fans it out to every
// member except the originator.
func (reg *Registry) SetLanguage(roomID, connID, language string) bool {
	r := reg.get(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	if r.memberLocked(connID) == nil {
		r.mu.Unlock()
		return false
	}
	r.language = language
	frame := protocol.LanguageUpdate(language)
	failed := r.broadcastLocked(frame, connID)
	r.mu.Unlock()

	reg.publish(roomID, frame)
	reg.dropFailed(roomID, failed)
	return true
}

// Typing fans a typing pulse out to every member except the sender. No
// state changes and no server-side debounce: receivers own the 2 s
// display decay. The broadcast name is the sender's registered display
// name, not whatever the payload claimed.
func (reg *Registry) Typing(roomID, connID string) bool {
	r := reg.get(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	m := r.memberLocked(connID)
	if m == nil {
		r.mu.Unlock()
		return false
	}
	frame := protocol.UserTyping(m.name)
	failed := r.broadcastLocked(frame, connID)
	r.mu.Unlock()

	reg.publish(roomID, frame)
	reg.dropFailed(roomID, failed)
	return true
}

// BroadcastAll delivers frame to every member of the room with no
// exclusion. Used for execution results, which the requester needs too.
// Unknown rooms are a no-op.
func (reg *Registry) BroadcastAll(roomID string, frame []byte) {
	reg.publish(roomID, frame)

	r := reg.get(roomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	failed := r.broadcastLocked(frame, "")
	r.mu.Unlock()
	reg.dropFailed(roomID, failed)
}

// ApplyRemote handles a frame relayed from another instance via the
// bridge: document and language frames update local room state so late
// joiners converge, then every local member receives the frame.
func (reg *Registry) ApplyRemote(roomID, event string, frame, body []byte) {
	r := reg.get(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	switch event {
	case protocol.EventCodeUpdate:
		var code string
		if err := json.Unmarshal(body, &code); err == nil {
			r.document = code
		}
	case protocol.EventLanguageUpdate:
		var language string
		if err := json.Unmarshal(body, &language); err == nil {
			r.language = language
		}
	}
	failed := r.broadcastLocked(frame, "")
	r.mu.Unlock()
	reg.dropFailed(roomID, failed)
}

// Snapshot returns a copy of the room's current state.
func (reg *Registry) Snapshot(roomID string) (Snapshot, bool) {
	r := reg.get(roomID)
	if r == nil {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		RoomID:   r.id,
		Members:  r.memberNamesLocked(),
		Document: r.document,
		Language: r.language,
	}, true
}

// List returns a snapshot of every live room.
func (reg *Registry) List() []Snapshot {
	reg.mu.RLock()
	live := make([]*room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		live = append(live, r)
	}
	reg.mu.RUnlock()

	out := make([]Snapshot, 0, len(live))
	for _, r := range live {
		r.mu.Lock()
		out = append(out, Snapshot{
			RoomID:   r.id,
			Members:  r.memberNamesLocked(),
			Document: r.document,
			Language: r.language,
		})
		r.mu.Unlock()
	}
	return out
}

func (reg *Registry) publish(roomID string, frame []byte) {
	if reg.bridge != nil {
		reg.bridge.Publish(roomID, frame)
	}
}

// dropFailed detaches members whose outbound buffer rejected a frame:
// their channel is closed and they leave the room like any other
// disconnect. Runs outside the room lock; Leave is idempotent.
func (reg *Registry) dropFailed(roomID string, failed []*member) {
	for _, m := range failed {
		zap.L().Warn("room.send_failed",
			zap.String("room", roomID), zap.String("conn", m.id))
		m.send.Close()
		reg.Leave(roomID, m.id)
	}
}

// ─────────────────────────── room internals ──────────────────────────────────

func (r *room) memberLocked(connID string) *member {
	for _, m := range r.members {
		if m.id == connID {
			return m
		}
	}
	return nil
}

func (r *room) memberNamesLocked() []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.name)
	}
	return names
}

// broadcastLocked enqueues frame to every member except exceptID and
// returns the members whose buffer rejected it. Enqueue never blocks,
// so holding the lock here is what gives the room its single event
// sequence.
func (r *room) broadcastLocked(frame []byte, exceptID string) []*member {
	var failed []*member
	for _, m := range r.members {
		if m.id == exceptID {
			continue
		}
		if !m.send.Enqueue(frame) {
			failed = append(failed, m)
		}
	}
	return failed
}
