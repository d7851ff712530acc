package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codecollab/internal/protocol"
)

const publishTimeout = 2 * time.Second

// bridgeFrame is the payload published on "room:<id>:events". Instance
// tags the publisher so a node never re-applies its own frames.
type bridgeFrame struct {
	Instance string          `json:"instance"`
	Frame    json.RawMessage `json:"frame"`
}

// EventBridge mirrors room fan-out frames across service instances over
// Redis pub/sub. It keeps exactly one subscription per live local room,
// no matter how many members the room has; subscriptions follow room
// lifecycle (Subscribe on create, Unsubscribe on delete). Pub/sub only,
// nothing is ever stored in Redis.
type EventBridge struct {
	rdb        *redis.Client
	reg        *Registry
	ctx        context.Context
	instanceID string

	mu   sync.Mutex
	subs map[string]context.CancelFunc // roomID ➜ subscription teardown
}

// NewEventBridge wires the bridge into the registry. ctx bounds the
// lifetime of every subscription loop.
func NewEventBridge(ctx context.Context, rdb *redis.Client, reg *Registry) *EventBridge {
	b := &EventBridge{
		rdb:        rdb,
		reg:        reg,
		ctx:        ctx,
		instanceID: fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano()),
		subs:       make(map[string]context.CancelFunc),
	}
	reg.SetBridge(b)
	return b
}

func channelFor(roomID string) string { return "room:" + roomID + ":events" }

// Publish mirrors one local fan-out frame to the room's channel.
func (b *EventBridge) Publish(roomID string, frame []byte) {
	payload, err := json.Marshal(bridgeFrame{Instance: b.instanceID, Frame: frame})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, channelFor(roomID), payload).Err(); err != nil {
		zap.L().Warn("bridge.publish", zap.String("room", roomID), zap.Error(err))
	}
}

// Subscribe starts the receive loop for a room. Frames from other
// instances are handed to the registry, which updates room state and
// fans them out to local members.
func (b *EventBridge) Subscribe(roomID string) {
	b.mu.Lock()
	if _, ok := b.subs[roomID]; ok {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(b.ctx)
	b.subs[roomID] = cancel
	b.mu.Unlock()

	ps := b.rdb.Subscribe(ctx, channelFor(roomID))

	go func() {
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ps.Channel():
				if !ok { // Redis connection closed.
					return
				}
				b.apply(roomID, []byte(m.Payload))
			}
		}
	}()
}

// Unsubscribe tears the room's receive loop down.
func (b *EventBridge) Unsubscribe(roomID string) {
	b.mu.Lock()
	cancel, ok := b.subs[roomID]
	if ok {
		delete(b.subs, roomID)
	}
	b.mu.Unlock()

	if ok {
		cancel()
	}
}

func (b *EventBridge) apply(roomID string, payload []byte) {
	var bf bridgeFrame
	if err := json.Unmarshal(payload, &bf); err != nil {
		zap.L().Warn("bridge.decode", zap.String("room", roomID), zap.Error(err))
		return
	}
	if bf.Instance == b.instanceID {
		return // our own publish echoed back
	}
	var env protocol.Envelope
	if err := json.Unmarshal(bf.Frame, &env); err != nil {
		zap.L().Warn("bridge.envelope", zap.String("room", roomID), zap.Error(err))
		return
	}
	b.reg.ApplyRemote(roomID, env.Event, bf.Frame, env.Body)
}

// NewEventsClient returns a Redis client for the event bridge and
// verifies the connection with a bounded ping.
func NewEventsClient(host string, port int) (*redis.Client, error) {
	maxPool := runtime.NumCPU() * 8
	if maxPool > 512 {
		maxPool = 512
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: maxPool,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rc.Ping(ctx).Result(); err != nil {
		err = errors.New("redis connection failed: " + err.Error())
		zap.L().Error("redis_connect", zap.Error(err))
		return nil, err
	}
	return rc, nil
}
