package rooms

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecollab/internal/protocol"
)

func TestPublishMirrorsFrameToRoomChannel(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	b := &EventBridge{
		rdb:        rdb,
		reg:        NewRegistry(),
		ctx:        context.Background(),
		instanceID: "node-1",
		subs:       make(map[string]context.CancelFunc),
	}

	frame := protocol.CodeUpdate("x = 1")
	payload, err := json.Marshal(bridgeFrame{Instance: "node-1", Frame: frame})
	require.NoError(t, err)

	mock.ExpectPublish("room:r1:events", payload).SetVal(1)
	b.Publish("r1", frame)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySkipsOwnFrames(t *testing.T) {
	reg := NewRegistry()
	member := &fakeSender{}
	reg.Join("r1", "c1", "Alice", member)

	b := &EventBridge{
		reg:        reg,
		ctx:        context.Background(),
		instanceID: "node-1",
		subs:       make(map[string]context.CancelFunc),
	}

	own, err := json.Marshal(bridgeFrame{Instance: "node-1", Frame: protocol.CodeUpdate("mine")})
	require.NoError(t, err)
	b.apply("r1", own)
	assert.Empty(t, member.strings(t, protocol.EventCodeUpdate))

	remote, err := json.Marshal(bridgeFrame{Instance: "node-2", Frame: protocol.CodeUpdate("theirs")})
	require.NoError(t, err)
	b.apply("r1", remote)
	assert.Equal(t, []string{"theirs"}, member.strings(t, protocol.EventCodeUpdate))

	snap, _ := reg.Snapshot("r1")
	assert.Equal(t, "theirs", snap.Document)
}

func TestApplyToleratesGarbage(t *testing.T) {
	b := &EventBridge{
		reg:        NewRegistry(),
		ctx:        context.Background(),
		instanceID: "node-1",
		subs:       make(map[string]context.CancelFunc),
	}

	b.apply("r1", []byte("not json"))
	b.apply("r1", []byte(`{"instance":"node-2","frame":"not an envelope"}`))
}

func TestRegistryDrivesSubscriptionLifecycle(t *testing.T) {
	reg := NewRegistry()
	b := &recordingBridge{}
	reg.SetBridge(b)

	alice := &fakeSender{}
	reg.Join("r1", "c1", "Alice", alice)
	assert.Equal(t, []string{"r1"}, b.subscribed)

	bob := &fakeSender{}
	reg.Join("r1", "c2", "Bob", bob)
	assert.Equal(t, []string{"r1"}, b.subscribed) // one sub per room, not per member

	reg.Leave("r1", "c1")
	assert.Empty(t, b.unsubscribed)

	reg.Leave("r1", "c2")
	assert.Equal(t, []string{"r1"}, b.unsubscribed)
}

type recordingBridge struct {
	published    []string
	subscribed   []string
	unsubscribed []string
}

func (b *recordingBridge) Publish(roomID string, frame []byte) {
	b.published = append(b.published, roomID)
}
func (b *recordingBridge) Subscribe(roomID string)   { b.subscribed = append(b.subscribed, roomID) }
func (b *recordingBridge) Unsubscribe(roomID string) { b.unsubscribed = append(b.unsubscribed, roomID) }
