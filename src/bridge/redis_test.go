package bridge

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcastTarget records frames forwarded from the bridge.
type mockBroadcastTarget struct {
	mu       sync.Mutex
	received [][]byte
}

func (m *mockBroadcastTarget) BroadcastToLocal(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, frame)
}

func (m *mockBroadcastTarget) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

func joinFrame(t *testing.T, username string) []byte {
	t.Helper()
	frame, err := types.Marshal(types.Join{Username: username})
	require.NoError(t, err)
	return frame
}

func payloadFrom(t *testing.T, instanceID string, frame []byte) string {
	t.Helper()
	data, err := json.Marshal(redisEnvelope{InstanceID: instanceID, Frame: frame})
	require.NoError(t, err)
	return string(data)
}

func TestRedisEnvelopeKeepsFrameVerbatim(t *testing.T) {
	frame := joinFrame(t, "alice")

	data, err := json.Marshal(redisEnvelope{InstanceID: "node-1", Frame: frame})
	require.NoError(t, err)

	var out redisEnvelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "node-1", out.InstanceID)
	assert.JSONEq(t, string(frame), string(out.Frame))
}

func TestHandlePayloadForwardsRemoteFrames(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	defer rb.Stop()

	frame := joinFrame(t, "bob")
	rb.handlePayload(payloadFrom(t, "other-node", frame))

	received := target.frames()
	require.Len(t, received, 1)
	assert.JSONEq(t, string(frame), string(received[0]))
}

func TestHandlePayloadSkipsOwnFrames(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	defer rb.Stop()

	rb.handlePayload(payloadFrom(t, rb.instanceID, joinFrame(t, "bob")))
	assert.Empty(t, target.frames())
}

func TestHandlePayloadDropsMalformedInput(t *testing.T) {
	target := &mockBroadcastTarget{}
	rb := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	defer rb.Stop()

	rb.handlePayload("not json")
	rb.handlePayload(payloadFrom(t, "other-node", []byte(`{"payload":"no kind"}`)))
	assert.Empty(t, target.frames())
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "chat:ws:", cfg.Prefix)
	assert.Equal(t, "chat:ws:broadcast", cfg.Channel())
}

func TestRedisBridgeAvailableFalseBeforeStart(t *testing.T) {
	rb := NewRedisBridge(DefaultRedisConfig(), &mockBroadcastTarget{}, zerolog.Nop())
	defer rb.Stop()
	assert.False(t, rb.Available())
}

func TestRedisBridgeInstanceIDUnique(t *testing.T) {
	target := &mockBroadcastTarget{}
	b1 := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	b2 := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	defer b1.Stop()
	defer b2.Stop()
	assert.NotEqual(t, b1.instanceID, b2.instanceID)
}

// TestRedisBridgeRelaysBetweenInstances needs a live server at REDIS_ADDR.
func TestRedisBridgeRelaysBetweenInstances(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.Prefix = "chat-test:" + time.Now().Format("150405.000000") + ":"

	sender := NewRedisBridge(cfg, &mockBroadcastTarget{}, zerolog.Nop())
	receiverTarget := &mockBroadcastTarget{}
	receiver := NewRedisBridge(cfg, receiverTarget, zerolog.Nop())

	require.NoError(t, sender.Start())
	defer sender.Stop()
	require.NoError(t, receiver.Start())
	defer receiver.Stop()
	assert.True(t, sender.Available())

	frame := joinFrame(t, "carol")
	require.NoError(t, sender.Publish(frame))

	require.Eventually(t, func() bool {
		return len(receiverTarget.frames()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, string(frame), string(receiverTarget.frames()[0]))
}
