package hub

import (
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/orchestra-mcp/chat/src/wstest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDeliverAfterClose(t *testing.T) {
	c := newTestClient("s1", 1, "alice")
	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Deliver([]byte("x")), ErrClientClosed)
}

func TestClientWritePumpPreservesOrder(t *testing.T) {
	conn := wstest.NewConn()
	c := NewClient("s1", types.Identity{UserID: 1, Username: "alice"}, conn, DefaultClientOptions(), zerolog.Nop())
	go c.WritePump()
	defer c.Close()

	for _, text := range []string{"a", "b", "c"} {
		frame, err := types.Marshal(types.Notification{Text: text})
		require.NoError(t, err)
		require.NoError(t, c.Deliver(frame))
	}

	require.Eventually(t, func() bool { return len(conn.Envelopes()) == 3 }, time.Second, 5*time.Millisecond)
	envs := conn.Envelopes()
	assert.Equal(t, "a", envs[0].Payload)
	assert.Equal(t, "b", envs[1].Payload)
	assert.Equal(t, "c", envs[2].Payload)
}

func TestClientWriteFailureClosesClient(t *testing.T) {
	conn := wstest.NewConn()
	conn.FailWrites()
	c := NewClient("s1", types.Identity{UserID: 1, Username: "alice"}, conn, DefaultClientOptions(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	require.NoError(t, c.Deliver([]byte(`{}`)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop after a failed write")
	}
	assert.True(t, conn.Closed())
	assert.ErrorIs(t, c.Deliver([]byte(`{}`)), ErrClientClosed)
}

func TestClientCloseWith(t *testing.T) {
	conn := wstest.NewConn()
	c := NewClient("s1", types.Identity{UserID: 1, Username: "alice"}, conn, DefaultClientOptions(), zerolog.Nop())

	c.CloseWith(websocket.ClosePolicyViolation, "invalid token")

	code, reason := conn.CloseFrame()
	assert.Equal(t, websocket.ClosePolicyViolation, code)
	assert.Equal(t, "invalid token", reason)
	assert.True(t, conn.Closed())
}

func TestClientInfo(t *testing.T) {
	c := newTestClient("7_x", 7, "dave")
	c.RemoteAddr = "10.0.0.1:5555"

	info := c.Info()
	assert.Equal(t, "7_x", info.ID)
	assert.Equal(t, int64(7), info.UserID)
	assert.Equal(t, "dave", info.Username)
	assert.Equal(t, "10.0.0.1:5555", info.RemoteAddr)
	assert.False(t, info.ConnectedAt.IsZero())
}

func TestHeldClientWritesFirstSendAheadOfQueue(t *testing.T) {
	conn := wstest.NewConn()
	c := NewClient("s1", types.Identity{UserID: 1, Username: "alice"}, conn, DefaultClientOptions(), zerolog.Nop())
	c.HoldUntilFirst()
	go c.WritePump()
	defer c.Close()

	live, err := types.Marshal(types.Notification{Text: "live"})
	require.NoError(t, err)
	require.NoError(t, c.Deliver(live))

	// Nothing is written until the first private frame arrives.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.Written())

	history, err := types.Marshal(types.History{})
	require.NoError(t, err)
	require.NoError(t, c.Send(history))

	later, err := types.Marshal(types.Notification{Text: "later"})
	require.NoError(t, err)
	require.NoError(t, c.Send(later))

	require.Eventually(t, func() bool { return len(conn.Envelopes()) == 3 }, time.Second, 5*time.Millisecond)
	envs := conn.Envelopes()
	assert.Equal(t, types.KindHistory, envs[0].Kind)
	assert.Equal(t, "live", envs[1].Payload)
	assert.Equal(t, "later", envs[2].Payload)
}

func TestHeldClientStopsOnClose(t *testing.T) {
	c := newTestClient("s1", 1, "alice")
	c.HoldUntilFirst()

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()
	c.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("held write pump did not stop on close")
	}
}

func TestHeldClientKeepsFullBufferForBroadcasts(t *testing.T) {
	opts := DefaultClientOptions()
	opts.SendBuffer = 1
	conn := wstest.NewConn()
	c := NewClient("s1", types.Identity{UserID: 1, Username: "alice"}, conn, opts, zerolog.Nop())
	c.HoldUntilFirst()

	history, err := types.Marshal(types.History{})
	require.NoError(t, err)
	require.NoError(t, c.Send(history))

	join, err := types.Marshal(types.Join{Username: "alice"})
	require.NoError(t, err)
	assert.NoError(t, c.Deliver(join))
}
