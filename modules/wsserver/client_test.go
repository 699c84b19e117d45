package wsserver

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/example/realtime-chat-server/modules/router"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type frame struct {
	messageType int
	data        []byte
}

// fakeWSConn records writes. When gate is non-nil every write waits on it.
type fakeWSConn struct {
	mu     sync.Mutex
	frames []frame
	closed bool
	gate   chan struct{}
}

func (f *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame{messageType, data})
	return nil
}

func (f *fakeWSConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWSConn) textFrames() []router.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []router.Event
	for _, fr := range f.frames {
		if fr.messageType != websocket.TextMessage {
			continue
		}
		var e router.Event
		if err := json.Unmarshal(fr.data, &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SendBufferSize = 4
	return cfg
}

func TestClient_SendWritesJSON(t *testing.T) {
	conn := &fakeWSConn{}
	c := newClient("c1", conn, testConfig(), &mockLogger{})

	require.NoError(t, c.Send(router.Event{Name: router.EventError, Data: "nope"}))
	require.NoError(t, c.Close())
	c.Wait()

	events := conn.textFrames()
	require.Len(t, events, 1)
	assert.Equal(t, router.EventError, events[0].Name)
	assert.Equal(t, "nope", events[0].Data)
	assert.True(t, conn.closed)
}

func TestClient_CloseFlushesQueue(t *testing.T) {
	conn := &fakeWSConn{gate: make(chan struct{})}
	c := newClient("c1", conn, testConfig(), &mockLogger{})

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Send(router.Event{Name: router.EventNewMessage, Data: i}))
	}
	require.NoError(t, c.Close())
	close(conn.gate)
	c.Wait()

	assert.Len(t, conn.textFrames(), 3)

	conn.mu.Lock()
	last := conn.frames[len(conn.frames)-1]
	conn.mu.Unlock()
	assert.Equal(t, websocket.CloseMessage, last.messageType)
}

func TestClient_SendAfterClose(t *testing.T) {
	conn := &fakeWSConn{}
	c := newClient("c1", conn, testConfig(), &mockLogger{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
	c.Wait()

	assert.ErrorIs(t, c.Send(router.Event{Name: router.EventRoomsList}), ErrClientClosed)
}

func TestClient_FullBufferDrops(t *testing.T) {
	conn := &fakeWSConn{gate: make(chan struct{})}
	cfg := testConfig()
	c := newClient("c1", conn, cfg, &mockLogger{})
	defer func() {
		c.Close()
		close(conn.gate)
		c.Wait()
	}()

	// The blocked writer holds at most one event, so capacity is buffer+1.
	dropped := 0
	for i := 0; i < cfg.SendBufferSize+2; i++ {
		if err := c.Send(router.Event{Name: router.EventNewMessage, Data: i}); err != nil {
			require.ErrorIs(t, err, ErrSendBufferFull)
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 1)
}
