package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/realtime-chat-server/domain/chat"
	"github.com/example/realtime-chat-server/modules/chat"
	"github.com/go-monolith/mono/pkg/types"
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

// fakeConn records every event sent to it.
type fakeConn struct {
	id string

	mu      sync.Mutex
	events  []Event
	closed  bool
	sendErr error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, e)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) named(name string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}
	}
	return c.events[len(c.events)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type fakePresence struct {
	mu      sync.Mutex
	claimed map[string]string
}

func (p *fakePresence) Claim(_ context.Context, username, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimed[connID] = username
	return nil
}

func (p *fakePresence) Release(_ context.Context, _, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.claimed, connID)
	return nil
}

func newTestRouter(t *testing.T, opts ...Option) (*Router, *chat.Registry) {
	t.Helper()
	reg := chat.NewRegistry()
	return New(reg, &mockLogger{}, opts...), reg
}

func connect(t *testing.T, r *Router, id, username string) *fakeConn {
	t.Helper()
	conn := newFakeConn(id)
	require.NoError(t, r.Connect(context.Background(), conn, username))
	return conn
}

func handle(t *testing.T, r *Router, conn *fakeConn, frame string) error {
	t.Helper()
	return r.Handle(context.Background(), conn.ID(), []byte(frame))
}

func TestRouter_ConnectPushesRoomList(t *testing.T) {
	r, _ := newTestRouter(t)
	conn := connect(t, r, "c1", "alice")

	lists := conn.named(EventRoomsList)
	require.Len(t, lists, 1)
	rooms, ok := lists[0].Data.([]domain.Room)
	require.True(t, ok)
	assert.Len(t, rooms, len(chat.DefaultRooms))
	assert.Equal(t, 1, r.ConnectionCount())
	assert.False(t, conn.closed)
}

func TestRouter_ConnectRejectsBadUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"missing", "", chat.ErrMissingUsername},
		{"too short", "a", chat.ErrInvalidUsername},
		{"bad characters", "bob smith", chat.ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t)
			conn := newFakeConn("c1")

			err := r.Connect(context.Background(), conn, tt.username)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, conn.closed)
			assert.Equal(t, 0, r.ConnectionCount())

			errs := conn.named(EventError)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantErr.Error(), errs[0].Data)
			assert.Empty(t, conn.named(EventRoomsList))
		})
	}
}

func TestRouter_TwoClientsExchangeMessages(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")

	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))

	joined := a.named(EventUserJoined)
	require.Len(t, joined, 1)
	payload := joined[0].Data.(UserJoinedPayload)
	assert.Equal(t, "B", payload.User.ID)
	assert.Len(t, payload.Users, 2)

	roomJoined := b.named(EventRoomJoined)
	require.Len(t, roomJoined, 1)
	assert.Len(t, roomJoined[0].Data.(RoomJoinedPayload).Users, 2)

	require.NoError(t, handle(t, r, a, `{"event":"send_message","data":{"roomId":"general","content":"hi"}}`))

	for _, c := range []*fakeConn{a, b} {
		msgs := c.named(EventNewMessage)
		require.Len(t, msgs, 1, "conn %s", c.ID())
		msg := msgs[0].Data.(domain.Message)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "alice", msg.Username)
	}
}

func TestRouter_DisconnectBroadcastsUserLeft(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))
	b.reset()

	r.Disconnect(context.Background(), "B")

	left := a.named(EventUserLeft)
	require.Len(t, left, 1)
	payload := left[0].Data.(UserLeftPayload)
	assert.Equal(t, "B", payload.UserID)
	require.Len(t, payload.Users, 1)
	assert.Equal(t, "A", payload.Users[0].ID)
	assert.Empty(t, b.named(EventUserLeft))

	// Second disconnect is a no-op.
	r.Disconnect(context.Background(), "B")
	assert.Len(t, a.named(EventUserLeft), 1)
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRouter_LeaveThenDisconnectBroadcastsOnce(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))

	require.NoError(t, handle(t, r, b, `{"event":"leave_room","data":"general"}`))
	r.Disconnect(context.Background(), "B")

	assert.Len(t, a.named(EventUserLeft), 1)
	_, inRoom := r.RoomOf("B")
	assert.False(t, inRoom)
}

func TestRouter_SwitchRoomNotifiesOldRoom(t *testing.T) {
	r, reg := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))

	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"tech"}`))

	left := a.named(EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "B", left[0].Data.(UserLeftPayload).UserID)

	roomID, ok := r.RoomOf("B")
	require.True(t, ok)
	assert.Equal(t, "tech", roomID)

	general, err := reg.Members("general")
	require.NoError(t, err)
	assert.Len(t, general, 1)

	// Messages in general no longer reach B.
	b.reset()
	require.NoError(t, handle(t, r, a, `{"event":"send_message","data":{"roomId":"general","content":"still here?"}}`))
	assert.Empty(t, b.named(EventNewMessage))
}

func TestRouter_RejoinSameRoom(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))
	a.reset()

	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))

	assert.Len(t, b.named(EventRoomJoined), 2)
	assert.Empty(t, a.named(EventUserJoined))
	assert.Empty(t, a.named(EventUserLeft))
}

func TestRouter_CreateRoomReachesEveryone(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	c := connect(t, r, "C", "carol")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"tech"}`))
	a.reset()
	b.reset()
	c.reset()

	require.NoError(t, handle(t, r, a, `{"event":"create_room","data":{"name":"Movies","description":"Film talk"}}`))

	for _, conn := range []*fakeConn{a, b, c} {
		lists := conn.named(EventRoomsList)
		require.Len(t, lists, 1, "conn %s", conn.ID())
		rooms := lists[0].Data.([]domain.Room)
		require.Len(t, rooms, len(chat.DefaultRooms)+1)

		created := rooms[len(rooms)-1]
		assert.Equal(t, "Movies", created.Name)
		assert.Empty(t, created.Users)
		assert.Empty(t, created.Messages)
	}
}

func TestRouter_ErrorsGoOnlyToRequester(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"unknown room", `{"event":"join_room","data":"nowhere"}`, chat.ErrRoomNotFound},
		{"not a member", `{"event":"send_message","data":{"roomId":"tech","content":"hi"}}`, chat.ErrNotAMember},
		{"empty message", `{"event":"send_message","data":{"roomId":"general","content":"   "}}`, chat.ErrEmptyMessage},
		{"duplicate room", `{"event":"create_room","data":{"name":"TECH"}}`, chat.ErrDuplicateName},
		{"invalid room name", `{"event":"create_room","data":{"name":"x"}}`, chat.ErrInvalidName},
		{"leave unknown room", `{"event":"leave_room","data":"nowhere"}`, chat.ErrRoomNotFound},
		{"unknown event", `{"event":"dance"}`, ErrUnknownEvent},
		{"malformed", `{"event":`, ErrMalformedRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t)
			a := connect(t, r, "A", "alice")
			b := connect(t, r, "B", "bob")
			require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
			require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))
			a.reset()
			b.reset()

			err := handle(t, r, a, tt.frame)
			assert.ErrorIs(t, err, tt.wantErr)

			require.Len(t, a.named(EventError), 1)
			assert.Equal(t, EventError, a.last().Name)
			assert.Empty(t, b.events)
		})
	}
}

func TestRouter_ErrorEventText(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")

	_ = handle(t, r, a, `{"event":"join_room","data":"nowhere"}`)
	assert.Equal(t, chat.ErrRoomNotFound.Error(), a.last().Data)
}

func TestRouter_UnknownConnection(t *testing.T) {
	r, _ := newTestRouter(t)
	err := r.Handle(context.Background(), "ghost", []byte(`{"event":"get_rooms"}`))
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRouter_GetRooms(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	a.reset()

	require.NoError(t, handle(t, r, a, `{"event":"get_rooms"}`))
	require.Len(t, a.named(EventRoomsList), 1)
}

func TestRouter_BroadcastSkipsUnreachable(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))

	b.mu.Lock()
	b.sendErr = errors.New("connection closed")
	b.mu.Unlock()

	require.NoError(t, handle(t, r, a, `{"event":"send_message","data":{"roomId":"general","content":"hello"}}`))
	assert.Len(t, a.named(EventNewMessage), 1)
}

type panickingRooms struct {
	*chat.Registry
}

func (p panickingRooms) ListRooms() []domain.Room {
	panic("boom")
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	reg := chat.NewRegistry()
	r := New(reg, &mockLogger{})
	a := connect(t, r, "A", "alice")

	r.rooms = panickingRooms{reg}
	err := handle(t, r, a, `{"event":"get_rooms"}`)
	require.Error(t, err)
	assert.Equal(t, Event{Name: EventError, Data: genericErrorMessage}, a.last())
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRouter_PresenceClaimAndRelease(t *testing.T) {
	p := &fakePresence{claimed: make(map[string]string)}
	r, _ := newTestRouter(t, WithPresence(p))

	connect(t, r, "A", "alice")
	assert.Equal(t, "alice", p.claimed["A"])

	r.Disconnect(context.Background(), "A")
	assert.Empty(t, p.claimed)
}

func TestRouter_CloseAll(t *testing.T) {
	r, _ := newTestRouter(t)
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")

	r.CloseAll()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestRouter_ConcurrentTraffic(t *testing.T) {
	r, reg := newTestRouter(t)
	rooms := []string{"general", "random", "tech", "gaming"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		conn := connect(t, r, string(rune('a'+i))+"-conn", "user"+string(rune('a'+i)))
		wg.Add(1)
		go func(i int, conn *fakeConn) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				room := rooms[(i+j)%len(rooms)]
				_ = r.Handle(context.Background(), conn.ID(), []byte(`{"event":"join_room","data":"`+room+`"}`))
				_ = r.Handle(context.Background(), conn.ID(), []byte(`{"event":"send_message","data":{"roomId":"`+room+`","content":"x"}}`))
			}
			if i%2 == 0 {
				r.Disconnect(context.Background(), conn.ID())
			}
		}(i, conn)
	}
	wg.Wait()

	// Every remaining connection is in exactly one room, matching the registry.
	seen := make(map[string]int)
	for _, room := range reg.ListRooms() {
		for _, u := range room.Users {
			seen[u.ID]++
			mapped, ok := r.RoomOf(u.ID)
			require.True(t, ok, "user %s", u.ID)
			assert.Equal(t, room.ID, mapped)
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "user %s", id)
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 10, r.ConnectionCount())
}

// hookRooms runs afterJoin once the registry has accepted a join.
type hookRooms struct {
	*chat.Registry
	afterJoin func(userID string)
}

func (h *hookRooms) JoinRoom(userID, username, roomID string) (*chat.JoinResult, error) {
	result, err := h.Registry.JoinRoom(userID, username, roomID)
	if err == nil && h.afterJoin != nil {
		h.afterJoin(userID)
	}
	return result, err
}

func TestRouter_MessageDuringJoinReachesJoiner(t *testing.T) {
	rooms := &hookRooms{Registry: chat.NewRegistry()}
	r := New(rooms, &mockLogger{})
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))
	a.reset()

	var wg sync.WaitGroup
	rooms.afterJoin = func(userID string) {
		if userID != "B" {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Handle(context.Background(), "A", []byte(`{"event":"send_message","data":{"roomId":"general","content":"hi"}}`))
		}()
		// Give the post a chance to run before the join finishes.
		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))
	wg.Wait()

	msgs := b.named(EventNewMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Data.(domain.Message).Content)

	joined := a.named(EventUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "B", joined[0].Data.(UserJoinedPayload).User.ID)
	assert.Len(t, a.named(EventNewMessage), 1)
}

func TestRouter_DisconnectDuringJoinLeavesNoMember(t *testing.T) {
	rooms := &hookRooms{Registry: chat.NewRegistry()}
	r := New(rooms, &mockLogger{})
	a := connect(t, r, "A", "alice")
	b := connect(t, r, "B", "bob")
	require.NoError(t, handle(t, r, a, `{"event":"join_room","data":"general"}`))

	var wg sync.WaitGroup
	rooms.afterJoin = func(userID string) {
		if userID != "B" {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Disconnect(context.Background(), "B")
		}()
		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, handle(t, r, b, `{"event":"join_room","data":"general"}`))
	wg.Wait()

	members, err := rooms.Members("general")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "A", members[0].ID)
	_, inRoom := r.RoomOf("B")
	assert.False(t, inRoom)
	assert.Len(t, a.named(EventUserLeft), 1)
}
