/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub(t *testing.T, opts ...SessionOption) (*Hub, *Client) {
	t.Helper()

	h := newHub(NewSession(opts...), time.Minute)
	c := &Client{send: make(chan any, 8)}
	h.clients[c] = true

	return h, c
}

func received(c *Client) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastState(t *testing.T, c *Client) SessionStateMessage {
	t.Helper()

	msgs := received(c)
	require.NotEmpty(t, msgs)
	state, ok := msgs[len(msgs)-1].(SessionStateMessage)
	require.True(t, ok, "expected session_state, got %T", msgs[len(msgs)-1])

	return state
}

func act(h *Hub, c *Client, msg ClientMessage) {
	h.handleAction(actionRequest{client: c, msg: msg})
}

func TestHubAddParticipant(t *testing.T) {
	h, c := testHub(t)

	act(h, c, ClientMessage{Type: "add_participant", Name: "Alice"})
	state := lastState(t, c)
	require.Len(t, state.Players, 1)
	assert.Equal(t, "Alice", state.Players[0].Name)
	assert.Equal(t, 0, state.Players[0].Songs)

	t.Run("duplicate is silent", func(t *testing.T) {
		act(h, c, ClientMessage{Type: "add_participant", Name: "ALICE"})
		assert.Empty(t, received(c))
		assert.Len(t, h.session.Participants(), 1)
	})

	t.Run("long names are accepted", func(t *testing.T) {
		act(h, c, ClientMessage{Type: "add_participant", Name: strings.Repeat("x", 200)})

		state := lastState(t, c)
		assert.Len(t, state.Players, 2)
	})
}

func TestHubAddSubmission(t *testing.T) {
	h, c := testHub(t)
	act(h, c, ClientMessage{Type: "add_participant", Name: "Alice"})
	alice := lastState(t, c).Players[0]

	t.Run("no player selected", func(t *testing.T) {
		act(h, c, ClientMessage{Type: "add_submission", URL: "https://open.spotify.com/track/abc"})

		msgs := received(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, ErrorMessage{Type: "error", Field: "submission", Message: noParticipantMessage}, msgs[0])
		assert.Empty(t, h.session.Submissions())
	})

	t.Run("unknown player", func(t *testing.T) {
		act(h, c, ClientMessage{Type: "add_submission", ParticipantID: "ghost", URL: "https://open.spotify.com/track/abc"})

		msgs := received(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, ErrorMessage{Type: "error", Field: "submission", Message: noParticipantMessage}, msgs[0])
		assert.Empty(t, h.session.Submissions())

		act(h, c, ClientMessage{Type: "play_random"})
		msgs = received(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, ErrorMessage{Type: "error", Field: "round", Message: emptyPoolMessage}, msgs[0])
	})

	t.Run("bad url", func(t *testing.T) {
		act(h, c, ClientMessage{Type: "add_submission", ParticipantID: alice.ID, URL: "https://open.spotify.com/playlist/abc123"})

		msgs := received(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, ErrorMessage{Type: "error", Field: "submission", Message: invalidTrackMessage}, msgs[0])
		assert.Empty(t, h.session.Submissions())
	})

	t.Run("valid", func(t *testing.T) {
		other := &Client{send: make(chan any, 8)}
		h.clients[other] = true

		act(h, c, ClientMessage{Type: "add_submission", ParticipantID: alice.ID, URL: "https://open.spotify.com/track/abc"})

		msgs := received(c)
		require.Len(t, msgs, 2)
		assert.Equal(t, AckMessage{Type: "ack", Action: "add_submission"}, msgs[0])
		state, ok := msgs[1].(SessionStateMessage)
		require.True(t, ok)
		assert.Equal(t, 1, state.Submissions)
		assert.Equal(t, 1, state.Players[0].Songs)

		otherMsgs := received(other)
		require.Len(t, otherMsgs, 1, "only the sender is acknowledged")
		assert.IsType(t, SessionStateMessage{}, otherMsgs[0])
	})
}

func TestHubRound(t *testing.T) {
	h, c := testHub(t, WithIntn(fixedIntn(0)))

	act(h, c, ClientMessage{Type: "play_random"})
	msgs := received(c)
	require.Len(t, msgs, 1)
	assert.Equal(t, ErrorMessage{Type: "error", Field: "round", Message: emptyPoolMessage}, msgs[0])

	act(h, c, ClientMessage{Type: "reveal"})
	assert.Empty(t, received(c))

	act(h, c, ClientMessage{Type: "add_participant", Name: "Alice"})
	alice := lastState(t, c).Players[0]
	act(h, c, ClientMessage{Type: "add_submission", ParticipantID: alice.ID, URL: "https://open.spotify.com/track/abc"})
	received(c)

	act(h, c, ClientMessage{Type: "play_random"})
	state := lastState(t, c)
	require.NotNil(t, state.Round)
	assert.Equal(t, "abc", state.Round.TrackID)
	assert.Equal(t, EmbedURL("abc"), state.Round.EmbedURL)
	assert.False(t, state.Round.Revealed)
	assert.Empty(t, state.Round.Submitter, "submitter must stay hidden until reveal")

	_, shared := h.sharedTrack()
	assert.False(t, shared)

	act(h, c, ClientMessage{Type: "reveal"})
	state = lastState(t, c)
	assert.True(t, state.Round.Revealed)
	assert.Equal(t, "Alice", state.Round.Submitter)

	track, shared := h.sharedTrack()
	assert.True(t, shared)
	assert.Equal(t, "abc", track)

	act(h, c, ClientMessage{Type: "reveal"})
	assert.Empty(t, received(c))
}

func TestHubIgnoresUnknownActions(t *testing.T) {
	h, c := testHub(t)

	act(h, c, ClientMessage{Type: "kick"})

	assert.Empty(t, received(c))
}

func TestHubExpireIdle(t *testing.T) {
	h := newHub(NewSession(), time.Minute)
	h.session.Register("Alice")

	assert.False(t, h.expireIdle(time.Now()), "not idle long enough")

	c := &Client{send: make(chan any, 1)}
	h.clients[c] = true
	assert.False(t, h.expireIdle(time.Now().Add(time.Hour)), "clients still connected")
	delete(h.clients, c)

	assert.True(t, h.expireIdle(time.Now().Add(time.Hour)))
	assert.Empty(t, h.session.Participants())

	h.idleTimeout = 0
	h.session.Register("Bob")
	assert.False(t, h.expireIdle(time.Now().Add(time.Hour)), "expiry disabled")
}

func readState(t *testing.T, conn *websocket.Conn) SessionStateMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var state SessionStateMessage
	require.NoError(t, conn.ReadJSON(&state))
	require.Equal(t, "session_state", state.Type)

	return state
}

func TestWebsocketGame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &Config{port: 8080}
	hub := newHub(NewSession(), 0)
	go hub.run(ctx)

	mux, err := newRouter(ctx, cfg, hub, make(chan error, 8))
	require.NoError(t, err)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	state := readState(t, conn)
	assert.Empty(t, state.Players)
	assert.Nil(t, state.Round)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "add_participant", Name: "Alice"}))
	readState(t, conn)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "add_participant", Name: "Bob"}))
	state = readState(t, conn)
	require.Len(t, state.Players, 2)

	owners := map[string]string{
		"4uLU6hMCjMI75M1A2tKUQC": "Alice",
		"7qiZfU4dY1lWllzX7mPBI3": "Bob",
	}
	for _, p := range state.Players {
		for track, name := range owners {
			if name != p.Name {
				continue
			}
			require.NoError(t, conn.WriteJSON(ClientMessage{
				Type:          "add_submission",
				ParticipantID: p.ID,
				URL:           "https://open.spotify.com/track/" + track,
			}))
			var ack AckMessage
			require.NoError(t, conn.ReadJSON(&ack))
			require.Equal(t, "ack", ack.Type)
			readState(t, conn)
		}
	}

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "play_random"}))
	state = readState(t, conn)
	require.NotNil(t, state.Round)
	require.Contains(t, owners, state.Round.TrackID)
	assert.False(t, state.Round.Revealed)
	assert.Empty(t, state.Round.Submitter)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "reveal"}))
	state = readState(t, conn)
	assert.True(t, state.Round.Revealed)
	assert.Equal(t, owners[state.Round.TrackID], state.Round.Submitter)

	resp, err := srv.Client().Get(srv.URL + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestWebsocketErrorOnlyToSender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub(NewSession(), 0)
	go hub.run(ctx)

	mux, err := newRouter(ctx, &Config{port: 8080}, hub, make(chan error, 8))
	require.NoError(t, err)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	sender, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer sender.Close()
	readState(t, sender)

	watcher, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer watcher.Close()
	readState(t, watcher)

	require.NoError(t, sender.WriteJSON(ClientMessage{Type: "play_random"}))

	require.NoError(t, sender.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg ErrorMessage
	require.NoError(t, sender.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "round", msg.Field)

	require.NoError(t, sender.WriteJSON(ClientMessage{Type: "add_participant", Name: "Alice"}))
	state := readState(t, watcher)
	require.Len(t, state.Players, 1, "watcher should see the next broadcast, not the error")
}

func TestWebsocketRejectsOversizedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub(NewSession(), 0)
	go hub.run(ctx)

	mux, err := newRouter(ctx, &Config{port: 8080}, hub, make(chan error, 8))
	require.NoError(t, err)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readState(t, conn)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "add_participant", Name: strings.Repeat("x", maxMessageSize)}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server should close the connection")
}
