/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// Messages coming from clients
type ClientMessage struct {
	Type          string `json:"type"`                     // "add_participant", "add_submission", "play_random", "reveal"
	Name          string `json:"name,omitempty"`           // add_participant
	ParticipantID string `json:"participant_id,omitempty"` // add_submission
	URL           string `json:"url,omitempty"`            // add_submission
}

// PlayerState is one row of the player list.
type PlayerState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Songs int    `json:"songs"`
}

// RoundState hides the submitter until the round is revealed.
type RoundState struct {
	TrackID   string `json:"track_id"`
	EmbedURL  string `json:"embed_url"`
	Revealed  bool   `json:"revealed"`
	Submitter string `json:"submitter,omitempty"`
}

// SessionStateMessage is broadcast after every change.
type SessionStateMessage struct {
	Type        string        `json:"type"` // "session_state"
	Players     []PlayerState `json:"players"`
	Submissions int           `json:"submissions"`
	Round       *RoundState   `json:"round,omitempty"`
}

// ErrorMessage is sent only to the client whose action failed.
type ErrorMessage struct {
	Type    string `json:"type"`    // "error"
	Field   string `json:"field"`   // "name", "submission" or "round"
	Message string `json:"message"` // user-facing text
}

// AckMessage confirms an action to the client that sent it.
type AckMessage struct {
	Type   string `json:"type"`   // "ack"
	Action string `json:"action"` // "add_submission"
}

// Largest client message accepted; anything bigger closes the connection.
const maxMessageSize = 4096

type Client struct {
	conn *websocket.Conn
	send chan any
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

// Hub owns the game session and every connected browser. All session
// access goes through run, so the session itself needs no locking.
type Hub struct {
	session *Session
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest

	mu         sync.RWMutex
	lastActive time.Time
	shared     string // track ID of the current round, once revealed

	idleTimeout time.Duration
}

func newHub(session *Session, idleTimeout time.Duration) *Hub {
	return &Hub{
		session:     session,
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unreg:       make(chan *Client),
		actions:     make(chan actionRequest),
		lastActive:  time.Now(),
		idleTimeout: idleTimeout,
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

// publish copies what the HTTP handlers may read outside of run.
func (h *Hub) publish() {
	shared := ""
	if round, ok := h.session.Round(); ok && round.Revealed {
		shared = round.TrackID
	}

	h.mu.Lock()
	h.shared = shared
	h.mu.Unlock()
}

// sharedTrack returns the track ID of the current round after it has been
// revealed.
func (h *Hub) sharedTrack() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.shared, h.shared != ""
}

func (h *Hub) run(ctx context.Context) {
	var tick <-chan time.Time
	if h.idleTimeout > 0 {
		ticker := time.NewTicker(h.idleTimeout / 2)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.touch()
			h.clients[c] = true
			h.sendTo(c, h.stateMessage())

		case c := <-h.unreg:
			h.touch()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ar := <-h.actions:
			h.touch()
			h.handleAction(ar)

		case now := <-tick:
			h.expireIdle(now)
		}
	}
}

// expireIdle ends the session once nobody is connected and nothing has
// happened for longer than the idle timeout.
func (h *Hub) expireIdle(now time.Time) bool {
	if h.idleTimeout <= 0 || len(h.clients) > 0 {
		return false
	}
	if now.Sub(h.idleSince()) < h.idleTimeout {
		return false
	}
	if len(h.session.participants) == 0 && len(h.session.submissions) == 0 {
		return false
	}

	h.session.Reset()
	h.publish()
	logf("GAMES: Session ended after %s idle", h.idleTimeout)

	return true
}

func (h *Hub) handleAction(ar actionRequest) {
	c, msg := ar.client, ar.msg

	switch msg.Type {
	case "add_participant":
		p, added := h.session.Register(msg.Name)
		if !added {
			return
		}
		logf("GAMES: Player %q joined", p.Name)

	case "add_submission":
		trackID, err := ValidateSubmission(msg.ParticipantID, msg.URL)
		if err != nil {
			h.sendError(c, "submission", err)
			return
		}
		if _, ok := h.session.Participant(msg.ParticipantID); !ok {
			h.sendError(c, "submission", ErrNoParticipantSelected)
			return
		}

		sub := h.session.Submit(trackID, msg.ParticipantID)
		logf("GAMES: Song %s submitted (%d in pool)", sub.ID, len(h.session.submissions))
		h.sendTo(c, AckMessage{Type: "ack", Action: "add_submission"})

	case "play_random":
		round, err := h.session.SelectRandom()
		switch {
		case errors.Is(err, ErrNoSubmissions):
			h.sendError(c, "round", err)
			return
		case err != nil:
			log.Warnf("GAMES: Skipped song selection: %v", err)
			return
		}
		logf("GAMES: Playing track %s", round.TrackID)

	case "reveal":
		round, ok := h.session.Round()
		if !ok || round.Revealed {
			return
		}
		h.session.Reveal()
		logf("GAMES: Revealed submitter of track %s", round.TrackID)

	default:
		return
	}

	h.publish()
	h.broadcast(h.stateMessage())
}

func (h *Hub) stateMessage() SessionStateMessage {
	participants := h.session.Participants()

	players := make([]PlayerState, 0, len(participants))
	for _, p := range participants {
		players = append(players, PlayerState{
			ID:    p.ID,
			Name:  p.Name,
			Songs: h.session.SubmissionCount(p.ID),
		})
	}

	msg := SessionStateMessage{
		Type:        "session_state",
		Players:     players,
		Submissions: len(h.session.submissions),
	}

	if round, ok := h.session.Round(); ok {
		msg.Round = &RoundState{
			TrackID:  round.TrackID,
			EmbedURL: EmbedURL(round.TrackID),
			Revealed: round.Revealed,
		}
		if round.Revealed {
			msg.Round.Submitter = round.SubmitterName
		}
	}

	return msg
}

func (h *Hub) sendError(c *Client, field string, err error) {
	h.sendTo(c, ErrorMessage{
		Type:    "error",
		Field:   field,
		Message: userMessage(err),
	})
}

func (h *Hub) sendTo(c *Client, msg any) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		h.sendTo(client, msg)
	}
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func serveWS(ctx context.Context, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("SERVE: Websocket upgrade from %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		select {
		case hub.register <- client:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(ctx, hub)
	}
}

func (c *Client) readPump(ctx context.Context, h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "add_participant", "add_submission", "play_random", "reveal":
			select {
			case h.actions <- actionRequest{client: c, msg: msg}:
			case <-ctx.Done():
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
