/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNoSubmissions    = errors.New("no songs have been submitted yet")
	ErrUnknownSubmitter = errors.New("submitter is not a registered player")
)

// Participant is a registered player.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Submission is a track reference tagged with the player who submitted it.
type Submission struct {
	ID          string `json:"id"`
	TrackID     string `json:"track_id"`
	SubmittedBy string `json:"submitted_by"`
}

// Round is a snapshot of the chosen submission. SubmitterName is copied at
// selection time and is not kept in sync with the participant list.
type Round struct {
	Submission
	SubmitterName string
	Revealed      bool
}

// Session owns the participant list, the submission list and the current
// round for one game. It is not safe for concurrent use; the Hub serialises
// access to it.
type Session struct {
	participants []Participant
	submissions  []Submission
	round        *Round

	newID func() string
	intn  func(n int) int
}

type SessionOption func(*Session)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(f func() string) SessionOption {
	return func(s *Session) {
		s.newID = f
	}
}

// WithIntn replaces the source used to pick a random submission. f must
// return a value in [0, n).
func WithIntn(f func(n int) int) SessionOption {
	return func(s *Session) {
		s.intn = f
	}
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		newID: uuid.NewString,
		intn:  rand.IntN,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register adds a player unless the trimmed name is empty or already taken,
// ignoring case. The bool reports whether a player was added.
func (s *Session) Register(name string) (Participant, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Participant{}, false
	}

	for _, p := range s.participants {
		if strings.EqualFold(p.Name, name) {
			return Participant{}, false
		}
	}

	p := Participant{
		ID:   s.newID(),
		Name: name,
	}
	s.participants = append(s.participants, p)

	return p, true
}

// Submit appends a submission. The participant ID is not checked here.
func (s *Session) Submit(trackID, participantID string) Submission {
	sub := Submission{
		ID:          s.newID(),
		TrackID:     trackID,
		SubmittedBy: participantID,
	}
	s.submissions = append(s.submissions, sub)

	return sub
}

// SelectRandom picks a submission uniformly at random and starts a new,
// unrevealed round with it. On error the current round is left untouched.
func (s *Session) SelectRandom() (Round, error) {
	if len(s.submissions) == 0 {
		return Round{}, ErrNoSubmissions
	}

	sub := s.submissions[s.intn(len(s.submissions))]

	submitter, ok := s.Participant(sub.SubmittedBy)
	if !ok {
		return Round{}, ErrUnknownSubmitter
	}

	s.round = &Round{
		Submission:    sub,
		SubmitterName: submitter.Name,
	}

	return *s.round, nil
}

// Reveal discloses the submitter of the current round. It reports whether
// there is a round to reveal; calling it again has no further effect.
func (s *Session) Reveal() bool {
	if s.round == nil {
		return false
	}

	s.round.Revealed = true

	return true
}

// Round returns a copy of the current round, if any.
func (s *Session) Round() (Round, bool) {
	if s.round == nil {
		return Round{}, false
	}

	return *s.round, true
}

func (s *Session) Participant(id string) (Participant, bool) {
	for _, p := range s.participants {
		if p.ID == id {
			return p, true
		}
	}

	return Participant{}, false
}

func (s *Session) Participants() []Participant {
	out := make([]Participant, len(s.participants))
	copy(out, s.participants)

	return out
}

func (s *Session) Submissions() []Submission {
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)

	return out
}

// SubmissionCount returns how many songs the given player has submitted.
func (s *Session) SubmissionCount(participantID string) int {
	n := 0
	for _, sub := range s.submissions {
		if sub.SubmittedBy == participantID {
			n++
		}
	}

	return n
}

// Reset ends the session, dropping every player, song and round.
func (s *Session) Reset() {
	s.participants = nil
	s.submissions = nil
	s.round = nil
}
