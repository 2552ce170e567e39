/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoParticipantSelected = errors.New("no player selected")
	ErrInvalidTrackURL       = errors.New("invalid spotify track url")
)

// Shown inline next to the form that caused them.
const (
	noParticipantMessage = "Please select a player to add a song."
	invalidTrackMessage  = "Invalid Spotify track URL. Please use the format: https://open.spotify.com/track/..."
	emptyPoolMessage     = "Add some songs to start playing."
)

var trackPattern = regexp.MustCompile(`open\.spotify\.com/track/([a-zA-Z0-9]+)`)

// ExtractTrackID pulls the track identifier out of a pasted Spotify link.
// Anything around the host and path, such as the scheme or a ?si= query,
// is ignored.
func ExtractTrackID(text string) (string, error) {
	m := trackPattern.FindStringSubmatch(text)
	if m == nil {
		return "", ErrInvalidTrackURL
	}

	return m[1], nil
}

// ValidateSubmission checks the add-song form. A missing player is reported
// before a malformed link.
func ValidateSubmission(participantID, text string) (string, error) {
	if strings.TrimSpace(participantID) == "" {
		return "", ErrNoParticipantSelected
	}

	return ExtractTrackID(text)
}

// userMessage turns a validation error into the text shown in the browser.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoParticipantSelected):
		return noParticipantMessage
	case errors.Is(err, ErrInvalidTrackURL):
		return invalidTrackMessage
	case errors.Is(err, ErrNoSubmissions):
		return emptyPoolMessage
	default:
		return "Something went wrong. Please try again."
	}
}

func EmbedURL(trackID string) string {
	return "https://open.spotify.com/embed/track/" + trackID + "?utm_source=generator&theme=0"
}

func TrackURL(trackID string) string {
	return "https://open.spotify.com/track/" + trackID
}
