package session

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Identity is what the chat platform tells us about a reporter.
type Identity struct {
	Username  string
	FirstName string
}

// Key is the stable natural key of a reporter: username_firstName, or the
// username alone when the platform gave no first name.
func (id Identity) Key() string {
	if id.FirstName == "" {
		return id.Username
	}
	return id.Username + "_" + id.FirstName
}

// DisplayName is "username firstName" as shown to the monitoring channel.
func (id Identity) DisplayName() string {
	if id.FirstName == "" {
		return id.Username
	}
	return id.Username + " " + id.FirstName
}

// Coordinate is a reported location.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// PhotoRef is a platform reference to an uploaded photo. The bytes are only
// fetched when the report is assembled.
type PhotoRef struct {
	FileID       string
	FileUniqueID string
}

// Key identifies the underlying file. Telegram reissues file ids per message
// but keeps the unique id stable, so that is preferred when present.
func (p PhotoRef) Key() string {
	if p.FileUniqueID != "" {
		return p.FileUniqueID
	}
	return p.FileID
}

type Status int

const (
	StatusUnconfirmed Status = iota
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unconfirmed"
	}
}

// Session is one reporter's in-progress conversation.
type Session struct {
	// ReportID is uuid.Nil until the report has been persisted once.
	ReportID         uuid.UUID
	Identity         Identity
	RegistrationInfo string
	Path             []string
	Locations        []Coordinate
	Photos           []PhotoRef
	FreeText         string // message lines, newline separated
	Status           Status

	// SavedText is the free text already appended to the stored report.
	SavedText string
}

func newSession(id Identity) *Session {
	return &Session{Identity: id}
}

func (s *Session) HasPath() bool      { return len(s.Path) > 0 }
func (s *Session) HasLocations() bool { return len(s.Locations) > 0 }
func (s *Session) HasPhotos() bool    { return len(s.Photos) > 0 }
func (s *Session) HasText() bool      { return s.FreeText != "" }

// AddText appends one message to FreeText.
func (s *Session) AddText(text string) {
	if s.FreeText == "" {
		s.FreeText = text
		return
	}
	s.FreeText += "\n" + text
}

// AddPhoto appends p unless a photo with the same key is already collected.
func (s *Session) AddPhoto(p PhotoRef) bool {
	for _, have := range s.Photos {
		if have.Key() == p.Key() {
			return false
		}
	}
	s.Photos = append(s.Photos, p)
	return true
}

// AddLocation appends c unless the exact coordinate is already collected.
func (s *Session) AddLocation(c Coordinate) bool {
	for _, have := range s.Locations {
		if have == c {
			return false
		}
	}
	s.Locations = append(s.Locations, c)
	return true
}

// Complete reports whether every finalize prerequisite is present.
func (s *Session) Complete() bool {
	return s.HasPath() && s.HasLocations() && s.HasPhotos() && s.HasText()
}

// UnsavedText is the part of FreeText not yet appended to the stored report.
func (s *Session) UnsavedText() string {
	if s.SavedText == "" {
		return s.FreeText
	}
	if rest, ok := strings.CutPrefix(s.FreeText, s.SavedText); ok {
		return strings.TrimPrefix(rest, "\n")
	}
	return s.FreeText
}
