package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Participant is a pubkey invited to an event, optionally with a role.
type Participant struct {
	Pubkey string `json:"pubkey"`
	Role   string `json:"role,omitempty"`
}

// EventTime carries either a date span (all-day) or a UTC instant pair
// (timed), never both.
type EventTime struct {
	AllDay    bool       `json:"all_day"`
	StartDay  time.Time  `json:"start_day,omitempty"`  // midnight UTC, all-day only
	EndDay    *time.Time `json:"end_day,omitempty"`    // exclusive, all-day only
	Start     time.Time  `json:"start,omitempty"`      // timed only
	End       *time.Time `json:"end,omitempty"`        // timed only
	StartTZID string     `json:"start_tzid,omitempty"` // timed only
	EndTZID   string     `json:"end_tzid,omitempty"`   // timed only
}

// StartUnix returns the sort instant of the event in unix seconds.
func (t EventTime) StartUnix() int64 {
	if t.AllDay {
		return t.StartDay.Unix()
	}
	return t.Start.Unix()
}

// DateSpan returns the inclusive first and last day the event covers, in UTC.
func (t EventTime) DateSpan() (time.Time, time.Time) {
	if t.AllDay {
		start := t.StartDay
		end := start
		if t.EndDay != nil {
			// end tag is exclusive per the protocol
			end = t.EndDay.AddDate(0, 0, -1)
			if end.Before(start) {
				end = start
			}
		}
		return start, end
	}
	start := t.Start.UTC().Truncate(24 * time.Hour)
	end := start
	if t.End != nil {
		end = t.End.UTC().Truncate(24 * time.Hour)
		if end.Before(start) {
			end = start
		}
	}
	return start, end
}

// CalendarEvent is a reconciled calendar event together with its derived
// RSVP associations.
type CalendarEvent struct {
	ID           string         `json:"id"`
	Kind         int            `json:"kind"`
	Author       string         `json:"author"`
	Identifier   string         `json:"identifier,omitempty"`
	Title        string         `json:"title"`
	Summary      string         `json:"summary,omitempty"`
	Description  string         `json:"description,omitempty"`
	Locations    []string       `json:"locations,omitempty"`
	Images       []string       `json:"images,omitempty"`
	Hashtags     []string       `json:"hashtags,omitempty"`
	References   []string       `json:"references,omitempty"`
	Calendars    []string       `json:"calendars,omitempty"`
	Participants []Participant  `json:"participants,omitempty"`
	Time         EventTime      `json:"time"`
	CreatedAt    int64          `json:"created_at"`
	RSVPs        []CalendarRsvp `json:"rsvps,omitempty"`
}

// Replaceable reports whether the event carries a stable identifier and is
// therefore superseded by newer records sharing its coordinate.
func (e *CalendarEvent) Replaceable() bool {
	return e.Identifier != ""
}

// Coordinate returns "kind:author:identifier" for replaceable events, "" otherwise.
func (e *CalendarEvent) Coordinate() string {
	if !e.Replaceable() {
		return ""
	}
	return FormatCoordinate(e.Kind, e.Author, e.Identifier)
}

// SameIdentity reports whether other addresses the same live event slot.
func (e *CalendarEvent) SameIdentity(other *CalendarEvent) bool {
	if e.Replaceable() && other.Replaceable() {
		return e.Kind == other.Kind &&
			strings.EqualFold(e.Author, other.Author) &&
			strings.EqualFold(e.Identifier, other.Identifier)
	}
	if !e.Replaceable() && !other.Replaceable() {
		return e.ID == other.ID
	}
	return false
}

// CalendarDefinition is a reconciled calendar (kind 31924) record. A
// placeholder definition (empty ID, zero CreatedAt, identifier-derived
// title) stands in for calendars referenced before their record is seen.
type CalendarDefinition struct {
	Coordinate  string `json:"coordinate"`
	ID          string `json:"id,omitempty"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author"`
	CreatedAt   int64  `json:"created_at"`
}

// Placeholder reports whether the definition was synthesized from an event
// reference rather than parsed from a calendar record.
func (d *CalendarDefinition) Placeholder() bool {
	return d.ID == ""
}

// RsvpStatus is an attendee's response to an event.
type RsvpStatus string

const (
	RsvpAccepted  RsvpStatus = "accepted"
	RsvpDeclined  RsvpStatus = "declined"
	RsvpTentative RsvpStatus = "tentative"
	RsvpUnknown   RsvpStatus = "unknown"
)

// ParseRsvpStatus maps a status tag value onto a known status.
func ParseRsvpStatus(raw string) RsvpStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accepted":
		return RsvpAccepted
	case "declined":
		return RsvpDeclined
	case "tentative":
		return RsvpTentative
	default:
		return RsvpUnknown
	}
}

// CalendarRsvp is a reconciled RSVP (kind 31925) record. It targets its
// event either by coordinate or by direct record id reference.
type CalendarRsvp struct {
	ID              string     `json:"id"`
	Attendee        string     `json:"attendee"`
	Status          RsvpStatus `json:"status"`
	CreatedAt       int64      `json:"created_at"`
	CoordKind       int        `json:"coord_kind,omitempty"`
	CoordAuthor     string     `json:"coord_author,omitempty"`
	CoordIdentifier string     `json:"coord_identifier,omitempty"`
	EventID         string     `json:"event_id,omitempty"`
}

// MatchesEvent reports whether the RSVP targets the given event, either by
// direct record id or by coordinate equality.
func (r *CalendarRsvp) MatchesEvent(e *CalendarEvent) bool {
	if r.EventID != "" && strings.EqualFold(r.EventID, e.ID) {
		return true
	}
	if r.CoordIdentifier == "" || e.Identifier == "" {
		return false
	}
	return r.CoordKind == e.Kind &&
		strings.EqualFold(r.CoordAuthor, e.Author) &&
		strings.EqualFold(r.CoordIdentifier, e.Identifier)
}

// FormatCoordinate renders the replaceable-record key "kind:author:identifier".
func FormatCoordinate(kind int, author, identifier string) string {
	return fmt.Sprintf("%d:%s:%s", kind, strings.ToLower(author), identifier)
}

// ParseCoordinate splits a coordinate string. The author segment must be a
// 64-char hex pubkey.
func ParseCoordinate(coord string) (kind int, author, identifier string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(coord), ":", 3)
	if len(parts) != 3 {
		return 0, "", "", false
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", false
	}
	author = strings.ToLower(parts[1])
	if len(author) != 64 || !isHex(author) {
		return 0, "", "", false
	}
	identifier = parts[2]
	if identifier == "" {
		return 0, "", "", false
	}
	return kind, author, identifier, true
}

// CanonicalCalendarCoordinate normalizes a calendar (kind 31924) coordinate,
// returning "" for anything that is not one.
func CanonicalCalendarCoordinate(coord string) string {
	kind, author, identifier, ok := ParseCoordinate(coord)
	if !ok || kind != KindCalendar {
		return ""
	}
	return FormatCoordinate(kind, author, identifier)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsHexPubkey reports whether s is a 64-char hex public key.
func IsHexPubkey(s string) bool {
	return len(s) == 64 && isHex(s)
}
