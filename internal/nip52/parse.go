// Package nip52 parses and builds decentralized calendar records: all-day
// events (kind 31922), timed events (31923), calendar definitions (31924)
// and RSVPs (31925).
package nip52

import (
	"strconv"
	"strings"
	"time"

	"github.com/florrin/calagenda/internal/models"
)

const dateLayout = "2006-01-02"

// ParseEvent converts a raw record of kind 31922 or 31923 into a
// CalendarEvent. The second return is false for records that cannot be
// interpreted; such records are filtered input, not errors.
func ParseEvent(rec models.Record) (*models.CalendarEvent, bool) {
	if rec.Kind != models.KindDateEvent && rec.Kind != models.KindTimeEvent {
		return nil, false
	}

	eventTime, ok := parseEventTime(rec)
	if !ok {
		return nil, false
	}

	event := &models.CalendarEvent{
		ID:          strings.ToLower(rec.ID),
		Kind:        rec.Kind,
		Author:      strings.ToLower(rec.Pubkey),
		Identifier:  rec.Tags.FirstValue("d"),
		Title:       titleOf(rec.Tags),
		Summary:     rec.Tags.FirstValue("summary"),
		Description: rec.Content,
		Locations:   rec.Tags.Values("location"),
		Images:      rec.Tags.Values("image"),
		Hashtags:    rec.Tags.Values("t"),
		References:  rec.Tags.Values("r"),
		Calendars:   parseCalendarRefs(rec.Tags),
		Time:        eventTime,
		CreatedAt:   rec.CreatedAt,
	}

	for _, tag := range rec.Tags {
		if tag.Name() != "p" || !models.IsHexPubkey(tag.Value()) {
			continue
		}
		participant := models.Participant{Pubkey: strings.ToLower(tag.Value())}
		if len(tag) >= 4 {
			participant.Role = tag[3]
		}
		event.Participants = append(event.Participants, participant)
	}

	return event, true
}

// ParseCalendar converts a kind 31924 record into a CalendarDefinition.
func ParseCalendar(rec models.Record) (*models.CalendarDefinition, bool) {
	if rec.Kind != models.KindCalendar {
		return nil, false
	}

	identifier := rec.Tags.FirstValue("d")
	if identifier == "" {
		return nil, false
	}

	author := strings.ToLower(rec.Pubkey)
	title := titleOf(rec.Tags)
	if title == "" {
		title = identifier
	}

	return &models.CalendarDefinition{
		Coordinate:  models.FormatCoordinate(models.KindCalendar, author, identifier),
		ID:          strings.ToLower(rec.ID),
		Identifier:  identifier,
		Title:       title,
		Description: rec.Content,
		Author:      author,
		CreatedAt:   rec.CreatedAt,
	}, true
}

// ParseRsvp converts a kind 31925 record into a CalendarRsvp. A record that
// references no event at all (neither coordinate nor id) is dropped.
func ParseRsvp(rec models.Record) (*models.CalendarRsvp, bool) {
	if rec.Kind != models.KindRSVP {
		return nil, false
	}

	rsvp := &models.CalendarRsvp{
		ID:        strings.ToLower(rec.ID),
		Attendee:  strings.ToLower(rec.Pubkey),
		Status:    rsvpStatusOf(rec.Tags),
		CreatedAt: rec.CreatedAt,
	}

	if coord := rec.Tags.FirstValue("a"); coord != "" {
		if kind, author, identifier, ok := models.ParseCoordinate(coord); ok {
			rsvp.CoordKind = kind
			rsvp.CoordAuthor = author
			rsvp.CoordIdentifier = identifier
		}
	}
	if eventID := rec.Tags.FirstValue("e"); eventID != "" {
		rsvp.EventID = strings.ToLower(eventID)
	}

	if rsvp.CoordIdentifier == "" && rsvp.EventID == "" {
		return nil, false
	}

	return rsvp, true
}

func titleOf(tags models.TagList) string {
	if title := tags.FirstValue("title"); title != "" {
		return title
	}
	// older records used "name"
	return tags.FirstValue("name")
}

func rsvpStatusOf(tags models.TagList) models.RsvpStatus {
	if raw := tags.FirstValue("status"); raw != "" {
		return models.ParseRsvpStatus(raw)
	}
	for _, tag := range tags {
		if tag.Name() == "l" && len(tag) >= 3 && tag[2] == "status" {
			return models.ParseRsvpStatus(tag.Value())
		}
	}
	return models.RsvpUnknown
}

func parseCalendarRefs(tags models.TagList) []string {
	var coords []string
	for _, raw := range tags.Values("a") {
		canonical := models.CanonicalCalendarCoordinate(raw)
		if canonical == "" {
			continue
		}
		duplicate := false
		for _, existing := range coords {
			if strings.EqualFold(existing, canonical) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			coords = append(coords, canonical)
		}
	}
	return coords
}

func parseEventTime(rec models.Record) (models.EventTime, bool) {
	start := rec.Tags.FirstValue("start")
	if start == "" {
		return models.EventTime{}, false
	}

	if rec.Kind == models.KindDateEvent {
		startDay, err := time.ParseInLocation(dateLayout, start, time.UTC)
		if err != nil {
			return models.EventTime{}, false
		}
		eventTime := models.EventTime{AllDay: true, StartDay: startDay}
		if end := rec.Tags.FirstValue("end"); end != "" {
			if endDay, err := time.ParseInLocation(dateLayout, end, time.UTC); err == nil {
				eventTime.EndDay = &endDay
			}
		}
		return eventTime, true
	}

	startUnix, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return models.EventTime{}, false
	}
	eventTime := models.EventTime{
		Start:     time.Unix(startUnix, 0).UTC(),
		StartTZID: rec.Tags.FirstValue("start_tzid"),
		EndTZID:   rec.Tags.FirstValue("end_tzid"),
	}
	if end := rec.Tags.FirstValue("end"); end != "" {
		if endUnix, err := strconv.ParseInt(end, 10, 64); err == nil {
			endTime := time.Unix(endUnix, 0).UTC()
			eventTime.End = &endTime
		}
	}
	return eventTime, true
}
