package nip52

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/florrin/calagenda/internal/models"
)

// EventDraft is the validated-on-build input for a new calendar event
// record. Text fields arrive exactly as entered; Build* reports the first
// problem as a descriptive error and never partially constructs.
type EventDraft struct {
	AllDay       bool
	Identifier   string
	Title        string
	Summary      string
	Description  string
	Locations    []string
	Images       []string
	Hashtags     []string
	References   []string
	Calendars    []string
	Participants []models.Participant
	StartDate    string // YYYY-MM-DD
	EndDate      string
	StartTime    string // HH:MM or HH:MM:SS, timed only
	EndTime      string
	IncludeEnd   bool
	StartTZID    string
	EndTZID      string
}

// CalendarDraft is the input for a new calendar definition record.
type CalendarDraft struct {
	Identifier  string
	Title       string
	Description string
}

// NewIdentifier returns a fresh replaceable-record identifier.
func NewIdentifier() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildEventRecord assembles an unsigned event record from the draft. The
// returned record already carries its computed id.
func BuildEventRecord(draft EventDraft, author string, now time.Time) (models.Record, error) {
	identifier := strings.TrimSpace(draft.Identifier)
	if identifier == "" {
		return models.Record{}, fmt.Errorf("identifier is required")
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return models.Record{}, fmt.Errorf("title is required")
	}
	if !models.IsHexPubkey(author) {
		return models.Record{}, fmt.Errorf("author must be a 64-char hex pubkey")
	}

	kind := models.KindTimeEvent
	if draft.AllDay {
		kind = models.KindDateEvent
	}

	tags := models.TagList{
		{"d", identifier},
		{"title", title},
	}
	if summary := strings.TrimSpace(draft.Summary); summary != "" {
		tags = append(tags, models.Tag{"summary", summary})
	}
	for _, loc := range cleanLines(draft.Locations) {
		tags = append(tags, models.Tag{"location", loc})
	}
	for _, image := range cleanLines(draft.Images) {
		tags = append(tags, models.Tag{"image", image})
	}
	for _, hashtag := range cleanHashtags(draft.Hashtags) {
		tags = append(tags, models.Tag{"t", hashtag})
	}
	for _, ref := range cleanLines(draft.References) {
		tags = append(tags, models.Tag{"r", ref})
	}
	for _, coord := range draft.Calendars {
		canonical := models.CanonicalCalendarCoordinate(coord)
		if canonical == "" {
			return models.Record{}, fmt.Errorf("calendar reference %q is not a valid calendar coordinate", coord)
		}
		tags = append(tags, models.Tag{"a", canonical})
	}
	for _, participant := range draft.Participants {
		if !models.IsHexPubkey(participant.Pubkey) {
			return models.Record{}, fmt.Errorf("participant %q is not a hex pubkey", participant.Pubkey)
		}
		tag := models.Tag{"p", strings.ToLower(participant.Pubkey)}
		if participant.Role != "" {
			tag = append(tag, "", participant.Role)
		}
		tags = append(tags, tag)
	}

	timeTags, err := buildTimeTags(draft)
	if err != nil {
		return models.Record{}, err
	}
	tags = append(tags, timeTags...)

	rec := models.Record{
		Pubkey:    strings.ToLower(author),
		Kind:      kind,
		CreatedAt: now.Unix(),
		Tags:      tags,
		Content:   draft.Description,
	}
	rec.ID, err = ComputeID(rec)
	if err != nil {
		return models.Record{}, fmt.Errorf("compute record id: %w", err)
	}
	return rec, nil
}

// BuildCalendarRecord assembles an unsigned calendar definition record.
func BuildCalendarRecord(draft CalendarDraft, author string, now time.Time) (models.Record, error) {
	identifier := strings.TrimSpace(draft.Identifier)
	if identifier == "" {
		return models.Record{}, fmt.Errorf("identifier is required")
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return models.Record{}, fmt.Errorf("title is required")
	}
	if !models.IsHexPubkey(author) {
		return models.Record{}, fmt.Errorf("author must be a 64-char hex pubkey")
	}

	rec := models.Record{
		Pubkey:    strings.ToLower(author),
		Kind:      models.KindCalendar,
		CreatedAt: now.Unix(),
		Tags: models.TagList{
			{"d", identifier},
			{"title", title},
			{"name", title},
		},
		Content: draft.Description,
	}
	var err error
	rec.ID, err = ComputeID(rec)
	if err != nil {
		return models.Record{}, fmt.Errorf("compute record id: %w", err)
	}
	return rec, nil
}

// BuildRsvpRecord assembles an unsigned RSVP record targeting event. The
// event must carry an identifier: RSVPs address their target by coordinate.
func BuildRsvpRecord(event *models.CalendarEvent, status models.RsvpStatus, freebusy, attendee string, now time.Time) (models.Record, error) {
	if event.Identifier == "" {
		return models.Record{}, fmt.Errorf("event is missing a calendar identifier; unable to rsvp")
	}
	if !models.IsHexPubkey(attendee) {
		return models.Record{}, fmt.Errorf("attendee must be a 64-char hex pubkey")
	}
	switch status {
	case models.RsvpAccepted, models.RsvpDeclined, models.RsvpTentative:
	default:
		return models.Record{}, fmt.Errorf("status must be accepted, declined, or tentative")
	}

	coordinate := models.FormatCoordinate(event.Kind, event.Author, event.Identifier)
	tags := models.TagList{
		{"a", coordinate},
		{"e", event.ID},
		{"p", event.Author},
		{"status", string(status)},
		{"L", "status"},
		{"l", string(status), "status"},
	}
	if freebusy != "" {
		tags = append(tags,
			models.Tag{"fb", freebusy},
			models.Tag{"L", "freebusy"},
			models.Tag{"l", freebusy, "freebusy"},
		)
	}
	tags = append(tags, models.Tag{"d", uuid.NewString()})

	rec := models.Record{
		Pubkey:    strings.ToLower(attendee),
		Kind:      models.KindRSVP,
		CreatedAt: now.Unix(),
		Tags:      tags,
		Content:   "",
	}
	var err error
	rec.ID, err = ComputeID(rec)
	if err != nil {
		return models.Record{}, fmt.Errorf("compute record id: %w", err)
	}
	return rec, nil
}

func buildTimeTags(draft EventDraft) (models.TagList, error) {
	if draft.AllDay {
		startDay, err := parseRequiredDate(draft.StartDate, "start date")
		if err != nil {
			return nil, err
		}

		endDay := startDay
		if draft.IncludeEnd && strings.TrimSpace(draft.EndDate) != "" {
			endDay, err = parseRequiredDate(draft.EndDate, "end date")
			if err != nil {
				return nil, err
			}
		}
		if endDay.Before(startDay) {
			return nil, fmt.Errorf("end date cannot be before start date")
		}

		tags := models.TagList{{"start", startDay.Format(dateLayout)}}
		if endDay.After(startDay) {
			// end tag is exclusive
			tags = append(tags, models.Tag{"end", endDay.AddDate(0, 0, 1).Format(dateLayout)})
		}
		return tags, nil
	}

	startDay, err := parseRequiredDate(draft.StartDate, "start date")
	if err != nil {
		return nil, err
	}
	startClock, err := parseRequiredTime(draft.StartTime, "start time")
	if err != nil {
		return nil, err
	}
	startTZ := strings.TrimSpace(draft.StartTZID)
	startUnix, err := resolveTimestamp(startDay, startClock, startTZ, "start time")
	if err != nil {
		return nil, err
	}

	tags := models.TagList{{"start", strconv.FormatInt(startUnix, 10)}}
	if startTZ != "" {
		tags = append(tags, models.Tag{"start_tzid", startTZ})
	}

	if draft.IncludeEnd {
		endClock, err := parseRequiredTime(draft.EndTime, "end time")
		if err != nil {
			return nil, err
		}
		endDay := startDay
		if strings.TrimSpace(draft.EndDate) != "" {
			endDay, err = parseRequiredDate(draft.EndDate, "end date")
			if err != nil {
				return nil, err
			}
		}
		endTZ := strings.TrimSpace(draft.EndTZID)
		tzForEnd := endTZ
		if tzForEnd == "" {
			tzForEnd = startTZ
		}
		endUnix, err := resolveTimestamp(endDay, endClock, tzForEnd, "end time")
		if err != nil {
			return nil, err
		}
		if endUnix < startUnix {
			return nil, fmt.Errorf("end time must be after start time")
		}
		tags = append(tags, models.Tag{"end", strconv.FormatInt(endUnix, 10)})
		if endTZ != "" {
			tags = append(tags, models.Tag{"end_tzid", endTZ})
		}
	}

	return tags, nil
}

func parseRequiredDate(value, field string) (time.Time, error) {
	parsed, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must use YYYY-MM-DD format", field)
	}
	return parsed, nil
}

func parseRequiredTime(value, field string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return time.Duration(parsed.Hour())*time.Hour +
				time.Duration(parsed.Minute())*time.Minute +
				time.Duration(parsed.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("%s must use HH:MM or HH:MM:SS format", field)
}

func resolveTimestamp(day time.Time, clock time.Duration, tzid, field string) (int64, error) {
	loc := time.UTC
	if tzid != "" {
		var err error
		loc, err = time.LoadLocation(tzid)
		if err != nil {
			return 0, fmt.Errorf("%s has an unknown timezone %q", field, tzid)
		}
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc).Add(clock)
	return local.Unix(), nil
}

func cleanLines(values []string) []string {
	var out []string
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cleanHashtags(values []string) []string {
	var out []string
	for _, value := range values {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(value), "#"))
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
