package nip52

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florrin/calagenda/internal/models"
)

const (
	testAuthor   = "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322"
	testAttendee = "32e1827635450ebb3c5a7d12c1f8e7b2b514439ac10a67eef3d9fd9c5c68e245"
)

func timedRecord(mutate func(*models.Record)) models.Record {
	rec := models.Record{
		ID:        strings.Repeat("ab", 32),
		Pubkey:    testAuthor,
		Kind:      models.KindTimeEvent,
		CreatedAt: 1700000000,
		Tags: models.TagList{
			{"d", "standup"},
			{"title", "Daily Standup"},
			{"start", "1700003600"},
			{"end", "1700005400"},
			{"start_tzid", "Europe/Berlin"},
			{"location", "Room 4"},
			{"t", "work"},
			{"p", testAttendee, "", "speaker"},
			{"a", "31924:" + testAuthor + ":team-cal"},
		},
		Content: "Sync on the week.",
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestParseEventTimed(t *testing.T) {
	event, ok := ParseEvent(timedRecord(nil))
	require.True(t, ok)

	assert.Equal(t, models.KindTimeEvent, event.Kind)
	assert.Equal(t, "standup", event.Identifier)
	assert.Equal(t, "Daily Standup", event.Title)
	assert.Equal(t, "Sync on the week.", event.Description)
	assert.Equal(t, []string{"Room 4"}, event.Locations)
	assert.Equal(t, []string{"work"}, event.Hashtags)
	assert.False(t, event.Time.AllDay)
	assert.Equal(t, int64(1700003600), event.Time.Start.Unix())
	require.NotNil(t, event.Time.End)
	assert.Equal(t, int64(1700005400), event.Time.End.Unix())
	assert.Equal(t, "Europe/Berlin", event.Time.StartTZID)

	require.Len(t, event.Participants, 1)
	assert.Equal(t, testAttendee, event.Participants[0].Pubkey)
	assert.Equal(t, "speaker", event.Participants[0].Role)

	require.Len(t, event.Calendars, 1)
	assert.Equal(t, "31924:"+testAuthor+":team-cal", event.Calendars[0])
}

func TestParseEventTitleFallsBackToName(t *testing.T) {
	rec := timedRecord(func(r *models.Record) {
		r.Tags = models.TagList{
			{"d", "standup"},
			{"name", "Legacy Title"},
			{"start", "1700003600"},
		}
	})
	event, ok := ParseEvent(rec)
	require.True(t, ok)
	assert.Equal(t, "Legacy Title", event.Title)
}

func TestParseEventAllDay(t *testing.T) {
	rec := models.Record{
		ID:     strings.Repeat("cd", 32),
		Pubkey: testAuthor,
		Kind:   models.KindDateEvent,
		Tags: models.TagList{
			{"d", "offsite"},
			{"title", "Offsite"},
			{"start", "2024-03-10"},
			{"end", "2024-03-13"},
		},
	}
	event, ok := ParseEvent(rec)
	require.True(t, ok)
	require.True(t, event.Time.AllDay)
	assert.Equal(t, "2024-03-10", event.Time.StartDay.Format("2006-01-02"))

	// end tag is exclusive, so the span's last day is the 12th
	first, last := event.Time.DateSpan()
	assert.Equal(t, "2024-03-10", first.Format("2006-01-02"))
	assert.Equal(t, "2024-03-12", last.Format("2006-01-02"))
}

func TestParseEventFiltersMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Record)
	}{
		{"missing start", func(r *models.Record) {
			r.Tags = models.TagList{{"d", "x"}, {"title", "X"}}
		}},
		{"non-numeric timed start", func(r *models.Record) {
			r.Tags = models.TagList{{"d", "x"}, {"title", "X"}, {"start", "tomorrow"}}
		}},
		{"wrong kind", func(r *models.Record) { r.Kind = models.KindCalendar }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseEvent(timedRecord(tt.mutate))
			assert.False(t, ok)
		})
	}
}

func TestParseEventDedupesCalendarRefs(t *testing.T) {
	rec := timedRecord(func(r *models.Record) {
		r.Tags = append(r.Tags,
			models.Tag{"a", "31924:" + strings.ToUpper(testAuthor) + ":team-cal"},
			models.Tag{"a", "31923:" + testAuthor + ":not-a-calendar"},
			models.Tag{"a", "malformed"},
		)
	})
	event, ok := ParseEvent(rec)
	require.True(t, ok)
	assert.Equal(t, []string{"31924:" + testAuthor + ":team-cal"}, event.Calendars)
}

func TestParseCalendar(t *testing.T) {
	rec := models.Record{
		ID:        strings.Repeat("ef", 32),
		Pubkey:    strings.ToUpper(testAuthor),
		Kind:      models.KindCalendar,
		CreatedAt: 1700000000,
		Tags: models.TagList{
			{"d", "team-cal"},
			{"title", "Team Calendar"},
		},
		Content: "Shared team schedule.",
	}
	def, ok := ParseCalendar(rec)
	require.True(t, ok)
	assert.Equal(t, "31924:"+testAuthor+":team-cal", def.Coordinate)
	assert.Equal(t, "Team Calendar", def.Title)
	assert.Equal(t, testAuthor, def.Author)
	assert.False(t, def.Placeholder())
}

func TestParseCalendarRequiresIdentifier(t *testing.T) {
	rec := models.Record{
		Pubkey: testAuthor,
		Kind:   models.KindCalendar,
		Tags:   models.TagList{{"title", "No Identifier"}},
	}
	_, ok := ParseCalendar(rec)
	assert.False(t, ok)
}

func TestParseRsvp(t *testing.T) {
	rec := models.Record{
		ID:        strings.Repeat("12", 32),
		Pubkey:    testAttendee,
		Kind:      models.KindRSVP,
		CreatedAt: 1700001000,
		Tags: models.TagList{
			{"a", "31923:" + testAuthor + ":standup"},
			{"e", strings.Repeat("AB", 32)},
			{"status", "accepted"},
		},
	}
	rsvp, ok := ParseRsvp(rec)
	require.True(t, ok)
	assert.Equal(t, models.RsvpAccepted, rsvp.Status)
	assert.Equal(t, models.KindTimeEvent, rsvp.CoordKind)
	assert.Equal(t, testAuthor, rsvp.CoordAuthor)
	assert.Equal(t, "standup", rsvp.CoordIdentifier)
	assert.Equal(t, strings.Repeat("ab", 32), rsvp.EventID)
}

func TestParseRsvpStatusFromLabel(t *testing.T) {
	rec := models.Record{
		Pubkey: testAttendee,
		Kind:   models.KindRSVP,
		Tags: models.TagList{
			{"a", "31923:" + testAuthor + ":standup"},
			{"L", "status"},
			{"l", "tentative", "status"},
		},
	}
	rsvp, ok := ParseRsvp(rec)
	require.True(t, ok)
	assert.Equal(t, models.RsvpTentative, rsvp.Status)
}

func TestParseRsvpWithoutTargetDropped(t *testing.T) {
	rec := models.Record{
		Pubkey: testAttendee,
		Kind:   models.KindRSVP,
		Tags:   models.TagList{{"status", "accepted"}},
	}
	_, ok := ParseRsvp(rec)
	assert.False(t, ok)
}

func TestComputeIDIsStable(t *testing.T) {
	rec := timedRecord(nil)
	first, err := ComputeID(rec)
	require.NoError(t, err)
	second, err := ComputeID(rec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	changed := timedRecord(func(r *models.Record) { r.CreatedAt++ })
	other, err := ComputeID(changed)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestComputeIDHandlesHTMLCharacters(t *testing.T) {
	rec := models.Record{
		Pubkey:  testAuthor,
		Kind:    models.KindTimeEvent,
		Content: "a < b & c > d",
	}
	id, err := ComputeID(rec)
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9a-f]{64}$", id)
}

func TestParseEventTimeRoundTrip(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	rec := timedRecord(func(r *models.Record) {
		r.Tags = models.TagList{
			{"d", "x"},
			{"title", "X"},
			{"start", "1717234200"},
		}
	})
	event, ok := ParseEvent(rec)
	require.True(t, ok)
	assert.True(t, event.Time.Start.Equal(start))
	assert.Nil(t, event.Time.End)
}
