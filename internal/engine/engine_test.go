package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/nip52"
)

const (
	authorA   = "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322"
	attendeeB = "32e1827635450ebb3c5a7d12c1f8e7b2b514439ac10a67eef3d9fd9c5c68e245"
)

func eventRecord(t *testing.T, identifier, title string, createdAt int64) models.Record {
	t.Helper()
	rec := models.Record{
		Pubkey:    authorA,
		Kind:      models.KindTimeEvent,
		CreatedAt: createdAt,
		Tags: models.TagList{
			{"d", identifier},
			{"title", title},
			{"start", "1700003600"},
		},
	}
	id, err := nip52.ComputeID(rec)
	require.NoError(t, err)
	rec.ID = id
	return rec
}

func calendarRecord(t *testing.T, identifier, title string, createdAt int64) models.Record {
	t.Helper()
	rec := models.Record{
		Pubkey:    authorA,
		Kind:      models.KindCalendar,
		CreatedAt: createdAt,
		Tags: models.TagList{
			{"d", identifier},
			{"title", title},
		},
	}
	id, err := nip52.ComputeID(rec)
	require.NoError(t, err)
	rec.ID = id
	return rec
}

func rsvpRecord(t *testing.T, coordinate, status string, createdAt int64) models.Record {
	t.Helper()
	rec := models.Record{
		Pubkey:    attendeeB,
		Kind:      models.KindRSVP,
		CreatedAt: createdAt,
		Tags: models.TagList{
			{"a", coordinate},
			{"status", status},
		},
	}
	id, err := nip52.ComputeID(rec)
	require.NoError(t, err)
	rec.ID = id
	return rec
}

func TestIngestBatchClassifiesByKind(t *testing.T) {
	e := New()
	unknown := models.Record{ID: strings.Repeat("00", 32), Pubkey: authorA, Kind: 1}

	result := e.IngestBatch([]models.Record{
		eventRecord(t, "e1", "Standup", 100),
		calendarRecord(t, "c1", "Team", 100),
		rsvpRecord(t, "31923:"+authorA+":e1", "accepted", 100),
		unknown,
	})

	assert.Equal(t, 1, result.Events)
	assert.Equal(t, 1, result.Calendars)
	assert.Equal(t, 1, result.Rsvps)
	assert.Equal(t, 1, result.Ignored)
	assert.Len(t, result.ConfirmedRsvpIDs, 1)
	assert.Len(t, e.Events(), 1)
}

func TestNewerEventSupersedesOlder(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{
		eventRecord(t, "e1", "Old Title", 100),
		eventRecord(t, "e1", "New Title", 200),
	})

	events := e.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "New Title", events[0].Title)
	assert.Equal(t, int64(200), events[0].CreatedAt)
}

func TestOlderEventArrivingLateIsRejected(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "New Title", 200)})
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "Old Title", 100)})

	events := e.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "New Title", events[0].Title)
}

func TestEventTimestampTieBrokenByLargerID(t *testing.T) {
	a := eventRecord(t, "e1", "Version A", 100)
	b := eventRecord(t, "e1", "Version B", 100)
	winner := "Version A"
	if b.ID > a.ID {
		winner = "Version B"
	}

	// The same record survives regardless of arrival order.
	for name, batch := range map[string][]models.Record{
		"a then b": {a, b},
		"b then a": {b, a},
	} {
		e := New()
		e.IngestBatch(batch)
		events := e.Events()
		require.Len(t, events, 1, name)
		assert.Equal(t, winner, events[0].Title, name)
	}
}

func TestRsvpMatchesEventByCoordinate(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{
		eventRecord(t, "i1", "Target", 100),
		rsvpRecord(t, "31923:"+authorA+":i1", "accepted", 110),
		rsvpRecord(t, "31923:"+authorA+":other", "accepted", 120),
	})

	events := e.Events()
	require.Len(t, events, 1)
	require.Len(t, events[0].RSVPs, 1)
	assert.Equal(t, models.RsvpAccepted, events[0].RSVPs[0].Status)
	assert.Equal(t, attendeeB, events[0].RSVPs[0].Attendee)
}

func TestRsvpMatchesEventByDirectID(t *testing.T) {
	e := New()
	evRec := eventRecord(t, "i1", "Target", 100)
	e.IngestBatch([]models.Record{evRec})

	rsvpRec := models.Record{
		Pubkey:    attendeeB,
		Kind:      models.KindRSVP,
		CreatedAt: 110,
		Tags:      models.TagList{{"e", evRec.ID}, {"status", "declined"}},
	}
	id, err := nip52.ComputeID(rsvpRec)
	require.NoError(t, err)
	rsvpRec.ID = id
	e.IngestBatch([]models.Record{rsvpRec})

	events := e.Events()
	require.Len(t, events[0].RSVPs, 1)
	assert.Equal(t, models.RsvpDeclined, events[0].RSVPs[0].Status)
}

func TestRsvpArrivingBeforeEventAttachesOnEventUpsert(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{rsvpRecord(t, "31923:"+authorA+":i1", "tentative", 90)})
	e.IngestBatch([]models.Record{eventRecord(t, "i1", "Target", 100)})

	events := e.Events()
	require.Len(t, events, 1)
	require.Len(t, events[0].RSVPs, 1)
	assert.Equal(t, models.RsvpTentative, events[0].RSVPs[0].Status)
}

func TestSubmitLocalRSVPVisibleImmediately(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{eventRecord(t, "i1", "Target", 100)})
	event, ok := e.EventByID(e.Events()[0].ID)
	require.True(t, ok)

	local := &models.CalendarRsvp{
		ID:              strings.Repeat("77", 32),
		Attendee:        attendeeB,
		Status:          models.RsvpAccepted,
		CreatedAt:       time.Now().Unix(),
		CoordKind:       models.KindTimeEvent,
		CoordAuthor:     authorA,
		CoordIdentifier: "i1",
	}
	e.SubmitLocalRSVP(local)

	require.Len(t, event.RSVPs, 1)
	assert.Equal(t, local.ID, event.RSVPs[0].ID)
	assert.True(t, e.IsPending(local.ID))
}

func TestPendingRemovedExactlyOnceOnConfirmation(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{eventRecord(t, "i1", "Target", 100)})

	local := &models.CalendarRsvp{
		ID:              strings.Repeat("77", 32),
		Attendee:        attendeeB,
		Status:          models.RsvpAccepted,
		CreatedAt:       150,
		CoordKind:       models.KindTimeEvent,
		CoordAuthor:     authorA,
		CoordIdentifier: "i1",
	}
	e.SubmitLocalRSVP(local)
	require.Equal(t, 1, e.PendingCount())

	// The store echoes the same record back in a later batch.
	confirmed := models.Record{
		ID:        local.ID,
		Pubkey:    attendeeB,
		Kind:      models.KindRSVP,
		CreatedAt: 150,
		Tags: models.TagList{
			{"a", "31923:" + authorA + ":i1"},
			{"status", "accepted"},
		},
	}
	result := e.IngestBatch([]models.Record{confirmed})
	e.ReconcileAfterSync(result.ConfirmedRsvpIDs)

	assert.Equal(t, 0, e.PendingCount())
	assert.False(t, e.IsPending(local.ID))

	// Exactly one copy in the derived list, never two.
	events := e.Events()
	require.Len(t, events[0].RSVPs, 1)
	assert.Equal(t, local.ID, events[0].RSVPs[0].ID)
}

func TestConfirmationInSameBatchAsOtherRecordsStillSweeps(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{eventRecord(t, "i1", "Target", 100)})

	local := &models.CalendarRsvp{
		ID:              strings.Repeat("88", 32),
		Attendee:        attendeeB,
		Status:          models.RsvpDeclined,
		CreatedAt:       150,
		CoordKind:       models.KindTimeEvent,
		CoordAuthor:     authorA,
		CoordIdentifier: "i1",
	}
	e.SubmitLocalRSVP(local)

	confirmed := models.Record{
		ID:        local.ID,
		Pubkey:    attendeeB,
		Kind:      models.KindRSVP,
		CreatedAt: 150,
		Tags: models.TagList{
			{"a", "31923:" + authorA + ":i1"},
			{"status", "declined"},
		},
	}
	batch := []models.Record{
		eventRecord(t, "i2", "Unrelated", 160),
		confirmed,
		rsvpRecord(t, "31923:"+authorA+":i2", "accepted", 170),
	}
	result := e.IngestBatch(batch)
	e.ReconcileAfterSync(result.ConfirmedRsvpIDs)

	assert.Equal(t, 0, e.PendingCount())
}

func TestDoubleIngestIsIdempotent(t *testing.T) {
	e := New()
	batch := []models.Record{
		eventRecord(t, "e1", "Standup", 100),
		calendarRecord(t, "c1", "Team", 100),
		rsvpRecord(t, "31923:"+authorA+":e1", "accepted", 110),
	}
	e.IngestBatch(batch)
	firstEvent := *e.Events()[0]
	firstCalendar := *e.Calendars()[0]

	e.IngestBatch(batch)
	require.Len(t, e.Events(), 1)
	require.Len(t, e.Calendars(), 1)
	assert.Equal(t, firstEvent, *e.Events()[0])
	assert.Equal(t, firstCalendar, *e.Calendars()[0])
	assert.Len(t, e.Events()[0].RSVPs, 1)
}

func TestSnapshotsAreIsolatedFromLaterIngest(t *testing.T) {
	e := New()
	coord := "31923:" + authorA + ":e1"
	e.IngestBatch([]models.Record{
		eventRecord(t, "e1", "Standup", 100),
		rsvpRecord(t, coord, "accepted", 110),
	})

	snapshot := e.Events()
	require.Len(t, snapshot, 1)
	require.Len(t, snapshot[0].RSVPs, 1)

	// Another RSVP arriving after the snapshot was taken must not show up
	// in it, only in snapshots taken afterwards.
	late := rsvpRecord(t, coord, "declined", 120)
	late.Pubkey = authorA
	id, err := nip52.ComputeID(late)
	require.NoError(t, err)
	late.ID = id
	e.IngestBatch([]models.Record{late})

	assert.Len(t, snapshot[0].RSVPs, 1)
	require.Len(t, e.Events()[0].RSVPs, 2)

	// Mutating a snapshot never reaches engine state.
	snapshot[0].Title = "scribbled"
	snapshot[0].RSVPs[0].Status = models.RsvpTentative
	fresh, ok := e.EventByID(snapshot[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Standup", fresh.Title)
	assert.Equal(t, models.RsvpAccepted, fresh.RSVPs[0].Status)

	def, ok := e.CalendarByCoordinate("31924:" + authorA + ":team")
	if ok {
		def.Title = "scribbled"
	}
	for _, d := range e.Calendars() {
		assert.NotEqual(t, "scribbled", d.Title)
	}
}

func TestStaleUpsertsAreNotCounted(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{
		eventRecord(t, "e1", "Standup", 200),
		calendarRecord(t, "c1", "Team", 200),
	})

	result := e.IngestBatch([]models.Record{
		eventRecord(t, "e1", "Old Standup", 100),
		calendarRecord(t, "c1", "Old Team", 100),
	})
	assert.Equal(t, 0, result.Events)
	assert.Equal(t, 0, result.Calendars)
}

func TestIdenticalRsvpReingestLeavesVersionAlone(t *testing.T) {
	e := New()
	coord := "31923:" + authorA + ":e1"
	rsvp := rsvpRecord(t, coord, "accepted", 110)
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "Standup", 100)})

	first := e.IngestBatch([]models.Record{rsvp})
	assert.Equal(t, 1, first.Rsvps)
	version := e.Version()

	second := e.IngestBatch([]models.Record{rsvp})
	assert.Equal(t, 0, second.Rsvps)
	assert.Equal(t, version, e.Version())
	// The id is still reported so the pending sweep stays correct.
	assert.Equal(t, []string{rsvp.ID}, second.ConfirmedRsvpIDs)
}

func TestPlaceholderCalendarFullyReplacedByRealDefinition(t *testing.T) {
	e := New()
	rec := eventRecord(t, "e1", "Standup", 100)
	rec.Tags = append(rec.Tags, models.Tag{"a", "31924:" + authorA + ":team-cal"})
	id, err := nip52.ComputeID(rec)
	require.NoError(t, err)
	rec.ID = id
	e.IngestBatch([]models.Record{rec})

	coord := "31924:" + authorA + ":team-cal"
	placeholder, ok := e.CalendarByCoordinate(coord)
	require.True(t, ok)
	assert.True(t, placeholder.Placeholder())
	assert.Equal(t, "team-cal", placeholder.Title)

	e.IngestBatch([]models.Record{calendarRecord(t, "team-cal", "Team Calendar", 100)})
	def, ok := e.CalendarByCoordinate(coord)
	require.True(t, ok)
	assert.False(t, def.Placeholder())
	assert.Equal(t, "Team Calendar", def.Title)
	assert.NotEqual(t, placeholder.Title, def.Title)
}

func TestNewerCalendarDefinitionWins(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{
		calendarRecord(t, "c1", "Renamed", 200),
		calendarRecord(t, "c1", "Original", 100),
	})
	def, ok := e.CalendarByCoordinate("31924:" + authorA + ":c1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", def.Title)
}

func TestSameIdentifierLaterTimestampSurvives(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "At 100", 100)})
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "At 200", 200)})

	events := e.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "At 200", events[0].Title)

	_, found := e.EventByID(eventRecord(t, "e1", "At 100", 100).ID)
	assert.False(t, found)
}

func TestAssociationOrderIsStable(t *testing.T) {
	e := New()
	e.IngestBatch([]models.Record{eventRecord(t, "i1", "Target", 100)})
	coord := "31923:" + authorA + ":i1"
	e.IngestBatch([]models.Record{
		rsvpRecord(t, coord, "tentative", 130),
		rsvpRecord(t, coord, "accepted", 110),
		rsvpRecord(t, coord, "declined", 120),
	})

	rsvps := e.Events()[0].RSVPs
	require.Len(t, rsvps, 3)
	assert.Equal(t, models.RsvpAccepted, rsvps[0].Status)
	assert.Equal(t, models.RsvpDeclined, rsvps[1].Status)
	assert.Equal(t, models.RsvpTentative, rsvps[2].Status)
}

func TestEventsSortedByStart(t *testing.T) {
	e := New()
	early := eventRecord(t, "early", "Early", 100)
	late := eventRecord(t, "late", "Late", 100)
	for i, tag := range late.Tags {
		if tag.Name() == "start" {
			late.Tags[i] = models.Tag{"start", "1700010000"}
		}
	}
	id, err := nip52.ComputeID(late)
	require.NoError(t, err)
	late.ID = id

	e.IngestBatch([]models.Record{late, early})
	events := e.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Early", events[0].Title)
	assert.Equal(t, "Late", events[1].Title)
}

func TestVersionBumpsOnChange(t *testing.T) {
	e := New()
	before := e.Version()
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "Standup", 100)})
	afterFirst := e.Version()
	assert.Greater(t, afterFirst, before)

	// A batch that changes nothing leaves the version alone.
	e.IngestBatch([]models.Record{eventRecord(t, "e1", "Standup", 100)})
	assert.Equal(t, afterFirst, e.Version())
}

func TestCalendarByCoordinateRejectsMalformed(t *testing.T) {
	e := New()
	_, ok := e.CalendarByCoordinate("not-a-coordinate")
	assert.False(t, ok)
}
