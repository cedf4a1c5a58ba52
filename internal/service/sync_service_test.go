package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/nip52"
)

type stubSource struct {
	recent  []models.Record
	pending []models.Record
	maxSeq  int64

	pollCursors []int64
}

func (s *stubSource) FetchRecent(_ context.Context, _ []int, limit int) ([]models.Record, error) {
	if len(s.recent) > limit {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *stubSource) PollSince(_ context.Context, _ []int, cursor int64, batch int) ([]models.Record, error) {
	s.pollCursors = append(s.pollCursors, cursor)
	var out []models.Record
	for _, rec := range s.pending {
		if rec.Seq > cursor {
			out = append(out, rec)
		}
		if len(out) == batch {
			break
		}
	}
	return out, nil
}

func (s *stubSource) MaxSeq(context.Context) (int64, error) { return s.maxSeq, nil }

func storeRecord(t *testing.T, identifier, title string, createdAt, seq int64) models.Record {
	t.Helper()
	rec := models.Record{
		Pubkey:    testOperator,
		Kind:      models.KindTimeEvent,
		CreatedAt: createdAt,
		Tags: models.TagList{
			{"d", identifier},
			{"title", title},
			{"start", "1700003600"},
		},
		Seq: seq,
	}
	id, err := nip52.ComputeID(rec)
	require.NoError(t, err)
	rec.ID = id
	return rec
}

func TestLoadIngestsRecentRecordsOldestFirst(t *testing.T) {
	// FetchRecent returns newest first; both versions of e1 arrive and
	// the newer one must survive regardless.
	source := &stubSource{
		recent: []models.Record{
			storeRecord(t, "e1", "Newer", 200, 2),
			storeRecord(t, "e1", "Older", 100, 1),
		},
		maxSeq: 2,
	}
	svc := NewSyncService(source, nil, nil, SyncConfig{})

	require.NoError(t, svc.Load(context.Background()))
	events := svc.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Newer", events[0].Title)
}

func TestPollAdvancesCursorAndDrains(t *testing.T) {
	source := &stubSource{maxSeq: 0}
	svc := NewSyncService(source, nil, nil, SyncConfig{BatchSize: 2})
	require.NoError(t, svc.Load(context.Background()))

	source.pending = []models.Record{
		storeRecord(t, "e1", "One", 100, 1),
		storeRecord(t, "e2", "Two", 110, 2),
		storeRecord(t, "e3", "Three", 120, 3),
	}
	require.NoError(t, svc.Poll(context.Background()))

	assert.Len(t, svc.Events(), 3)
	// two full batches: cursor 0, then 2, then the short batch ends the loop
	assert.Equal(t, []int64{0, 2}, source.pollCursors)

	// nothing new: one empty poll round
	source.pollCursors = nil
	require.NoError(t, svc.Poll(context.Background()))
	assert.Len(t, svc.Events(), 3)
	assert.Equal(t, []int64{3}, source.pollCursors)
}

func TestPollSweepsConfirmedPending(t *testing.T) {
	source := &stubSource{}
	svc := NewSyncService(source, nil, nil, SyncConfig{})
	require.NoError(t, svc.Load(context.Background()))

	event := storeRecord(t, "e1", "Standup", 100, 1)
	source.pending = []models.Record{event}
	require.NoError(t, svc.Poll(context.Background()))

	rsvpRec := models.Record{
		Pubkey:    testAttendee,
		Kind:      models.KindRSVP,
		CreatedAt: 150,
		Tags: models.TagList{
			{"a", "31923:" + testOperator + ":e1"},
			{"status", "accepted"},
		},
	}
	id, err := nip52.ComputeID(rsvpRec)
	require.NoError(t, err)
	rsvpRec.ID = id

	local, ok := nip52.ParseRsvp(rsvpRec)
	require.True(t, ok)
	svc.SubmitLocalRSVP(local)
	assert.True(t, svc.IsPending(local.ID))

	// The store echoes the submission back.
	rsvpRec.Seq = 2
	source.pending = append(source.pending, rsvpRec)
	require.NoError(t, svc.Poll(context.Background()))

	assert.False(t, svc.IsPending(local.ID))
	events := svc.Events()
	require.Len(t, events, 1)
	require.Len(t, events[0].RSVPs, 1)
}

func TestApplyLocalVisibleImmediately(t *testing.T) {
	svc := NewSyncService(&stubSource{}, nil, nil, SyncConfig{})
	require.NoError(t, svc.Load(context.Background()))

	before := svc.Version()
	svc.ApplyLocal(storeRecord(t, "e1", "Local", 100, 0))
	assert.Len(t, svc.Events(), 1)
	assert.Greater(t, svc.Version(), before)
}
