// Package engine maintains the reconciled calendar state: events, calendar
// definitions and RSVPs, deduplicated by replaceable-record identity, with
// locally submitted RSVPs merged in until the store confirms them.
//
// The engine does no I/O and never fails: malformed records are filtered
// input. Callers own exclusive access; the sync layer serializes all calls.
package engine

import (
	"sort"
	"strings"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/nip52"
)

// BatchResult summarizes one ingest pass.
type BatchResult struct {
	Events           int
	Calendars        int
	Rsvps            int
	Ignored          int
	ConfirmedRsvpIDs []string
}

// Engine is the reconciliation core. Not safe for concurrent use.
type Engine struct {
	events    []*models.CalendarEvent
	calendars map[string]*models.CalendarDefinition // by coordinate
	rsvps     map[string]*models.CalendarRsvp       // confirmed, by record id
	pending   map[string]*models.CalendarRsvp       // local, unconfirmed, by predicted id
	version   uint64
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		calendars: make(map[string]*models.CalendarDefinition),
		rsvps:     make(map[string]*models.CalendarRsvp),
		pending:   make(map[string]*models.CalendarRsvp),
	}
}

// IngestBatch applies freshly observed records in order. Unknown kinds and
// unparseable records are counted but otherwise ignored.
func (e *Engine) IngestBatch(records []models.Record) BatchResult {
	var result BatchResult
	changed := false

	for _, rec := range records {
		switch rec.Kind {
		case models.KindDateEvent, models.KindTimeEvent:
			event, ok := nip52.ParseEvent(rec)
			if !ok {
				result.Ignored++
				continue
			}
			if e.upsertEvent(event) {
				changed = true
				result.Events++
			}
		case models.KindCalendar:
			def, ok := nip52.ParseCalendar(rec)
			if !ok {
				result.Ignored++
				continue
			}
			if e.upsertCalendar(def) {
				changed = true
				result.Calendars++
			}
		case models.KindRSVP:
			rsvp, ok := nip52.ParseRsvp(rec)
			if !ok {
				result.Ignored++
				continue
			}
			if e.applyRsvp(rsvp) {
				changed = true
				result.Rsvps++
			}
			result.ConfirmedRsvpIDs = append(result.ConfirmedRsvpIDs, rsvp.ID)
		default:
			result.Ignored++
		}
	}

	if changed {
		e.version++
	}
	return result
}

// SubmitLocalRSVP merges a locally built RSVP so it is visible immediately,
// and marks it pending until the store echoes a record with the same id.
// A resubmission by the same attendee takes precedence in association order
// by virtue of its newer timestamp; the earlier entry stays in the confirmed
// map until external sync supersedes it.
func (e *Engine) SubmitLocalRSVP(rsvp *models.CalendarRsvp) {
	e.rsvps[rsvp.ID] = rsvp
	e.pending[rsvp.ID] = rsvp
	for _, event := range e.events {
		if rsvp.MatchesEvent(event) {
			e.recomputeAssociations(event)
		}
	}
	e.version++
}

// ReconcileAfterSync removes pending entries fulfilled by the given batch.
// It runs after ingestion so a confirmation arriving in the same batch as
// its own submission is still swept.
func (e *Engine) ReconcileAfterSync(confirmedIDs []string) {
	for _, id := range confirmedIDs {
		delete(e.pending, id)
	}
}

// Events returns the reconciled events sorted by start time. The snapshot
// is a deep copy: callers may hold and read it after releasing whatever
// lock guards the engine, while ingestion keeps mutating the originals.
func (e *Engine) Events() []*models.CalendarEvent {
	out := make([]*models.CalendarEvent, len(e.events))
	for i, event := range e.events {
		out[i] = cloneEvent(event)
	}
	return out
}

// EventByID looks an event up by record id. The result is a deep copy.
func (e *Engine) EventByID(id string) (*models.CalendarEvent, bool) {
	for _, event := range e.events {
		if strings.EqualFold(event.ID, id) {
			return cloneEvent(event), true
		}
	}
	return nil, false
}

// Calendars returns copies of all known calendar definitions, placeholders
// included, sorted by title then coordinate.
func (e *Engine) Calendars() []*models.CalendarDefinition {
	out := make([]*models.CalendarDefinition, 0, len(e.calendars))
	for _, def := range e.calendars {
		clone := *def
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Coordinate < out[j].Coordinate
	})
	return out
}

// CalendarByCoordinate looks a definition up by its coordinate string.
func (e *Engine) CalendarByCoordinate(coord string) (*models.CalendarDefinition, bool) {
	canonical := models.CanonicalCalendarCoordinate(coord)
	if canonical == "" {
		return nil, false
	}
	def, ok := e.calendars[canonical]
	if !ok {
		return nil, false
	}
	clone := *def
	return &clone, true
}

// IsPending reports whether the RSVP with the given id still awaits
// external confirmation.
func (e *Engine) IsPending(id string) bool {
	_, ok := e.pending[id]
	return ok
}

// PendingCount returns the number of unconfirmed local RSVPs.
func (e *Engine) PendingCount() int {
	return len(e.pending)
}

// Version is a counter bumped on every observable state change. Response
// caches key on it so superseded state is never served.
func (e *Engine) Version() uint64 {
	return e.version
}

func (e *Engine) upsertEvent(event *models.CalendarEvent) bool {
	for i, existing := range e.events {
		if !existing.SameIdentity(event) {
			continue
		}
		if !supersedes(event.CreatedAt, event.ID, existing.CreatedAt, existing.ID) {
			return false
		}
		e.events[i] = event
		e.recomputeAssociations(event)
		e.ensurePlaceholders(event)
		e.resortEvents()
		return true
	}

	e.events = append(e.events, event)
	e.recomputeAssociations(event)
	e.ensurePlaceholders(event)
	e.resortEvents()
	return true
}

func (e *Engine) upsertCalendar(def *models.CalendarDefinition) bool {
	existing, ok := e.calendars[def.Coordinate]
	if ok && !supersedes(def.CreatedAt, def.ID, existing.CreatedAt, existing.ID) {
		return false
	}
	// Full replacement, placeholders included. No field-level merge.
	e.calendars[def.Coordinate] = def
	return true
}

// applyRsvp stores a confirmed RSVP by record id and reports whether state
// changed. Re-ingesting an entry identical to the stored one is a no-op
// unless it clears a pending flag.
func (e *Engine) applyRsvp(rsvp *models.CalendarRsvp) bool {
	existing, ok := e.rsvps[rsvp.ID]
	_, wasPending := e.pending[rsvp.ID]
	if ok && !wasPending && *existing == *rsvp {
		return false
	}

	e.rsvps[rsvp.ID] = rsvp
	delete(e.pending, rsvp.ID)
	for _, event := range e.events {
		if rsvp.MatchesEvent(event) {
			e.recomputeAssociations(event)
		}
	}
	return true
}

// recomputeAssociations rebuilds the event's RSVP list from scratch by
// scanning the confirmed map. Stable order is (created_at, id) ascending so
// the newest matching RSVP per attendee comes last.
func (e *Engine) recomputeAssociations(event *models.CalendarEvent) {
	var matched []models.CalendarRsvp
	for _, rsvp := range e.rsvps {
		if rsvp.MatchesEvent(event) {
			matched = append(matched, *rsvp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt < matched[j].CreatedAt
		}
		return matched[i].ID < matched[j].ID
	})
	event.RSVPs = matched
}

// ensurePlaceholders creates an identifier-titled stand-in definition for
// every calendar an event references before the defining record is seen.
// Placeholders carry a zero timestamp and empty id so any real definition
// supersedes them.
func (e *Engine) ensurePlaceholders(event *models.CalendarEvent) {
	for _, coord := range event.Calendars {
		if _, ok := e.calendars[coord]; ok {
			continue
		}
		kind, author, identifier, ok := models.ParseCoordinate(coord)
		if !ok || kind != models.KindCalendar {
			continue
		}
		e.calendars[coord] = &models.CalendarDefinition{
			Coordinate: coord,
			Identifier: identifier,
			Title:      identifier,
			Author:     author,
		}
	}
}

func (e *Engine) resortEvents() {
	sort.SliceStable(e.events, func(i, j int) bool {
		a, b := e.events[i], e.events[j]
		if au, bu := a.Time.StartUnix(), b.Time.StartUnix(); au != bu {
			return au < bu
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

// cloneEvent deep-copies an event so no engine-owned slice or pointer
// escapes to callers.
func cloneEvent(event *models.CalendarEvent) *models.CalendarEvent {
	clone := *event
	clone.Locations = append([]string(nil), event.Locations...)
	clone.Images = append([]string(nil), event.Images...)
	clone.Hashtags = append([]string(nil), event.Hashtags...)
	clone.References = append([]string(nil), event.References...)
	clone.Calendars = append([]string(nil), event.Calendars...)
	clone.Participants = append([]models.Participant(nil), event.Participants...)
	clone.RSVPs = append([]models.CalendarRsvp(nil), event.RSVPs...)
	if event.Time.EndDay != nil {
		end := *event.Time.EndDay
		clone.Time.EndDay = &end
	}
	if event.Time.End != nil {
		end := *event.Time.End
		clone.Time.End = &end
	}
	return &clone
}

// supersedes implements the replaceable-record rule: the maximum
// (created_at, id) pair under lexicographic order wins.
func supersedes(newCreated int64, newID string, oldCreated int64, oldID string) bool {
	if newCreated != oldCreated {
		return newCreated > oldCreated
	}
	return strings.ToLower(newID) > strings.ToLower(oldID)
}
