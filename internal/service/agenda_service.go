package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/florrin/calagenda/internal/dto"
	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/nip52"
	appErrors "github.com/florrin/calagenda/pkg/errors"
)

type agendaState interface {
	Events() []*models.CalendarEvent
	EventByID(id string) (*models.CalendarEvent, bool)
	Calendars() []*models.CalendarDefinition
	CalendarByCoordinate(coord string) (*models.CalendarDefinition, bool)
	IsPending(id string) bool
	ApplyLocal(rec models.Record)
	SubmitLocalRSVP(rsvp *models.CalendarRsvp)
	Version() uint64
}

type recordSink interface {
	Insert(ctx context.Context, rec *models.Record) error
}

type recordPublisher interface {
	Enqueue(rec models.Record) error
}

// AgendaService is the read and write surface over the reconciled state.
// Writes build an unsigned record, persist it locally, update the engine
// optimistically and hand the record to the publisher for signing and
// relay transmission.
type AgendaService struct {
	state     agendaState
	store     recordSink
	publisher recordPublisher
	resolver  nip52.NIP05Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAgendaService constructs an AgendaService.
func NewAgendaService(state agendaState, store recordSink, publisher recordPublisher, resolver nip52.NIP05Resolver, validate *validator.Validate, logger *zap.Logger) *AgendaService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgendaService{
		state:     state,
		store:     store,
		publisher: publisher,
		resolver:  resolver,
		validator: validate,
		logger:    logger,
	}
}

// ListEvents returns the reconciled events matching the query, in start
// order. When the query carries a positive limit the result is a single page
// of it; a zero limit returns the whole filtered list.
func (s *AgendaService) ListEvents(query dto.EventQuery) ([]dto.EventView, *models.Pagination, error) {
	var from, to time.Time
	var err error
	if query.From != "" {
		if from, err = time.ParseInLocation("2006-01-02", query.From, time.UTC); err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from must use YYYY-MM-DD format")
		}
	}
	if query.To != "" {
		if to, err = time.ParseInLocation("2006-01-02", query.To, time.UTC); err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must use YYYY-MM-DD format")
		}
	}
	calendar := ""
	if query.Calendar != "" {
		calendar = models.CanonicalCalendarCoordinate(query.Calendar)
		if calendar == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "calendar must be a calendar coordinate")
		}
	}

	views := make([]dto.EventView, 0)
	for _, event := range s.state.Events() {
		first, last := event.Time.DateSpan()
		if !from.IsZero() && last.Before(from) {
			continue
		}
		if !to.IsZero() && first.After(to) {
			continue
		}
		if calendar != "" && !belongsTo(event, calendar) {
			continue
		}
		views = append(views, s.viewOf(event))
	}

	total := len(views)
	if query.Limit <= 0 {
		return views, &models.Pagination{Page: 1, PageSize: total, TotalCount: total}, nil
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	pagination := &models.Pagination{Page: page, PageSize: query.Limit, TotalCount: total}
	return views[start:end], pagination, nil
}

// GetEvent returns a single event by record id.
func (s *AgendaService) GetEvent(id string) (*dto.EventView, error) {
	event, ok := s.state.EventByID(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	view := s.viewOf(event)
	return &view, nil
}

// RSVPForAttendee returns the attendee's effective RSVP for the event. The
// association list is ordered oldest first, so the last match is the one
// that stands when an attendee has responded more than once.
func (s *AgendaService) RSVPForAttendee(eventID, attendee string) (*dto.RsvpView, error) {
	event, ok := s.state.EventByID(eventID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	var found *dto.RsvpView
	for _, rsvp := range event.RSVPs {
		if strings.EqualFold(rsvp.Attendee, attendee) {
			found = &dto.RsvpView{CalendarRsvp: rsvp, Pending: s.state.IsPending(rsvp.ID)}
		}
	}
	if found == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no rsvp from attendee")
	}
	return found, nil
}

// ListCalendars returns every known calendar definition.
func (s *AgendaService) ListCalendars() []*models.CalendarDefinition {
	return s.state.Calendars()
}

// GetCalendar returns a calendar definition by coordinate.
func (s *AgendaService) GetCalendar(coord string) (*models.CalendarDefinition, error) {
	if models.CanonicalCalendarCoordinate(coord) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "malformed calendar coordinate")
	}
	def, ok := s.state.CalendarByCoordinate(coord)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "calendar not found")
	}
	return def, nil
}

// Version exposes the engine snapshot version for cache keying.
func (s *AgendaService) Version() uint64 {
	return s.state.Version()
}

// CreateEvent validates, builds and submits a new event record authored by
// the given pubkey.
func (s *AgendaService) CreateEvent(ctx context.Context, req dto.CreateEventRequest, author string) (*dto.SubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	participants, err := nip52.ParseParticipantLines(ctx, req.Participants, s.resolver)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	draft := nip52.EventDraft{
		AllDay:       req.AllDay,
		Identifier:   nip52.NewIdentifier(),
		Title:        req.Title,
		Summary:      req.Summary,
		Description:  req.Description,
		Locations:    req.Locations,
		Images:       req.Images,
		Hashtags:     req.Hashtags,
		References:   req.References,
		Calendars:    req.Calendars,
		Participants: participants,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IncludeEnd:   req.IncludeEnd,
		StartTZID:    req.StartTZID,
		EndTZID:      req.EndTZID,
	}
	rec, err := nip52.BuildEventRecord(draft, author, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	return s.submit(ctx, rec, models.FormatCoordinate(rec.Kind, rec.Pubkey, draft.Identifier), false)
}

// CreateCalendar validates, builds and submits a new calendar definition.
func (s *AgendaService) CreateCalendar(ctx context.Context, req dto.CreateCalendarRequest, author string) (*dto.SubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar payload")
	}

	draft := nip52.CalendarDraft{
		Identifier:  nip52.NewIdentifier(),
		Title:       req.Title,
		Description: req.Description,
	}
	rec, err := nip52.BuildCalendarRecord(draft, author, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	return s.submit(ctx, rec, models.FormatCoordinate(rec.Kind, rec.Pubkey, draft.Identifier), false)
}

// SubmitRsvp builds an RSVP for the event and merges it as pending so it is
// visible to reads before the store confirms it.
func (s *AgendaService) SubmitRsvp(ctx context.Context, eventID string, req dto.SubmitRsvpRequest, attendee string) (*dto.SubmitResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rsvp payload")
	}
	event, ok := s.state.EventByID(eventID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}

	rec, err := nip52.BuildRsvpRecord(event, models.ParseRsvpStatus(req.Status), req.Freebusy, attendee, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	rsvp, ok := nip52.ParseRsvp(rec)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, "built rsvp did not parse")
	}

	if err := s.store.Insert(ctx, &rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist rsvp")
	}
	s.state.SubmitLocalRSVP(rsvp)
	if err := s.publisher.Enqueue(rec); err != nil {
		s.logger.Warn("failed to enqueue rsvp for publishing", zap.String("id", rec.ID), zap.Error(err))
	}

	return &dto.SubmitResponse{RecordID: rec.ID, Coordinate: rec.Tags.FirstValue("a"), Pending: true}, nil
}

func (s *AgendaService) submit(ctx context.Context, rec models.Record, coordinate string, pending bool) (*dto.SubmitResponse, error) {
	if err := s.store.Insert(ctx, &rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist record")
	}
	s.state.ApplyLocal(rec)
	if err := s.publisher.Enqueue(rec); err != nil {
		s.logger.Warn("failed to enqueue record for publishing", zap.String("id", rec.ID), zap.Error(err))
	}
	return &dto.SubmitResponse{RecordID: rec.ID, Coordinate: coordinate, Pending: pending}, nil
}

func (s *AgendaService) viewOf(event *models.CalendarEvent) dto.EventView {
	view := dto.EventView{CalendarEvent: event}
	for _, rsvp := range event.RSVPs {
		view.RSVPs = append(view.RSVPs, dto.RsvpView{
			CalendarRsvp: rsvp,
			Pending:      s.state.IsPending(rsvp.ID),
		})
	}
	return view
}

func belongsTo(event *models.CalendarEvent, coordinate string) bool {
	for _, coord := range event.Calendars {
		if strings.EqualFold(coord, coordinate) {
			return true
		}
	}
	return false
}
