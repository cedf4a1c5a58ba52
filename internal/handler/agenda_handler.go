package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/florrin/calagenda/internal/dto"
	"github.com/florrin/calagenda/internal/middleware"
	"github.com/florrin/calagenda/internal/service"
	appErrors "github.com/florrin/calagenda/pkg/errors"
	"github.com/florrin/calagenda/pkg/response"
)

// AgendaHandler wires HTTP endpoints to the agenda service.
type AgendaHandler struct {
	service *service.AgendaService
}

// NewAgendaHandler creates a new handler.
func NewAgendaHandler(svc *service.AgendaService) *AgendaHandler {
	return &AgendaHandler{service: svc}
}

// ListEvents godoc
// @Summary List reconciled events
// @Description List calendar events, optionally filtered by date range or calendar coordinate
// @Tags Agenda
// @Produce json
// @Param from query string false "Inclusive start date (YYYY-MM-DD)"
// @Param to query string false "Inclusive end date (YYYY-MM-DD)"
// @Param calendar query string false "Calendar coordinate"
// @Param page query int false "Page number"
// @Param limit query int false "Page size, 0 for all"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [get]
func (h *AgendaHandler) ListEvents(c *gin.Context) {
	var query dto.EventQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	views, pagination, err := h.service.ListEvents(query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, views, pagination)
}

// GetEvent godoc
// @Summary Get one event
// @Description Fetch a single reconciled event by record id
// @Tags Agenda
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *AgendaHandler) GetEvent(c *gin.Context) {
	view, err := h.service.GetEvent(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// GetAttendeeRsvp godoc
// @Summary Get an attendee's RSVP
// @Description Fetch the effective RSVP a pubkey holds for an event
// @Tags Agenda
// @Produce json
// @Param id path string true "Record id"
// @Param pubkey path string true "Attendee pubkey"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/rsvps/{pubkey} [get]
func (h *AgendaHandler) GetAttendeeRsvp(c *gin.Context) {
	view, err := h.service.RSVPForAttendee(c.Param("id"), c.Param("pubkey"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ListCalendars godoc
// @Summary List calendars
// @Description List known calendar definitions, placeholders included
// @Tags Agenda
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendars [get]
func (h *AgendaHandler) ListCalendars(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.ListCalendars(), nil)
}

// GetCalendar godoc
// @Summary Get one calendar
// @Description Fetch a calendar definition by coordinate
// @Tags Agenda
// @Produce json
// @Param coordinate path string true "Calendar coordinate"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendars/{coordinate} [get]
func (h *AgendaHandler) GetCalendar(c *gin.Context) {
	def, err := h.service.GetCalendar(c.Param("coordinate"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, def, nil)
}

// CreateEvent godoc
// @Summary Create an event
// @Description Build, persist and publish a new calendar event record
// @Tags Agenda
// @Accept json
// @Produce json
// @Param payload body dto.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /events [post]
func (h *AgendaHandler) CreateEvent(c *gin.Context) {
	author, ok := middleware.CurrentPubkey(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	res, err := h.service.CreateEvent(c.Request.Context(), req, author)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// CreateCalendar godoc
// @Summary Create a calendar
// @Description Build, persist and publish a new calendar definition record
// @Tags Agenda
// @Accept json
// @Produce json
// @Param payload body dto.CreateCalendarRequest true "Calendar payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /calendars [post]
func (h *AgendaHandler) CreateCalendar(c *gin.Context) {
	author, ok := middleware.CurrentPubkey(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid calendar payload"))
		return
	}

	res, err := h.service.CreateCalendar(c.Request.Context(), req, author)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// SubmitRsvp godoc
// @Summary RSVP to an event
// @Description Build, persist and publish an RSVP; visible immediately, pending until confirmed
// @Tags Agenda
// @Accept json
// @Produce json
// @Param id path string true "Event record id"
// @Param payload body dto.SubmitRsvpRequest true "RSVP payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/rsvp [post]
func (h *AgendaHandler) SubmitRsvp(c *gin.Context) {
	attendee, ok := middleware.CurrentPubkey(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitRsvpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rsvp payload"))
		return
	}

	res, err := h.service.SubmitRsvp(c.Request.Context(), c.Param("id"), req, attendee)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}
