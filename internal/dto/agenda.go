package dto

import "github.com/florrin/calagenda/internal/models"

// CreateEventRequest carries the fields of a new calendar event. Dates use
// YYYY-MM-DD; times use HH:MM or HH:MM:SS and apply to timed events only.
type CreateEventRequest struct {
	AllDay       bool     `json:"all_day"`
	Title        string   `json:"title" validate:"required"`
	Summary      string   `json:"summary"`
	Description  string   `json:"description"`
	StartDate    string   `json:"start_date" validate:"required"`
	StartTime    string   `json:"start_time"`
	IncludeEnd   bool     `json:"include_end"`
	EndDate      string   `json:"end_date"`
	EndTime      string   `json:"end_time"`
	StartTZID    string   `json:"start_tzid"`
	EndTZID      string   `json:"end_tzid"`
	Locations    []string `json:"locations"`
	Images       []string `json:"images"`
	Hashtags     []string `json:"hashtags"`
	References   []string `json:"references"`
	Calendars    []string `json:"calendars"`
	Participants string   `json:"participants"` // one identifier per line, optional "; role" suffix
}

// CreateCalendarRequest carries the fields of a new calendar definition.
type CreateCalendarRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// SubmitRsvpRequest carries an RSVP to an existing event.
type SubmitRsvpRequest struct {
	Status   string `json:"status" validate:"required,oneof=accepted declined tentative"`
	Freebusy string `json:"freebusy" validate:"omitempty,oneof=free busy"`
}

// RsvpView is an RSVP annotated with its confirmation state.
type RsvpView struct {
	models.CalendarRsvp
	Pending bool `json:"pending"`
}

// EventView is a reconciled event with per-RSVP pending flags.
type EventView struct {
	*models.CalendarEvent
	RSVPs []RsvpView `json:"rsvps,omitempty"`
}

// EventQuery filters the event listing. A zero Limit returns the full
// filtered list, which is what the export path relies on.
type EventQuery struct {
	From     string `form:"from"`     // YYYY-MM-DD inclusive
	To       string `form:"to"`       // YYYY-MM-DD inclusive
	Calendar string `form:"calendar"` // calendar coordinate
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

// SubmitResponse reports a locally built record handed to the publisher.
type SubmitResponse struct {
	RecordID   string `json:"record_id"`
	Coordinate string `json:"coordinate,omitempty"`
	Pending    bool   `json:"pending"`
}
