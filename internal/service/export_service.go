package service

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/pkg/export"
	appErrors "github.com/florrin/calagenda/pkg/errors"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export output.
type ExportConfig struct {
	CalendarName string
}

// ExportResult is a rendered export document.
type ExportResult struct {
	ContentType string
	Filename    string
	Data        []byte
}

// ExportService renders the reconciled agenda as CSV, PDF or iCalendar.
type ExportService struct {
	csv    csvRenderer
	pdf    pdfRenderer
	cfg    ExportConfig
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = "calagenda"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, cfg: cfg, logger: logger}
}

// Render produces the agenda in the requested format.
func (s *ExportService) Render(format string, events []*models.CalendarEvent) (*ExportResult, error) {
	switch strings.ToLower(format) {
	case "csv":
		data, err := s.csv.Render(s.dataset(events))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{ContentType: "text/csv", Filename: s.filename("csv"), Data: data}, nil
	case "pdf":
		data, err := s.pdf.Render(s.dataset(events), s.cfg.CalendarName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{ContentType: "application/pdf", Filename: s.filename("pdf"), Data: data}, nil
	case "ics":
		return &ExportResult{ContentType: "text/calendar", Filename: s.filename("ics"), Data: s.renderICS(events)}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or ics")
	}
}

func (s *ExportService) dataset(events []*models.CalendarEvent) export.Dataset {
	headers := []string{"Title", "Start", "End", "Location", "Calendars", "Accepted", "Declined", "Tentative"}
	rows := make([]map[string]string, 0, len(events))
	for _, event := range events {
		accepted, declined, tentative := rsvpCounts(event)
		rows = append(rows, map[string]string{
			"Title":     event.Title,
			"Start":     formatStart(event),
			"End":       formatEnd(event),
			"Location":  strings.Join(event.Locations, "; "),
			"Calendars": strings.Join(event.Calendars, "; "),
			"Accepted":  fmt.Sprintf("%d", accepted),
			"Declined":  fmt.Sprintf("%d", declined),
			"Tentative": fmt.Sprintf("%d", tentative),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func (s *ExportService) renderICS(events []*models.CalendarEvent) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//calagenda//EN")
	cal.SetXWRCalName(s.cfg.CalendarName)

	now := time.Now().UTC()
	for _, event := range events {
		ve := cal.AddEvent(event.ID)
		ve.SetDtStampTime(now)
		ve.SetCreatedTime(time.Unix(event.CreatedAt, 0).UTC())
		ve.SetSummary(event.Title)
		if event.Description != "" {
			ve.SetDescription(event.Description)
		}
		if len(event.Locations) > 0 {
			ve.SetLocation(strings.Join(event.Locations, "; "))
		}

		if event.Time.AllDay {
			ve.SetAllDayStartAt(event.Time.StartDay)
			if event.Time.EndDay != nil {
				// the stored end is already exclusive, matching DTEND semantics
				ve.SetAllDayEndAt(*event.Time.EndDay)
			}
		} else {
			ve.SetStartAt(event.Time.Start)
			if event.Time.End != nil {
				ve.SetEndAt(*event.Time.End)
			}
		}
	}

	return []byte(cal.Serialize())
}

func (s *ExportService) filename(ext string) string {
	return fmt.Sprintf("%s-%s.%s", s.cfg.CalendarName, time.Now().UTC().Format("20060102"), ext)
}

func formatStart(event *models.CalendarEvent) string {
	if event.Time.AllDay {
		return event.Time.StartDay.Format("2006-01-02")
	}
	return event.Time.Start.UTC().Format(time.RFC3339)
}

func formatEnd(event *models.CalendarEvent) string {
	if event.Time.AllDay {
		if event.Time.EndDay == nil {
			return ""
		}
		_, last := event.Time.DateSpan()
		return last.Format("2006-01-02")
	}
	if event.Time.End == nil {
		return ""
	}
	return event.Time.End.UTC().Format(time.RFC3339)
}

func rsvpCounts(event *models.CalendarEvent) (accepted, declined, tentative int) {
	// the newest RSVP per attendee wins; association order is oldest first
	latest := make(map[string]models.RsvpStatus)
	for _, rsvp := range event.RSVPs {
		latest[rsvp.Attendee] = rsvp.Status
	}
	for _, status := range latest {
		switch status {
		case models.RsvpAccepted:
			accepted++
		case models.RsvpDeclined:
			declined++
		case models.RsvpTentative:
			tentative++
		}
	}
	return accepted, declined, tentative
}
