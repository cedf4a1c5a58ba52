package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/florrin/calagenda/internal/dto"
	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/service"
	appErrors "github.com/florrin/calagenda/pkg/errors"
	"github.com/florrin/calagenda/pkg/response"
)

// ExportHandler renders agenda exports over HTTP.
type ExportHandler struct {
	agenda *service.AgendaService
	export *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(agenda *service.AgendaService, export *service.ExportService) *ExportHandler {
	return &ExportHandler{agenda: agenda, export: export}
}

// Export godoc
// @Summary Export the agenda
// @Description Render the reconciled agenda as csv, pdf or ics
// @Tags Export
// @Produce octet-stream
// @Param format query string true "Export format" Enums(csv, pdf, ics)
// @Param from query string false "Inclusive start date (YYYY-MM-DD)"
// @Param to query string false "Inclusive end date (YYYY-MM-DD)"
// @Param calendar query string false "Calendar coordinate"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /agenda/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	var query dto.EventQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	views, _, err := h.agenda.ListEvents(query)
	if err != nil {
		response.Error(c, err)
		return
	}
	events := make([]*models.CalendarEvent, 0, len(views))
	for _, view := range views {
		events = append(events, view.CalendarEvent)
	}

	result, err := h.export.Render(c.Query("format"), events)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
