package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/service"
)

type ReportHandler struct {
	service *service.ReportService
}

func NewReportHandler(service *service.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// GetAvailability runs (or serves from cache) the availability report. The
// response is always one complete object: success with items, or
// {ok:false, error} on fatal failure. There is no partial error reporting.
func (h *ReportHandler) GetAvailability(c *gin.Context) {
	opts := service.RunOptions{}

	if months, err := strconv.Atoi(c.DefaultQuery("months", "0")); err == nil && months > 0 {
		opts.Months = months
	}
	if merge := strings.TrimSpace(c.Query("merge")); merge != "" {
		opts.Merge = merge == "true" || merge == "1"
	}

	report, err := h.service.Run(c.Request.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("availability report failed")
		c.JSON(http.StatusBadGateway, domain.Report{OK: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
