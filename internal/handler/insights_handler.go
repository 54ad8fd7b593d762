package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/region-insights-go/internal/repository"
	"github.com/jengzang/region-insights-go/internal/service"
	"github.com/jengzang/region-insights-go/pkg/response"
)

// DefaultTopAnomalies is used when the n parameter is absent
const DefaultTopAnomalies = 20

// InsightsHandler handles HTTP requests for the latest snapshot
type InsightsHandler struct {
	insightsService *service.InsightsService
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(insightsService *service.InsightsService) *InsightsHandler {
	return &InsightsHandler{insightsService: insightsService}
}

// GetRun handles GET /api/v1/run
func (h *InsightsHandler) GetRun(c *gin.Context) {
	run, err := h.insightsService.LatestRun(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, run)
}

// ListStates handles GET /api/v1/states
func (h *InsightsHandler) ListStates(c *gin.Context) {
	states, err := h.insightsService.States(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, states)
}

// GetStateDistricts handles GET /api/v1/states/:state/districts
func (h *InsightsHandler) GetStateDistricts(c *gin.Context) {
	detail, err := h.insightsService.State(c.Request.Context(), c.Param("state"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, detail)
}

// GetRegion handles GET /api/v1/regions/:state/:district
func (h *InsightsHandler) GetRegion(c *gin.Context) {
	detail, err := h.insightsService.Region(c.Request.Context(), c.Param("state"), c.Param("district"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, detail)
}

// Compare handles GET /api/v1/comparison?state_a&district_a&state_b&district_b&period
func (h *InsightsHandler) Compare(c *gin.Context) {
	stateA, districtA := c.Query("state_a"), c.Query("district_a")
	stateB, districtB := c.Query("state_b"), c.Query("district_b")
	if stateA == "" || districtA == "" || stateB == "" || districtB == "" {
		response.BadRequest(c, "state_a, district_a, state_b and district_b are required")
		return
	}

	cmp, err := h.insightsService.Compare(c.Request.Context(), stateA, districtA, stateB, districtB, c.Query("period"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, cmp)
}

// TopAnomalies handles GET /api/v1/anomalies/top?n=
func (h *InsightsHandler) TopAnomalies(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", strconv.Itoa(DefaultTopAnomalies)))
	if err != nil {
		response.BadRequest(c, "Invalid n parameter")
		return
	}

	records, err := h.insightsService.TopAnomalies(c.Request.Context(), n)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, records)
}

// AnomalySummary handles GET /api/v1/anomalies/summary
func (h *InsightsHandler) AnomalySummary(c *gin.Context) {
	summary, err := h.insightsService.AnomalySummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, summary)
}

// GetCoverage handles GET /api/v1/coverage/:level
func (h *InsightsHandler) GetCoverage(c *gin.Context) {
	coverage, err := h.insightsService.Coverage(c.Request.Context(), c.Param("level"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, coverage)
}

// GetPattern handles GET /api/v1/patterns/:name
func (h *InsightsHandler) GetPattern(c *gin.Context) {
	report, err := h.insightsService.Pattern(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, report)
}

// Locate handles GET /api/v1/locate?lat&lng or ?geohash
func (h *InsightsHandler) Locate(c *gin.Context) {
	if geohash := c.Query("geohash"); geohash != "" {
		loc, err := h.insightsService.LocateGeohash(geohash)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, loc)
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		response.BadRequest(c, "Invalid lat or lng parameter")
		return
	}

	loc, err := h.insightsService.Locate(lat, lng)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, loc)
}

// writeError maps service and repository errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, repository.ErrNoSnapshot), errors.Is(err, service.ErrNoBoundaries):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, "internal error")
	}
}
