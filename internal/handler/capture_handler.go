package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/repository"
	"github.com/sathizz7/streetview-capturing-sys/internal/service"
	"github.com/sathizz7/streetview-capturing-sys/pkg/response"
)

// CaptureHandler handles HTTP requests for capture runs
type CaptureHandler struct {
	service *service.CaptureService
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(service *service.CaptureService) *CaptureHandler {
	return &CaptureHandler{service: service}
}

type captureOptionsRequest struct {
	RoadSearchRadiusM          float64 `json:"road_search_radius_m"`
	RoadSampleCount            int     `json:"road_sample_count"`
	MaxRefinementIterations    int     `json:"max_refinement_iterations"`
	RefinementQualityThreshold int     `json:"refinement_quality_threshold"`
	OverallTimeoutS            float64 `json:"overall_timeout_s"`
	MaxFanout                  int     `json:"max_fanout"`
}

type createCaptureRequest struct {
	Latitude  float64               `json:"latitude"`
	Longitude float64               `json:"longitude"`
	Options   captureOptionsRequest `json:"options"`
}

func (r captureOptionsRequest) toOptions() models.CaptureOptions {
	return models.CaptureOptions{
		RoadSearchRadiusM:          r.RoadSearchRadiusM,
		RoadSampleCount:            r.RoadSampleCount,
		MaxRefinementIterations:    r.MaxRefinementIterations,
		RefinementQualityThreshold: r.RefinementQualityThreshold,
		OverallTimeout:             time.Duration(r.OverallTimeoutS * float64(time.Second)),
		MaxFanout:                  r.MaxFanout,
	}
}

// CreateCapture starts a capture run for a coordinate pair
// POST /api/v1/captures
func (h *CaptureHandler) CreateCapture(c *gin.Context) {
	var req createCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	createdBy := c.GetString("user")

	target := models.TargetLocation{Lat: req.Latitude, Lon: req.Longitude}
	rec, err := h.service.CreateRun(target, req.Options.toOptions(), createdBy)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, response.Response{
		Code:    0,
		Message: "capture run accepted",
		Data:    rec,
	})
}

// GetCapture retrieves a run record, with the full pipeline result inlined
// once the run is terminal
// GET /api/v1/captures/:id
func (h *CaptureHandler) GetCapture(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.service.GetRun(id)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	payload := gin.H{"run": rec}
	if rec.ResultJSON != "" {
		payload["result"] = json.RawMessage(rec.ResultJSON)
	}
	response.Success(c, payload)
}

// ListCaptures retrieves run records
// GET /api/v1/captures?status=&limit=&offset=
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	status := c.Query("status")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		offset = 0
	}

	records, err := h.service.ListRuns(status, limit, offset)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"runs":   records,
		"limit":  limit,
		"offset": offset,
	})
}
