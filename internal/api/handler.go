package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"crime_service/internal/core"
	"crime_service/internal/domain/model"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service   *core.CrimeService
	chunkSize int
}

func NewHandler(service *core.CrimeService, chunkSize int) *Handler {
	if chunkSize <= 0 || chunkSize > core.MaxChunkSize {
		chunkSize = core.DefaultChunkSize
	}
	return &Handler{service: service, chunkSize: chunkSize}
}

type geoPointsResponse struct {
	Data   []model.GeoPoint `json:"data"`
	Bounds *model.Bounds    `json:"bounds,omitempty"`
	// SpanKm is the diagonal of Bounds in kilometres.
	SpanKm float64 `json:"spanKm,omitempty"`
}

type boundsResponse struct {
	Data   model.Bounds `json:"data"`
	Name   string       `json:"name"`
	Center model.LatLng `json:"center"`
}

// Locations lists every area name known to the store.
func (h *Handler) Locations(c *gin.Context) {
	areas, err := h.service.ListAreas(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": areas})
}

func (h *Handler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// SharedDates lists the months that have data for the area.
func (h *Handler) SharedDates(c *gin.Context) {
	months, err := h.service.AreaMonths(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dates": months})
}

func (h *Handler) DataByMonth(c *gin.Context) {
	totals, err := h.service.MonthlyTotals(c.Request.Context(), c.Param("id"), c.Param("year"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": totals})
}

func (h *Handler) CrimeDataByMonth(c *gin.Context) {
	summary, err := h.service.Breakdown(c.Request.Context(), c.Param("id"), c.Param("month"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) CrimeDataByCrime(c *gin.Context) {
	points, err := h.service.GeoPoints(c.Request.Context(), c.Param("id"), c.Param("month"), c.Param("crimeType"))
	if err != nil {
		c.Error(err)
		return
	}

	resp := geoPointsResponse{Data: points}
	if b, ok := core.PointBounds(points); ok {
		resp.Bounds = &b
		resp.SpanKm = core.SpanKm(b)
	}
	c.JSON(http.StatusOK, resp)
}

// StreamCrimeDataByCrime writes the points of CrimeDataByCrime as
// newline-delimited JSON, one {"data": [...]} object per chunk.
func (h *Handler) StreamCrimeDataByCrime(c *gin.Context) {
	size := h.chunkSize
	if raw := c.Query("chunk"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > core.MaxChunkSize {
			c.Error(&core.ValidationError{Status: http.StatusBadRequest, Message: "Invalid chunk size"})
			return
		}
		size = n
	}

	enc := json.NewEncoder(c.Writer)
	started := false
	err := h.service.StreamGeoPoints(c.Request.Context(), c.Param("id"), c.Param("month"), c.Param("crimeType"), size,
		func(chunk []model.GeoPoint) error {
			if !started {
				c.Header("Content-Type", "application/x-ndjson")
				c.Status(http.StatusOK)
				started = true
			}
			if err := enc.Encode(gin.H{"data": chunk}); err != nil {
				return err
			}
			c.Writer.Flush()
			return nil
		})

	switch {
	case err != nil && !started:
		c.Error(err)
	case err != nil:
		slog.Warn("geo point stream aborted", "error", err, "request_id", c.GetString(requestIDKey))
	case !started:
		// no points: an empty stream is still a successful response
		c.Header("Content-Type", "application/x-ndjson")
		c.Status(http.StatusOK)
	}
}

func (h *Handler) Bounds(c *gin.Context) {
	boundary, err := h.service.AreaBounds(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, boundsResponse{
		Data:   boundary.Bounds,
		Name:   boundary.Name,
		Center: boundary.Bounds.Center(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
