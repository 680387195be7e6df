package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projectTest192/FoodTrace/internal/models"
	"github.com/projectTest192/FoodTrace/internal/trace"
)

// GetTrace returns the assembled trace view for an entity
// @Summary      Get Trace
// @Description  Joins entity metadata, provenance history and live sensor windows for an entity
// @Tags         Trace
// @Produce      json
// @Param        kind  path  string  true  "Entity Kind"
// @Param        id    path  string  true  "Entity ID"
// @Success      200  {object}  trace.TraceView
// @Failure      404  {object}  models.NotFoundError
// @Failure      500  {object}  models.BaseError
// @Router       /api/trace/{kind}/{id} [get]
func (api *API) GetTrace(c *gin.Context) {
	kind := models.EntityKind(c.Param("kind"))
	id := c.Param("id")

	view, err := api.tracer.Trace(c.Request.Context(), kind, id)
	if err != nil {
		if errors.Is(err, trace.ErrEntityNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError(string(kind)))
			return
		}
		api.logger.Errorw("trace failed", "kind", kind, "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetDeviceRealtime returns the live window of one kind for one device
// @Summary      Get Device Realtime Readings
// @Description  Returns the retained readings of one data kind for a device
// @Tags         Devices
// @Produce      json
// @Param        deviceId  path   string  true   "Device ID"
// @Param        kind      query  string  false  "Data Kind"
// @Param        since     query  string  false  "RFC3339 lower bound"
// @Success      200  {object}  []models.TelemetryReading
// @Failure      400  {object}  models.ValidationError
// @Failure      404  {object}  models.NotFoundError
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices/{deviceId}/realtime [get]
func (api *API) GetDeviceRealtime(c *gin.Context) {
	deviceID := c.Param("deviceId")

	kind := models.DataKind(c.DefaultQuery("kind", string(models.KindTemp)))
	switch kind {
	case models.KindTemp, models.KindHumidity, models.KindGPS:
	default:
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("kind", "unknown data kind"))
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.NewFieldValidationError("since", "not a RFC3339 timestamp"))
			return
		}
		since = parsed
	}

	window, err := api.tracer.Realtime(c.Request.Context(), deviceID, kind, since)
	if err != nil {
		if errors.Is(err, trace.ErrEntityNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
			return
		}
		api.logger.Errorw("realtime lookup failed", "device-id", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.JSON(http.StatusOK, window)
}
