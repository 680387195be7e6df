package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projectTest192/FoodTrace/internal/ingest"
	"github.com/projectTest192/FoodTrace/internal/models"
)

// IngestRequest is the HTTP form of a broker message, for field gateways
// without broker access.
type IngestRequest struct {
	Topic   string          `json:"topic" example:"foodtrace/D1/data"`
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
}

// IngestResponse reports the outcome of an HTTP ingestion.
type IngestResponse struct {
	Accepted bool   `json:"accepted"`
	Warning  string `json:"warning,omitempty"`
}

// Ingest accepts one telemetry message over HTTP
// @Summary      Ingest Telemetry
// @Description  Accepts one telemetry message, same handling as the broker path
// @Tags         Ingest
// @Accept       json
// @Produce      json
// @Param        message  body  IngestRequest  true  "Message"
// @Success      200  {object}  IngestResponse
// @Failure      400  {object}  models.ValidationError
// @Failure      500  {object}  models.BaseError
// @Router       /api/ingest [post]
func (api *API) Ingest(c *gin.Context) {
	var request IngestRequest
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Topic == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("topic", "topic is required"))
		return
	}

	err := api.ingestor.Ingest(c.Request.Context(), request.Topic, request.Payload)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, IngestResponse{Accepted: true})
	case errors.Is(err, ingest.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("payload", err.Error()))
	case errors.Is(err, ingest.ErrUnboundDevice):
		// stored under the device key only; surfaced as a warning
		c.JSON(http.StatusOK, IngestResponse{Accepted: true, Warning: err.Error()})
	default:
		api.logger.Errorw("http ingest failed", "topic", request.Topic, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
	}
}
