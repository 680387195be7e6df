package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/lifecycle"
	"github.com/projectTest192/FoodTrace/internal/models"
)

// TransitionRejected is returned in the body of an HTTP 409 when the
// requested status change is not in the transition table.
type TransitionRejected struct {
	models.BaseError
	From    models.Status   `json:"from"`
	To      models.Status   `json:"to"`
	Allowed []models.Status `json:"allowed"`
}

// UpdateEntityStatus applies a lifecycle transition to an entity
// @Summary      Update Entity Status
// @Description  Applies a lifecycle status transition to a product or shipment
// @Tags         Entities
// @Accept       json
// @Produce      json
// @Param        kind    path  string               true  "Entity Kind"
// @Param        id      path  string               true  "Entity ID"
// @Param        update  body  models.UpdateStatus  true  "Requested Status"
// @Success      200  {object}  models.UpdateStatus
// @Failure      400  {object}  models.ValidationError
// @Failure      403  {object}  models.NotAllowedError
// @Failure      404  {object}  models.NotFoundError
// @Failure      409  {object}  TransitionRejected
// @Failure      500  {object}  models.BaseError
// @Router       /api/entities/{kind}/{id}/status [post]
func (api *API) UpdateEntityStatus(c *gin.Context) {
	kind := models.EntityKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("kind"))
		return
	}
	id := c.Param("id")

	var request models.UpdateStatus
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if request.Status == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("status", "status is required"))
		return
	}

	role := c.GetHeader(ActorRoleHeader)
	status, err := api.machine.Transition(c.Request.Context(), kind, id, request.Status, role)
	if err != nil {
		var illegal *lifecycle.IllegalTransitionError
		var forbidden *lifecycle.ForbiddenError
		switch {
		case errors.As(err, &illegal):
			c.JSON(http.StatusConflict, TransitionRejected{
				BaseError: models.BaseError{Error: "illegal transition"},
				From:      illegal.From,
				To:        illegal.To,
				Allowed:   illegal.Allowed,
			})
		case errors.As(err, &forbidden):
			c.JSON(http.StatusForbidden, models.NewNotAllowedError(forbidden.Error()))
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, models.NewNotFoundError(string(kind)))
		default:
			api.logger.Errorw("transition failed", "kind", kind, "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		}
		return
	}
	c.JSON(http.StatusOK, models.UpdateStatus{Status: status})
}

// GetEntityHistory returns the full provenance history of an entity
// @Summary      Get Entity History
// @Description  Returns the append-only provenance history of an entity in sequence order
// @Tags         Entities
// @Produce      json
// @Param        kind  path  string  true  "Entity Kind"
// @Param        id    path  string  true  "Entity ID"
// @Success      200  {object}  []models.ProvenanceRecord
// @Failure      400  {object}  models.ValidationError
// @Failure      404  {object}  models.NotFoundError
// @Failure      500  {object}  models.BaseError
// @Router       /api/entities/{kind}/{id}/history [get]
func (api *API) GetEntityHistory(c *gin.Context) {
	kind := models.EntityKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, models.NewBadPathParameterError("kind"))
		return
	}
	id := c.Param("id")

	records := []models.ProvenanceRecord{}
	err := api.transaction(c.Request.Context(), func(tx *gorm.DB) error {
		if err := entityExists(tx, kind, id); err != nil {
			return err
		}
		return tx.
			Where("entity_kind = ? AND entity_id = ?", kind, id).
			Order("sequence_no ASC").
			Find(&records).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError(string(kind)))
			return
		}
		api.logger.Errorw("history lookup failed", "kind", kind, "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.JSON(http.StatusOK, records)
}

func entityExists(tx *gorm.DB, kind models.EntityKind, id string) error {
	switch kind {
	case models.EntityProduct:
		return tx.First(&models.Product{}, "external_id = ?", id).Error
	case models.EntityShipment:
		return tx.First(&models.Shipment{}, "external_id = ?", id).Error
	}
	return gorm.ErrRecordNotFound
}
