package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/projectTest192/FoodTrace/internal/models"
)

// ListDevices lists all registered devices
// @Summary      List Devices
// @Description  Lists all devices known to the registry
// @Tags         Devices
// @Produce      json
// @Success      200  {object}  []models.Device
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices [get]
func (api *API) ListDevices(c *gin.Context) {
	devices := make([]*models.Device, 0)
	result := api.db.WithContext(c.Request.Context()).Order("device_id").Find(&devices)
	if result.Error != nil {
		api.logger.Errorw("device list failed", "error", result.Error)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(result.Error))
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevice gets a device by its device id
// @Summary      Get Device
// @Description  Gets a device by its device id
// @Tags         Devices
// @Produce      json
// @Param        deviceId  path  string  true  "Device ID"
// @Success      200  {object}  models.Device
// @Failure      404  {object}  models.NotFoundError
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices/{deviceId} [get]
func (api *API) GetDevice(c *gin.Context) {
	deviceID := c.Param("deviceId")
	var device models.Device
	result := api.db.WithContext(c.Request.Context()).First(&device, "device_id = ?", deviceID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
			return
		}
		api.logger.Errorw("device lookup failed", "device-id", deviceID, "error", result.Error)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(result.Error))
		return
	}
	c.JSON(http.StatusOK, device)
}

// DeviceBinding is the resolved entity attachment of a device.
type DeviceBinding struct {
	EntityKind models.EntityKind `json:"entity_kind,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Bound      bool              `json:"bound"`
}

// GetDeviceBinding resolves a device's entity attachment
// @Summary      Get Device Binding
// @Description  Resolves which entity a device is bound to, served from a short-lived cache for gateway polling
// @Tags         Devices
// @Produce      json
// @Param        deviceId  path  string  true  "Device ID"
// @Success      200  {object}  DeviceBinding
// @Failure      404  {object}  models.NotFoundError
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices/{deviceId}/binding [get]
func (api *API) GetDeviceBinding(c *gin.Context) {
	deviceID := c.Param("deviceId")
	kind, id, err := api.ingestor.Binding(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError("device"))
			return
		}
		api.logger.Errorw("binding lookup failed", "device-id", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.JSON(http.StatusOK, DeviceBinding{
		EntityKind: kind,
		EntityID:   id,
		Bound:      kind != "" && id != "",
	})
}

// GetDeviceAlerts lists the raised alerts for a device
// @Summary      Get Device Alerts
// @Description  Lists the alerts raised for a device, oldest first
// @Tags         Devices
// @Produce      json
// @Param        deviceId  path  string  true  "Device ID"
// @Success      200  {object}  []models.AnomalyEvent
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices/{deviceId}/alerts [get]
func (api *API) GetDeviceAlerts(c *gin.Context) {
	deviceID := c.Param("deviceId")
	alerts, err := api.store.Alerts(c.Request.Context(), deviceID)
	if err != nil {
		api.logger.Errorw("alert lookup failed", "device-id", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// ClearDeviceAlerts clears the alert list for a device
// @Summary      Clear Device Alerts
// @Description  Clears the alert list for a device; alert state is unbounded and only cleared on request
// @Tags         Devices
// @Produce      json
// @Param        deviceId  path  string  true  "Device ID"
// @Success      204
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices/{deviceId}/alerts [delete]
func (api *API) ClearDeviceAlerts(c *gin.Context) {
	deviceID := c.Param("deviceId")
	if err := api.store.ClearAlerts(c.Request.Context(), deviceID); err != nil {
		api.logger.Errorw("alert clear failed", "device-id", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// BindDevice binds a device to a traceable entity
// @Summary      Bind Device
// @Description  Binds a device to a product or shipment so its telemetry reaches the entity's provenance log
// @Tags         Devices
// @Accept       json
// @Produce      json
// @Param        deviceId  path  string             true  "Device ID"
// @Param        bind      body  models.BindDevice  true  "Binding"
// @Success      200  {object}  models.Device
// @Failure      400  {object}  models.ValidationError
// @Failure      404  {object}  models.NotFoundError
// @Failure      500  {object}  models.BaseError
// @Router       /api/devices/{deviceId}/bind [post]
func (api *API) BindDevice(c *gin.Context) {
	deviceID := c.Param("deviceId")

	var request models.BindDevice
	if err := c.BindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, models.NewBadPayloadError())
		return
	}
	if !request.EntityKind.Valid() {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("entity_kind", "must be product or shipment"))
		return
	}
	if request.EntityID == "" {
		c.JSON(http.StatusBadRequest, models.NewFieldValidationError("entity_id", "entity_id is required"))
		return
	}
	if err := entityExists(api.db.WithContext(c.Request.Context()), request.EntityKind, request.EntityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.NewNotFoundError(string(request.EntityKind)))
			return
		}
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}

	// a device already attached to a different entity has to be unbound by
	// the registry owner first
	var existing models.Device
	res := api.db.WithContext(c.Request.Context()).First(&existing, "device_id = ?", deviceID)
	if res.Error == nil && existing.Bound() &&
		(existing.EntityKind != request.EntityKind || existing.EntityID != request.EntityID) {
		c.JSON(http.StatusConflict, models.NewConflictsError(existing.ID.String()))
		return
	}

	device, err := api.ingestor.Bind(c.Request.Context(), deviceID, request)
	if err != nil {
		api.logger.Errorw("device bind failed", "device-id", deviceID, "error", err)
		c.JSON(http.StatusInternalServerError, models.NewApiInternalError(err))
		return
	}
	c.JSON(http.StatusOK, device)
}
