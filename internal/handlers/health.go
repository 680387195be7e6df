package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Live checks if the service is live
// @Summary      Checks if the service is live
// @Description  Checks if the service is live
// @Tags         Private
// @Produce      json
// @Success      200
// @Router       /healthz [get]
func (api *API) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "UP",
		"retention_degraded": api.store.Degraded(),
	})
}
