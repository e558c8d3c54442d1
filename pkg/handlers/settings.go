package handlers

import (
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/services"
	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetSettings returns the caller's provider settings with keys masked.
func (h *Handlers) GetSettings(c *gin.Context) {
	userID, ok := requireUserID(c, "GetSettings")
	if !ok {
		return
	}
	view, err := h.settings.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "GetSettings", err)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Settings retrieved successfully", view)
}

func (h *Handlers) UpdateSettings(c *gin.Context) {
	userID, ok := requireUserID(c, "UpdateSettings")
	if !ok {
		return
	}
	var req services.UpdateSettingsInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, "UpdateSettings", err)
		return
	}

	view, err := h.settings.Update(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "UpdateSettings", err)
		return
	}
	log.Infof("UpdateSettings: Settings saved for user %s.", userID.String())
	utils.ResponseWithSuccess(c, http.StatusOK, "Settings updated successfully", view)
}
