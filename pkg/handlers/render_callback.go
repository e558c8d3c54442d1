package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/render"
	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HandleRenderCallback receives progress and results from the external
// renderer and hands them to the render waiting on that animation.
func (h *Handlers) HandleRenderCallback(c *gin.Context) {
	if h.callbacks == nil {
		log.Warn("HandleRenderCallback: Callback received but remote rendering is disabled.")
		utils.ResponseWithError(c, http.StatusNotFound, "Remote rendering is not enabled", nil)
		return
	}
	if !h.callbackAuthorized(c) {
		log.Warnf("HandleRenderCallback: Rejected callback from %s with a missing or wrong secret.", c.ClientIP())
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid callback secret", nil)
		return
	}

	var callback render.CallbackUpdate
	if err := c.ShouldBindJSON(&callback); err != nil {
		log.Errorf("HandleRenderCallback: Invalid callback request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid callback request body", err.Error())
		return
	}

	log.Infof("Received render callback for animation %s, status: %s, video URL: %s",
		callback.ProjectID, callback.Status, callback.VideoURL)

	err := h.callbacks.Deliver(callback)
	switch {
	case errors.Is(err, render.ErrNoPendingRender):
		log.Warnf("HandleRenderCallback: No render waiting for animation %s.", callback.ProjectID)
		utils.ResponseWithError(c, http.StatusNotFound, "No render is waiting for this animation", nil)
	case err != nil:
		log.Errorf("HandleRenderCallback: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid callback", err.Error())
	default:
		utils.ResponseWithSuccess(c, http.StatusOK, "Callback processed successfully", nil)
	}
}

func (h *Handlers) callbackAuthorized(c *gin.Context) bool {
	if h.secret == "" {
		return true
	}
	got := c.GetHeader(render.CallbackSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}
