package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/services"
	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CreateAnimation records a new animation and starts its pipeline. The
// response returns before any stage has run.
func (h *Handlers) CreateAnimation(c *gin.Context) {
	userID, ok := requireUserID(c, "CreateAnimation")
	if !ok {
		return
	}
	var req services.CreateAnimationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, "CreateAnimation", err)
		return
	}

	animation, tasks, err := h.animations.Create(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, "CreateAnimation", err)
		return
	}

	log.Infof("CreateAnimation: Animation %s created for user %s.", animation.ID.String(), userID.String())
	utils.ResponseWithSuccess(c, http.StatusCreated, "Animation created, generation started", newAnimationResponse(animation, tasks))
}

func (h *Handlers) ListAnimations(c *gin.Context) {
	userID, ok := requireUserID(c, "ListAnimations")
	if !ok {
		return
	}

	animations, err := h.animations.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "ListAnimations", err)
		return
	}

	resp := make([]AnimationResponse, 0, len(animations))
	for i := range animations {
		resp = append(resp, newAnimationResponse(&animations[i], nil))
	}
	log.Debugf("ListAnimations: Found %d animations for user %s.", len(resp), userID.String())
	utils.ResponseWithSuccess(c, http.StatusOK, "Animations retrieved successfully", resp)
}

// GetAnimation returns one animation with its three tasks.
func (h *Handlers) GetAnimation(c *gin.Context) {
	userID, ok := requireUserID(c, "GetAnimation")
	if !ok {
		return
	}
	animationID, ok := animationIDParam(c, "GetAnimation")
	if !ok {
		return
	}

	animation, tasks, err := h.animations.Get(c.Request.Context(), userID, animationID)
	if err != nil {
		respondError(c, "GetAnimation", err)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Animation retrieved successfully", newAnimationResponse(animation, tasks))
}

// RegenerateAnimation resets an animation and runs the pipeline again. The
// body is optional; a prompt in it replaces the stored one.
func (h *Handlers) RegenerateAnimation(c *gin.Context) {
	userID, ok := requireUserID(c, "RegenerateAnimation")
	if !ok {
		return
	}
	animationID, ok := animationIDParam(c, "RegenerateAnimation")
	if !ok {
		return
	}
	var req services.RegenerateInput
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequestBody(c, "RegenerateAnimation", err)
		return
	}

	animation, err := h.animations.Regenerate(c.Request.Context(), userID, animationID, req)
	if err != nil {
		respondError(c, "RegenerateAnimation", err)
		return
	}

	log.Infof("RegenerateAnimation: Animation %s resubmitted for user %s.", animationID.String(), userID.String())
	utils.ResponseWithSuccess(c, http.StatusOK, "Animation regeneration started", newAnimationResponse(animation, nil))
}

func animationIDParam(c *gin.Context, fn string) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Debugf("%s: Invalid animation ID format '%s': %v", fn, raw, err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid animation ID format", nil)
		return uuid.Nil, false
	}
	return id, true
}
