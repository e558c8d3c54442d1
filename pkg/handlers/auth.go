package handlers

import (
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/services"
	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handlers) LoginUser(c *gin.Context) {
	var req services.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, "LoginUser", err)
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, "LoginUser", err)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Login successful", gin.H{
		"token": token,
		"user":  newUserResponse(user),
	})
}

func (h *Handlers) RegisterUser(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestBody(c, "RegisterUser", err)
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, "RegisterUser", err)
		return
	}

	utils.ResponseWithSuccess(c, http.StatusCreated, "User created successfully", gin.H{
		"token": token,
		"user":  newUserResponse(user),
	})
}

// CurrentUser returns the profile and remaining quota of the caller.
func (h *Handlers) CurrentUser(c *gin.Context) {
	userID, ok := requireUserID(c, "CurrentUser")
	if !ok {
		return
	}
	user, err := h.auth.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "CurrentUser", err)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "User retrieved successfully", newUserResponse(user))
}

// DeleteUser removes the caller's account. The token is the only proof of
// identity; no password confirmation is asked for.
func (h *Handlers) DeleteUser(c *gin.Context) {
	userID, ok := requireUserID(c, "DeleteUser")
	if !ok {
		return
	}
	log.Infof("DeleteUser: Attempting deletion for user ID '%s'", userID.String())

	if err := h.auth.DeleteAccount(c.Request.Context(), userID); err != nil {
		respondError(c, "DeleteUser", err)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "User account deleted successfully", nil)
}
