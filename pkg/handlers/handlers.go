package handlers

import (
	"errors"
	"net/http"

	"github.com/ASHISH26940/manim-studio/pkg/apperr"
	"github.com/ASHISH26940/manim-studio/pkg/middleware"
	"github.com/ASHISH26940/manim-studio/pkg/notify"
	"github.com/ASHISH26940/manim-studio/pkg/render"
	"github.com/ASHISH26940/manim-studio/pkg/services"
	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// CallbackSink accepts renderer callbacks. *render.Remote satisfies it.
type CallbackSink interface {
	Deliver(u render.CallbackUpdate) error
}

// VideoFiles resolves a stored video name to a local path. *storage.Local
// satisfies it.
type VideoFiles interface {
	Path(name string) (string, error)
}

// Deps are the collaborators the request layer needs. Callbacks is nil unless
// rendering is remote, Videos is nil unless videos are stored locally.
// CallbackSecret, when set, must accompany every renderer callback.
type Deps struct {
	Auth           *services.AuthService
	Animations     *services.AnimationService
	Settings       *services.SettingsService
	Hub            *notify.Hub
	Callbacks      CallbackSink
	CallbackSecret string
	Videos         VideoFiles
	CORSOrigins    []string
	RenderMode     string
}

// Handlers struct to hold dependencies
type Handlers struct {
	auth       *services.AuthService
	animations *services.AnimationService
	settings   *services.SettingsService
	hub        *notify.Hub
	callbacks  CallbackSink
	secret     string
	videos     VideoFiles
	upgrader   websocket.Upgrader
	renderMode string
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		auth:       d.Auth,
		animations: d.Animations,
		settings:   d.Settings,
		hub:        d.Hub,
		callbacks:  d.Callbacks,
		secret:     d.CallbackSecret,
		videos:     d.Videos,
		upgrader:   NewUpgrader(d.CORSOrigins),
		renderMode: d.RenderMode,
	}
}

// SetupRoutes mounts every endpoint on router. createLimit guards animation
// creation and may be nil.
func SetupRoutes(router *gin.Engine, h *Handlers, authMiddleware, createLimit gin.HandlerFunc) {
	if createLimit == nil {
		createLimit = func(c *gin.Context) { c.Next() }
	}

	router.GET("/health", h.HealthCheck)
	router.GET("/ws-animation", h.AnimationSocket)
	router.GET("/api/videos/:file", h.ServeVideo)
	router.POST("/api/projects/render-callback", h.HandleRenderCallback)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", h.RegisterUser)
		authRoutes.POST("/login", h.LoginUser)
	}

	protectedRoutes := router.Group("/api")
	protectedRoutes.Use(authMiddleware)
	{
		protectedRoutes.GET("/me", h.CurrentUser)
		protectedRoutes.POST("/delete", h.DeleteUser)

		protectedRoutes.GET("/settings", h.GetSettings)
		protectedRoutes.POST("/settings", h.UpdateSettings)

		animationRoutes := protectedRoutes.Group("/animations")
		{
			animationRoutes.POST("", createLimit, h.CreateAnimation)
			animationRoutes.GET("", h.ListAnimations)
			animationRoutes.GET("/:id", h.GetAnimation)
			animationRoutes.POST("/:id/regenerate", h.RegenerateAnimation)
		}
	}
}

// requireUserID returns the authenticated user's id or writes a 500 when the
// auth middleware did not run.
func requireUserID(c *gin.Context, fn string) (uuid.UUID, bool) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		log.Errorf("%s: User claims not found in context.", fn)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: User claims not found", nil)
		return uuid.Nil, false
	}
	return userID, true
}

// respondError maps a service error onto the response envelope.
func respondError(c *gin.Context, fn string, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Errorf("%s: %v", fn, err)
	} else {
		log.Debugf("%s: %v", fn, err)
	}

	var details interface{}
	var verr *services.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		details = verr.Fields
	}
	utils.ResponseWithAppError(c, err, details)
}

func badRequestBody(c *gin.Context, fn string, err error) {
	log.Debugf("%s: Invalid request body: %v", fn, err)
	utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
}
