package handlers

import (
	"net/http"
	"os"

	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ServeVideo streams a locally stored render.
func (h *Handlers) ServeVideo(c *gin.Context) {
	if h.videos == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Video not found", nil)
		return
	}
	name := c.Param("file")
	path, err := h.videos.Path(name)
	if err != nil {
		log.Debugf("ServeVideo: Rejected video name '%s': %v", name, err)
		utils.ResponseWithError(c, http.StatusNotFound, "Video not found", nil)
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		utils.ResponseWithError(c, http.StatusNotFound, "Video not found", nil)
		return
	}
	c.Header("Content-Type", "video/mp4")
	c.File(path)
}
