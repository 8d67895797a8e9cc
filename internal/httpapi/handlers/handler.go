package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/auth"
	"github.com/suPer8Hu/mind-weather/internal/common"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

// maxUploadBytes matches the transcription endpoint's file limit.
const maxUploadBytes = 25 << 20

type Handler struct {
	Svc *reflection.Service
	// Signer issues session tokens; nil when they are disabled.
	Signer *auth.Signer
	Logger zerolog.Logger
}

func NewHandler(svc *reflection.Service, signer *auth.Signer, logger zerolog.Logger) *Handler {
	return &Handler{Svc: svc, Signer: signer, Logger: logger}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
