package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/mind-weather/internal/auth"
	"github.com/suPer8Hu/mind-weather/internal/common"
	"github.com/suPer8Hu/mind-weather/internal/config"
	"github.com/suPer8Hu/mind-weather/internal/httpapi/handlers"
	"github.com/suPer8Hu/mind-weather/internal/httpapi/middleware"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

// sessionTokenTTL bounds how long a client can come back to a session.
const sessionTokenTTL = 7 * 24 * time.Hour

func NewRouter(svc *reflection.Service, cfg config.Config, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	var signer *auth.Signer
	if cfg.SessionTokens {
		signer = auth.NewSigner(cfg.JWTSecret, sessionTokenTTL)
	}
	h := handlers.NewHandler(svc, signer, logger)

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// stateless services
	api := r.Group("/api")
	api.POST("/analyze-thought", h.AnalyzeThought)
	api.POST("/categorize-thoughts", h.CategorizeThoughts)
	api.POST("/narrate", h.Narrate)
	api.POST("/transcribe", h.Transcribe)

	r.POST("/sessions", h.StartSession)

	sess := r.Group("/sessions/:id")
	if signer != nil {
		sess.Use(middleware.SessionToken(signer))
	}
	sess.GET("", h.GetSession)
	sess.GET("/thoughts", h.ListThoughts)
	sess.GET("/flow", h.GetFlow)

	sess.POST("/drafts", h.AddDraft)
	sess.PUT("/drafts/:index", h.SetDraft)
	sess.DELETE("/drafts/:index", h.RemoveDraft)
	sess.POST("/drafts/:index/transcribe", h.TranscribeDraft)
	sess.POST("/capture", h.Capture)

	sess.PUT("/answer", h.Answer)
	sess.POST("/next", h.Next)
	sess.POST("/back", h.Back)
	sess.POST("/restart", h.Restart)
	sess.POST("/exit", h.Exit)
	sess.POST("/complete", h.Complete)
	sess.GET("/narration", h.Narration)

	sess.GET("/results", h.Results)
	sess.GET("/insight", h.Insight)

	admin := r.Group("/")
	admin.Use(middleware.AdminToken(cfg.AdminToken))
	admin.DELETE("/data", h.ClearAll)
	return r
}
