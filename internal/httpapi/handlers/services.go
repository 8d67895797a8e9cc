package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

func (h *Handler) AnalyzeThought(c *gin.Context) {
	var req reflection.InsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.ThoughtText) == "" {
		fail(c, http.StatusBadRequest, 40001, "thought text is required")
		return
	}
	ok(c, gin.H{"insight": h.Svc.Analyze(c.Request.Context(), req)})
}

type categorizeReq struct {
	Thoughts []struct {
		ThoughtText string `json:"thought_text"`
	} `json:"thoughts" binding:"required"`
}

func (h *Handler) CategorizeThoughts(c *gin.Context) {
	var req categorizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "thoughts array is required")
		return
	}
	texts := make([]string, 0, len(req.Thoughts))
	for _, t := range req.Thoughts {
		texts = append(texts, t.ThoughtText)
	}
	res, err := h.Svc.Categorize(c.Request.Context(), texts)
	if err != nil {
		h.writeErr(c, err, classUpstream)
		return
	}
	ok(c, res)
}

type narrateReq struct {
	Text string `json:"text"`
}

func (h *Handler) Narrate(c *gin.Context) {
	var req narrateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	audio, err := h.Svc.Narrate(c.Request.Context(), req.Text)
	if err != nil {
		h.writeErr(c, err, classUpstream)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

// Transcribe returns the text of an uploaded recording (form field "audio").
func (h *Handler) Transcribe(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("audio")
	if err != nil {
		fail(c, http.StatusBadRequest, 10002, "audio file required")
		return
	}
	file, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, 10002, "audio file unreadable")
		return
	}
	defer file.Close()

	text, err := h.Svc.Transcribe(c.Request.Context(), file, fh.Filename)
	if err != nil {
		h.writeErr(c, err, classUpstream)
		return
	}
	ok(c, gin.H{"text": text})
}
