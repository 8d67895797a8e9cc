package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

type startSessionReq struct {
	MindWeather string `json:"mind_weather" binding:"required"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	weather, err := reflection.ParseMindWeather(req.MindWeather)
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}

	ctx := c.Request.Context()
	f, err := h.Svc.Start(ctx, weather)
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	sess, err := h.Svc.Session(ctx, f.SessionID())
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}

	data := gin.H{"session": sess, "flow": f.View()}
	if h.Signer != nil {
		tok, err := h.Signer.Sign(sess.ID)
		if err != nil {
			h.writeErr(c, err, classInternal)
			return
		}
		data["token"] = tok
	}
	ok(c, data)
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, sess)
}

func (h *Handler) ListThoughts(c *gin.Context) {
	thoughts, err := h.Svc.Thoughts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, gin.H{"thoughts": thoughts})
}

func (h *Handler) GetFlow(c *gin.Context) {
	v, err := h.Svc.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, v)
}

// flow loads the session's flow, writing the error response when it cannot.
func (h *Handler) flow(c *gin.Context) (*reflection.Flow, bool) {
	f, err := h.Svc.Flow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err, classInternal)
		return nil, false
	}
	return f, true
}

func draftIndex(c *gin.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", reflection.ErrDraftIndex, c.Param("index"))
	}
	return i, nil
}

type draftReq struct {
	Text string `json:"text"`
}

// bindOptional accepts an empty body as the zero request.
func bindOptional(c *gin.Context, req any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return false
	}
	return true
}

func (h *Handler) AddDraft(c *gin.Context) {
	var req draftReq
	if !bindOptional(c, &req) {
		return
	}
	f, found := h.flow(c)
	if !found {
		return
	}
	i, err := f.AddDraft(req.Text)
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, gin.H{"index": i, "flow": f.View()})
}

func (h *Handler) SetDraft(c *gin.Context) {
	var req draftReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	i, err := draftIndex(c)
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.SetDraft(i, req.Text); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

func (h *Handler) RemoveDraft(c *gin.Context) {
	i, err := draftIndex(c)
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.RemoveDraft(i); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

// TranscribeDraft appends the transcript of an uploaded recording (form
// field "audio") to a draft.
func (h *Handler) TranscribeDraft(c *gin.Context) {
	i, err := draftIndex(c)
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
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

	f, found := h.flow(c)
	if !found {
		return
	}
	text, err := f.TranscribeInto(c.Request.Context(), i, file, fh.Filename)
	if err != nil {
		h.writeErr(c, err, classUpstream)
		return
	}
	ok(c, gin.H{"text": text, "flow": f.View()})
}

type captureReq struct {
	Thoughts []string `json:"thoughts"`
}

// Capture persists the thoughts and starts the questions. Without a
// "thoughts" list the flow's drafts are used.
func (h *Handler) Capture(c *gin.Context) {
	var req captureReq
	if !bindOptional(c, &req) {
		return
	}
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.BeginQuestions(c.Request.Context(), req.Thoughts); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

type answerReq struct {
	Value string `json:"value"`
}

func (h *Handler) Answer(c *gin.Context) {
	var req answerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.Answer(req.Value); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

// Next refuses to leave a question that has no answer yet.
func (h *Handler) Next(c *gin.Context) {
	f, found := h.flow(c)
	if !found {
		return
	}
	if v := f.View(); v.State == reflection.StateQuestion && !v.CanProceed {
		h.writeErr(c, fmt.Errorf("%w: %s", reflection.ErrAnswerRequired, v.Question.ID), classInternal)
		return
	}
	if err := f.Next(c.Request.Context()); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

func (h *Handler) Back(c *gin.Context) {
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.Back(); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

func (h *Handler) Restart(c *gin.Context) {
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.Restart(); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

func (h *Handler) Exit(c *gin.Context) {
	ok(c, h.Svc.Exit(c.Param("id")))
}

func (h *Handler) Complete(c *gin.Context) {
	f, found := h.flow(c)
	if !found {
		return
	}
	if err := f.Complete(c.Request.Context()); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, f.View())
}

// Narration serves the spoken prompt of the current question once it is
// ready, 204 until then.
func (h *Handler) Narration(c *gin.Context) {
	f, found := h.flow(c)
	if !found {
		return
	}
	audio, ready := f.Narration()
	if !ready {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (h *Handler) Results(c *gin.Context) {
	res, err := h.Svc.Results(c.Request.Context(), c.Param("id"), c.Query("category"))
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, res)
}

func (h *Handler) Insight(c *gin.Context) {
	text, err := h.Svc.Insight(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, gin.H{"insight": text})
}

func (h *Handler) ClearAll(c *gin.Context) {
	if err := h.Svc.ClearAll(c.Request.Context()); err != nil {
		h.writeErr(c, err, classInternal)
		return
	}
	ok(c, gin.H{"cleared": true})
}
