package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mind-weather/internal/config"
	"github.com/suPer8Hu/mind-weather/internal/reflection"
)

type stubAssistant struct {
	insight string
	err     error
}

func (a *stubAssistant) Insight(ctx context.Context, req reflection.InsightRequest) (string, error) {
	return a.insight, a.err
}

func (a *stubAssistant) Categorize(ctx context.Context, texts []string) (*reflection.Categorization, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &reflection.Categorization{
		Categorized: []reflection.CategorizedEntry{
			{Index: 0, Category: reflection.CategoryWorry, Theme: "work"},
			{Index: 1, Category: reflection.CategoryFuture, Theme: "health"},
		},
		OverallReflection: "You carry a lot.",
	}, nil
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	return s.text, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t *testing.T
	r *gin.Engine
}

func newTestServer(t *testing.T, deps reflection.Deps) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Store == nil {
		deps.Store = reflection.NewMemStore()
	}
	deps.Logger = zerolog.Nop()
	cfg := config.Config{SessionTokens: true, JWTSecret: "test-secret", AdminToken: "admin-token"}
	return &testServer{t: t, r: NewRouter(reflection.NewService(deps), cfg, zerolog.Nop())}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "audio/mpeg" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type started struct {
	Session reflection.Session  `json:"session"`
	Flow    reflection.FlowView `json:"flow"`
	Token   string              `json:"token"`
}

func (s *testServer) start(weather string) started {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/sessions", "", map[string]string{"mind_weather": weather})
	require.Equal(s.t, http.StatusOK, code)
	return decode[started](s.t, env.Data)
}

func TestPing(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	code, env := s.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
}

func TestNoRouteAndMethod(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	code, env := s.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40400, env.Code)

	code, env = s.do(http.MethodGet, "/api/narrate", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, 40500, env.Code)
}

func TestFullSession(t *testing.T) {
	s := newTestServer(t, reflection.Deps{Assistant: &stubAssistant{insight: "Be gentle with yourself."}})

	st := s.start("stormy")
	require.NotEmpty(t, st.Token)
	assert.Equal(t, reflection.StateCapture, st.Flow.State)
	assert.Equal(t, reflection.WeatherStormy, st.Session.MindWeather)
	base := "/sessions/" + st.Session.ID

	code, env := s.do(http.MethodPost, base+"/capture", st.Token, map[string]any{"thoughts": []string{"deadline tomorrow", " ", "my knee hurts"}})
	require.Equal(t, http.StatusOK, code, env.Message)
	view := decode[reflection.FlowView](t, env.Data)
	assert.Equal(t, reflection.StateQuestion, view.State)
	assert.Equal(t, 2, view.ThoughtCount)

	answers := []string{"can-change", "hurts", "anxious", "that I will fail", "7"}
	for thought := 0; thought < 2; thought++ {
		for step, a := range answers {
			code, env = s.do(http.MethodPut, base+"/answer", st.Token, map[string]string{"value": a})
			require.Equal(t, http.StatusOK, code, env.Message)
			view = decode[reflection.FlowView](t, env.Data)
			assert.Equal(t, thought, view.ThoughtIndex)
			assert.Equal(t, step, view.Step)
			assert.True(t, view.CanProceed)

			code, env = s.do(http.MethodPost, base+"/next", st.Token, nil)
			require.Equal(t, http.StatusOK, code, env.Message)
		}
	}
	view = decode[reflection.FlowView](t, env.Data)
	assert.Equal(t, reflection.StateComplete, view.State)

	code, env = s.do(http.MethodGet, base, st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	sess := decode[reflection.Session](t, env.Data)
	require.NotNil(t, sess.CompletedAt)
	require.NotNil(t, sess.OverallReflection)
	assert.Equal(t, "You carry a lot.", *sess.OverallReflection)
	require.NotNil(t, sess.AverageIntensity)
	assert.InDelta(t, 7.0, *sess.AverageIntensity, 0.001)
	assert.Equal(t, 2, sess.ThoughtsExplored)

	code, env = s.do(http.MethodGet, base+"/results", st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	res := decode[reflection.Results](t, env.Data)
	assert.Equal(t, 2, res.Counts["all"])
	assert.Equal(t, 1, res.Counts["worry"])
	assert.Equal(t, 1, res.Counts["future"])
	assert.Equal(t, []string{"health", "work"}, res.Themes)

	code, env = s.do(http.MethodGet, base+"/results?category=worry", st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	res = decode[reflection.Results](t, env.Data)
	require.Len(t, res.Thoughts, 1)
	assert.Equal(t, "deadline tomorrow", res.Thoughts[0].ThoughtText)

	code, env = s.do(http.MethodGet, base+"/results?category=sadness", st.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40001, env.Code)

	code, env = s.do(http.MethodGet, base+"/insight", st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Be gentle with yourself.", decode[map[string]string](t, env.Data)["insight"])
}

func TestSessionTokenRequired(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	a := s.start("sunny")
	b := s.start("foggy")

	code, env := s.do(http.MethodGet, "/sessions/"+a.Session.ID+"/flow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40101, env.Code)

	code, _ = s.do(http.MethodGet, "/sessions/"+a.Session.ID+"/flow", b.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/sessions/"+a.Session.ID+"/flow", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/sessions/"+a.Session.ID+"/flow", a.Token, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestStartSessionValidation(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	code, env := s.do(http.MethodPost, "/sessions", "", map[string]string{"mind_weather": "windy"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40001, env.Code)

	code, env = s.do(http.MethodPost, "/sessions", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 10001, env.Code)
}

func TestNextNeedsAnswer(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	st := s.start("cloudy")
	base := "/sessions/" + st.Session.ID

	code, _ := s.do(http.MethodPost, base+"/capture", st.Token, map[string]any{"thoughts": []string{"one"}})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(http.MethodPost, base+"/next", st.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40001, env.Code)

	code, env = s.do(http.MethodPut, base+"/answer", st.Token, map[string]string{"value": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40001, env.Code)

	code, env = s.do(http.MethodPost, base+"/back", st.Token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, 40901, env.Code)
}

func TestCaptureWithoutThoughtsRedirects(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	st := s.start("foggy")
	base := "/sessions/" + st.Session.ID

	code, env := s.do(http.MethodPost, base+"/capture", st.Token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, 40902, env.Code)
	assert.Equal(t, "capture", decode[map[string]string](t, env.Data)["redirect"])

	code, env = s.do(http.MethodGet, base+"/results", st.Token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "capture", decode[map[string]string](t, env.Data)["redirect"])
}

func TestDrafts(t *testing.T) {
	s := newTestServer(t, reflection.Deps{Transcriber: stubTranscriber{text: "from the mic"}})
	st := s.start("sunny")
	base := "/sessions/" + st.Session.ID

	code, env := s.do(http.MethodPut, base+"/drafts/0", st.Token, map[string]string{"text": "first"})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodPost, base+"/drafts", st.Token, map[string]string{"text": "second"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[struct {
		Index int `json:"index"`
	}](t, env.Data).Index)

	code, env = s.do(http.MethodDelete, base+"/drafts/5", st.Token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 40002, env.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.webm")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake audio"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, base+"/drafts/0/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+st.Token)
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	code, env = s.do(http.MethodGet, base+"/flow", st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	view := decode[reflection.FlowView](t, env.Data)
	assert.Equal(t, []string{"first from the mic", "second"}, view.Drafts)

	code, env = s.do(http.MethodPost, base+"/capture", st.Token, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	view = decode[reflection.FlowView](t, env.Data)
	assert.Equal(t, 2, view.ThoughtCount)
	assert.Equal(t, "first from the mic", view.Thought.ThoughtText)
}

func TestExitThenResume(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	st := s.start("stormy")
	base := "/sessions/" + st.Session.ID

	code, _ := s.do(http.MethodPost, base+"/capture", st.Token, map[string]any{"thoughts": []string{"one"}})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(http.MethodPost, base+"/exit", st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, reflection.StateWeatherSelect, decode[reflection.FlowView](t, env.Data).State)

	code, env = s.do(http.MethodGet, base+"/flow", st.Token, nil)
	require.Equal(t, http.StatusOK, code)
	view := decode[reflection.FlowView](t, env.Data)
	assert.Equal(t, reflection.StateQuestion, view.State)
	assert.Equal(t, 0, view.Step)
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	st := s.start("sunny")
	// a valid token for an id the store does not hold
	s2 := newTestServer(t, reflection.Deps{})

	code, env := s2.do(http.MethodGet, "/sessions/"+st.Session.ID+"/flow", st.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40004, env.Code)
}

func TestNarrationEndpoint(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	st := s.start("sunny")
	code, _ := s.do(http.MethodGet, "/sessions/"+st.Session.ID+"/narration", st.Token, nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestStatelessServices(t *testing.T) {
	s := newTestServer(t, reflection.Deps{Assistant: &stubAssistant{err: errors.New("model offline")}})

	code, env := s.do(http.MethodPost, "/api/analyze-thought", "", map[string]string{"thoughtText": "I messed up"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, reflection.FallbackInsight, decode[map[string]string](t, env.Data)["insight"])

	code, env = s.do(http.MethodPost, "/api/analyze-thought", "", map[string]string{"feeling": "sad"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(http.MethodPost, "/api/categorize-thoughts", "", map[string]any{"thoughts": []map[string]string{{"thought_text": "x"}}})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, 50201, env.Code)

	code, env = s.do(http.MethodPost, "/api/narrate", "", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, 50301, env.Code)

	code, _ = s.do(http.MethodPost, "/api/narrate", "", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCategorizeThoughts(t *testing.T) {
	s := newTestServer(t, reflection.Deps{Assistant: &stubAssistant{}})
	code, env := s.do(http.MethodPost, "/api/categorize-thoughts", "", map[string]any{
		"thoughts": []map[string]string{{"thought_text": "a"}, {"thought_text": "b"}},
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	res := decode[reflection.Categorization](t, env.Data)
	require.Len(t, res.Categorized, 2)
	assert.Equal(t, reflection.CategoryFuture, res.Categorized[1].Category)
	assert.Equal(t, "You carry a lot.", res.OverallReflection)
}

func TestClearAllNeedsAdminToken(t *testing.T) {
	s := newTestServer(t, reflection.Deps{})
	st := s.start("sunny")

	code, _ := s.do(http.MethodDelete, "/data", st.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodDelete, "/data", "admin-token", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodGet, "/sessions/"+st.Session.ID, st.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTranscribeUpload(t *testing.T) {
	s := newTestServer(t, reflection.Deps{Transcriber: stubTranscriber{text: "hello there"}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.webm")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake audio"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "hello there", decode[map[string]string](t, env.Data)["text"])

	code, env := s.do(http.MethodPost, "/api/transcribe", "", map[string]string{"audio": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 10002, env.Code)
}
