package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eyecheck-web/internal/bootstrap"
	"eyecheck-web/internal/config"
	"eyecheck-web/internal/form"
	"eyecheck-web/internal/pkg/jwtutil"
	"eyecheck-web/internal/predict"
	"eyecheck-web/internal/transport/http/response"
)

const severeBody = `{"status":"Diseased","class":"Severe DR","confidence":0.92,` +
	`"all_probabilities":{"No DR":0.02,"Mild DR":0.02,"Moderate DR":0.03,"Severe DR":0.92,"Proliferative DR":0.01}}`

type predictStub struct {
	status atomic.Int32
	body   atomic.Value
	hits   atomic.Int32
}

func newPredictStub(t *testing.T, status int, body string) (*predictStub, *httptest.Server) {
	t.Helper()
	stub := &predictStub{}
	stub.status.Store(int32(status))
	stub.body.Store(body)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		stub.hits.Add(1)
		if _, _, err := r.FormFile(predict.FieldName); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(stub.status.Load()))
		_, _ = w.Write([]byte(stub.body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func testConfig(predictURL string) *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "eyecheck-web", Env: "test", GinMode: gin.TestMode},
		Log:     config.LogConfig{Level: "error"},
		Predict: config.PredictConfig{BaseURL: predictURL, Path: "/predict"},
		Upload:  config.UploadConfig{MaxBytes: 1 << 20},
		Session: config.SessionConfig{
			Backend:     config.SessionBackendMemory,
			CookieName:  "eyecheck_session",
			Secret:      "test-secret",
			TTLMinutes:  60,
			MaxSessions: 16,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *bootstrap.App) {
	t.Helper()
	app, err := bootstrap.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return NewRouter(app), app
}

// browser keeps the session cookie between requests.
type browser struct {
	t      *testing.T
	router *gin.Engine
	cookie *http.Cookie
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "eyecheck_session" {
			b.cookie = c
		}
	}
	return rec
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(predict.FieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) (response.APIResponse, form.View) {
	t.Helper()
	var envelope struct {
		response.APIResponse
		Data form.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.APIResponse, envelope.Data
}

func TestPageRendersEmptyForm(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))
	b := &browser{t: t, router: router}

	rec := b.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, form.NoFileSelected)
	assert.Contains(t, body, form.SubmitLabelIdle)
	assert.NotContains(t, body, "result-card")
	require.NotNil(t, b.cookie)
	assert.True(t, b.cookie.HttpOnly)
}

func TestPageFlowShowsResult(t *testing.T) {
	stub, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))
	b := &browser{t: t, router: router}

	rec := b.do(uploadRequest(t, "/select", "retina.jpg", jpegBytes))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = b.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "retina.jpg")
	assert.Contains(t, rec.Body.String(), "data:image/jpeg;base64,")

	rec = b.do(httptest.NewRequest(http.MethodPost, "/analyze", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, int32(1), stub.hits.Load())

	rec = b.do(httptest.NewRequest(http.MethodGet, "/", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "Severe DR")
	assert.Contains(t, body, "92.00%")
	assert.Contains(t, body, "Many blood vessels are blocked")
}

func TestPageAnalyzeWithoutFile(t *testing.T) {
	stub, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))
	b := &browser{t: t, router: router}

	rec := b.do(httptest.NewRequest(http.MethodPost, "/analyze", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = b.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), form.MsgNoFile)
	assert.Equal(t, int32(0), stub.hits.Load())
}

func TestSessionsAreIsolated(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, app := newTestRouter(t, testConfig(srv.URL))
	alice := &browser{t: t, router: router}
	bob := &browser{t: t, router: router}

	alice.do(uploadRequest(t, "/select", "alice.jpg", jpegBytes))
	bob.do(httptest.NewRequest(http.MethodGet, "/", nil))

	rec := bob.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, rec.Body.String(), "alice.jpg")
	assert.Equal(t, 2, app.Sessions.Len())
}

func TestAPISubmitFlow(t *testing.T) {
	stub, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))
	b := &browser{t: t, router: router}

	rec := b.do(uploadRequest(t, "/api/v1/form/select?wait=true", "retina.jpg", jpegBytes))
	require.Equal(t, http.StatusOK, rec.Code)
	resp, view := decodeView(t, rec)
	assert.Equal(t, response.CodeOK, resp.Code)
	assert.Equal(t, "retina.jpg", view.FileLabel)
	assert.False(t, view.SubmitDisabled)
	assert.Contains(t, view.PreviewURL, "data:image/jpeg;base64,")

	rec = b.do(httptest.NewRequest(http.MethodPost, "/api/v1/form/submit?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	_, view = decodeView(t, rec)
	require.NotNil(t, view.Result)
	assert.Equal(t, "Severe DR", view.Result.Class)
	assert.Equal(t, "92.00%", view.Result.Confidence)
	assert.False(t, view.Loading)
	assert.Equal(t, int32(1), stub.hits.Load())

	// a failing second call keeps the earlier result next to the error
	stub.status.Store(http.StatusInternalServerError)
	stub.body.Store(`{"detail":"boom"}`)
	rec = b.do(httptest.NewRequest(http.MethodPost, "/api/v1/form/submit?wait=true", nil))
	_, view = decodeView(t, rec)
	assert.Equal(t, "Error: Server responded with status: 500", view.Error)
	assert.NotNil(t, view.Result)

	rec = b.do(httptest.NewRequest(http.MethodGet, "/api/v1/form", nil))
	_, view = decodeView(t, rec)
	assert.Contains(t, view.Error, "500")
}

func TestAPISubmitWithoutFile(t *testing.T) {
	stub, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))
	b := &browser{t: t, router: router}

	rec := b.do(httptest.NewRequest(http.MethodPost, "/api/v1/form/submit", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp, view := decodeView(t, rec)
	assert.Equal(t, response.CodeNoFileSelected, resp.Code)
	assert.Equal(t, form.MsgNoFile, resp.Message)
	assert.Equal(t, form.MsgNoFile, view.Error)
	assert.Equal(t, int32(0), stub.hits.Load())
}

func TestAPISelectRejectsMissingAndOversizedFiles(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	cfg := testConfig(srv.URL)
	cfg.Upload.MaxBytes = 1024
	router, _ := newTestRouter(t, cfg)
	b := &browser{t: t, router: router}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/form/select", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := b.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp, _ := decodeView(t, rec)
	assert.Equal(t, response.CodeMissingFile, resp.Code)

	rec = b.do(uploadRequest(t, "/api/v1/form/select", "big.jpg", bytes.Repeat([]byte{0xff}, 4096)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp, _ = decodeView(t, rec)
	assert.Equal(t, response.CodeFileTooLarge, resp.Code)
}

func TestHealthz(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "eyecheck-web", body["app"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["predictor"].(map[string]any)["ok"])
	assert.NotContains(t, deps, "redis")
}

func TestHealthzReportsUnreachablePredictor(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	url := srv.URL
	srv.Close()
	router, _ := newTestRouter(t, testConfig(url))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	router, _ := newTestRouter(t, testConfig(srv.URL))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func redisConfig(t *testing.T, predictURL string) (*config.Config, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := testConfig(predictURL)
	cfg.Session.Backend = config.SessionBackendRedis
	cfg.Redis = config.RedisConfig{Addr: mr.Addr()}
	return cfg, mr
}

func TestHealthzChecksSessionStore(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	cfg, mr := redisConfig(t, srv.URL)
	router, _ := newTestRouter(t, cfg)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["redis"].(map[string]any)["ok"])

	mr.Close()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExpiredCookieDiscardsOldSession(t *testing.T) {
	_, srv := newPredictStub(t, http.StatusOK, severeBody)
	cfg, mr := redisConfig(t, srv.URL)
	router, app := newTestRouter(t, cfg)
	b := &browser{t: t, router: router}

	b.do(uploadRequest(t, "/api/v1/form/select?wait=true", "retina.jpg", jpegBytes))
	require.NotNil(t, b.cookie)
	claims, err := jwtutil.ParseToken(cfg.Session.Secret, b.cookie.Value)
	require.NoError(t, err)
	oldID := claims.SessionID
	app.Sessions.Controller(context.Background(), oldID).Wait()
	assert.True(t, mr.Exists("eyecheck:session:"+oldID))

	expired := jwtutil.Claims{
		SessionID: oldID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte(cfg.Session.Secret))
	require.NoError(t, err)
	b.cookie = &http.Cookie{Name: cfg.Session.CookieName, Value: signed}

	rec := b.do(httptest.NewRequest(http.MethodGet, "/api/v1/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	_, view := decodeView(t, rec)
	assert.Equal(t, form.NoFileSelected, view.FileLabel)
	assert.False(t, mr.Exists("eyecheck:session:"+oldID))

	claims, err = jwtutil.ParseToken(cfg.Session.Secret, b.cookie.Value)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, claims.SessionID)
}
