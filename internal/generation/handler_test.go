package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture, owner string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("ownerId", owner)
		c.Next()
	})
	NewHandler(f.svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandlerRegisterAndGet(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, testOwner)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts", RegisterRequest{CandidateName: "Jan de Vries", CandidateEmail: testEmail})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "none", body["generationStatus"])

	w = doJSON(t, r, http.MethodGet, "/api/v1/attempts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jan de Vries", decode(t, w)["candidateName"])

	other := newTestRouter(f, "org-2")
	w = doJSON(t, other, http.MethodGet, "/api/v1/attempts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, testOwner)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts", RegisterRequest{CandidateName: "Jan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerFinishReturnsDocument(t *testing.T) {
	f := newFixture(t)
	a := f.register(t)
	r := newTestRouter(f, testOwner)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/finish", FinishRequest{Answers: validAnswers()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "reports/org-1/v1/jan-de-vries.pdf", body["storagePath"])
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, "sent", body["emailStatus"])

	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/finish", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["cached"])
}

func TestHandlerFinishInProgress(t *testing.T) {
	f := newFixture(t)
	a := f.register(t)
	r := newTestRouter(f, testOwner)

	ok, err := f.repo.Claim(context.Background(), a.ID, "other", f.clock.Now(), f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/finish", FinishRequest{Answers: validAnswers()})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "180", w.Header().Get("Retry-After"))
	body := decode(t, w)
	assert.Equal(t, "generation_in_progress", body["error"])
	assert.Equal(t, "processing", body["status"])
	assert.EqualValues(t, 180, body["retryAfterSeconds"])
}

func TestHandlerFinishValidation(t *testing.T) {
	f := newFixture(t)
	a := f.register(t)
	r := newTestRouter(f, testOwner)

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/finish", FinishRequest{Answers: validAnswers()[:4]})
	require.Equal(t, http.StatusBadRequest, w.Code)
	errBody, _ := decode(t, w)["error"].(map[string]any)
	require.NotNil(t, errBody)
	assert.Equal(t, "validation_error", errBody["code"])
	assert.NotEmpty(t, errBody["details"])

	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/missing/finish", FinishRequest{Answers: validAnswers()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerFinishRenderFailure(t *testing.T) {
	f := newFixture(t)
	a := f.register(t)
	r := newTestRouter(f, testOwner)
	f.renderer.err = context.DeadlineExceeded

	w := doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/finish", FinishRequest{Answers: validAnswers()})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestHandlerDocumentAndResend(t *testing.T) {
	f := newFixture(t)
	a := f.register(t)
	r := newTestRouter(f, testOwner)

	w := doJSON(t, r, http.MethodGet, "/api/v1/attempts/"+a.ID+"/document", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/resend", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/finish", FinishRequest{Answers: validAnswers()})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/attempts/"+a.ID+"/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "DISC-rapport-jan-de-vries.pdf")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/resend", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, f.mailer.count())

	f.mailer.setFail(assert.AnError)
	w = doJSON(t, r, http.MethodPost, "/api/v1/attempts/"+a.ID+"/resend", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandlerDeliveryConfig(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, testOwner)

	w := doJSON(t, r, http.MethodGet, "/api/v1/delivery-config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["sendToCandidate"])
	assert.Equal(t, true, body["canCandidateDownload"])

	w = doJSON(t, r, http.MethodPut, "/api/v1/delivery-config", map[string]any{
		"sendToCandidate":  false,
		"sendToSupervisor": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/v1/delivery-config", map[string]any{
		"sendToCandidate":  false,
		"sendToSupervisor": true,
		"supervisorEmail":  "trainer@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, false, body["canCandidateDownload"])
	assert.Equal(t, "trainer@example.com", body["supervisorEmail"])

	w = doJSON(t, r, http.MethodGet, "/api/v1/delivery-config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trainer@example.com", decode(t, w)["supervisorEmail"])
}
