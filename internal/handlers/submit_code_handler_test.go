package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"oracle-backend/internal/cryptoutil"
	"oracle-backend/internal/middleware"
	"oracle-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmissionStore struct {
	subs map[string]*models.Submission
}

func (f *fakeSubmissionStore) Put(ctx context.Context, s *models.Submission) error {
	f.subs[s.RequestID] = s
	return nil
}

func (f *fakeSubmissionStore) GetByRequestID(ctx context.Context, requestID string) (*models.Submission, error) {
	return f.subs[requestID], nil
}

func (f *fakeSubmissionStore) Delete(ctx context.Context, requestID string) error {
	delete(f.subs, requestID)
	return nil
}

func (f *fakeSubmissionStore) ListPending(ctx context.Context, limit int) ([]*models.Submission, error) {
	return nil, nil
}

func newSubmitCodeRouter(store *fakeSubmissionStore, hmacKey []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()

	r := gin.New()
	auth := middleware.NewHMACAuthMiddleware(hmacKey, logger)
	r.POST("/submit-code", auth.RequireSignature(), NewSubmitCodeHandler(store, logger).SubmitCode)
	return r
}

func signedRequest(t *testing.T, key []byte, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/submit-code", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cryptoutil.SignatureHeader, cryptoutil.SignBody(key, []byte(body)))
	return req
}

func TestSubmitCode_StoresSubmission(t *testing.T) {
	key := []byte("topsecret")
	store := &fakeSubmissionStore{subs: make(map[string]*models.Submission)}
	router := newSubmitCodeRouter(store, key)

	body := `{"requestId":"0x01","userId":"u1","code":"123456"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, key, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	stored := store.subs["0x01"]
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, "123456", stored.Code)
}

func TestSubmitCode_RejectsBadSignature(t *testing.T) {
	key := []byte("topsecret")
	store := &fakeSubmissionStore{subs: make(map[string]*models.Submission)}
	router := newSubmitCodeRouter(store, key)

	body := `{"requestId":"0x01","userId":"u1","code":"123456"}`
	req := httptest.NewRequest(http.MethodPost, "/submit-code", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(cryptoutil.SignatureHeader, "sha256=deadbeef")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, store.subs)
}

func TestSubmitCode_RejectsMissingSignature(t *testing.T) {
	key := []byte("topsecret")
	store := &fakeSubmissionStore{subs: make(map[string]*models.Submission)}
	router := newSubmitCodeRouter(store, key)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submit-code",
		bytes.NewBufferString(`{"requestId":"0x01","userId":"u1","code":"123456"}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitCode_RejectsNonNumericCode(t *testing.T) {
	key := []byte("topsecret")
	store := &fakeSubmissionStore{subs: make(map[string]*models.Submission)}
	router := newSubmitCodeRouter(store, key)

	body := `{"requestId":"0x01","userId":"u1","code":"abcdef"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, key, body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.subs)
}
