package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonhq/halcyon/internal/auth"
	"github.com/halcyonhq/halcyon/internal/model"
	"github.com/halcyonhq/halcyon/internal/server"
	"github.com/halcyonhq/halcyon/internal/service/setup"
	"github.com/halcyonhq/halcyon/internal/storage"
	"github.com/halcyonhq/halcyon/internal/testutil"
)

var (
	testDB     *storage.DB
	testJWTMgr *auth.JWTManager
	testSrv    *server.Server
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		os.Exit(1)
	}
	defer testDB.Close()

	testJWTMgr, err = auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create JWT manager: %v\n", err)
		os.Exit(1)
	}

	logger := testutil.TestLogger()
	testSrv = server.New(server.ServerConfig{
		DB:                  testDB,
		JWTMgr:              testJWTMgr,
		SetupSvc:            setup.New(testDB, logger),
		Logger:              logger,
		Port:                0,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})

	os.Exit(m.Run())
}

func createUserWithToken(t *testing.T) (model.User, string) {
	t.Helper()
	user, err := testDB.CreateUser(context.Background(), model.User{
		Email: fmt.Sprintf("user-%s@example.com", uuid.New()),
		Name:  "Test User",
	})
	require.NoError(t, err)

	token, _, err := testJWTMgr.IssueToken(user)
	require.NoError(t, err)
	return user, token
}

func doRequest(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	testSrv.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func smallDraft() model.DraftSystem {
	return model.DraftSystem{
		Operations: []model.DraftOperation{{ID: "op-1", Title: "Health"}},
		Habits:     []model.DraftHabit{{ID: "h-1", Name: "Run", OperationID: "op-1"}},
	}
}

func TestHealth(t *testing.T) {
	w := doRequest(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "connected", resp.Postgres)
	assert.Equal(t, "test", resp.Version)
}

func TestAuthRequired(t *testing.T) {
	w := doRequest(t, http.MethodPost, "/finalize", "", smallDraft())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, http.MethodPost, "/claim", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthToken(t *testing.T) {
	ctx := context.Background()

	hash, err := auth.HashAPIKey("sk-test-key")
	require.NoError(t, err)
	user, err := testDB.CreateUser(ctx, model.User{
		Email:      fmt.Sprintf("keyed-%s@example.com", uuid.New()),
		Name:       "Keyed User",
		APIKeyHash: &hash,
	})
	require.NoError(t, err)

	w := doRequest(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		Email: user.Email, APIKey: "sk-test-key",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.AuthTokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)

	claims, err := testJWTMgr.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	// Wrong key and unknown email both come back as the same 401.
	w = doRequest(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		Email: user.Email, APIKey: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		Email: "nobody@example.com", APIKey: "sk-test-key",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFinalizeEndpoint(t *testing.T) {
	user, token := createUserWithToken(t)

	w := doRequest(t, http.MethodPost, "/finalize", token, smallDraft())
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.SetupResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	ops, err := testDB.GetOperationsByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "Health", ops[0].Title)
}

func TestFinalizeEndpoint_InvalidDraft(t *testing.T) {
	_, token := createUserWithToken(t)

	bad := smallDraft()
	bad.Operations[0].Title = ""

	w := doRequest(t, http.MethodPost, "/finalize", token, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decodeError(t, w))
}

func TestClaimEndpoint(t *testing.T) {
	_, token := createUserWithToken(t)
	draftID := "draft-" + uuid.New().String()

	body := model.ClaimRequest{DraftID: draftID, DraftSystem: smallDraft()}
	w := doRequest(t, http.MethodPost, "/claim", token, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.SetupResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	// Replaying the claim, even from another account, is rejected.
	_, otherToken := createUserWithToken(t)
	w = doRequest(t, http.MethodPost, "/claim", otherToken, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Draft has already been claimed", decodeError(t, w))
}

func TestClaimEndpoint_MissingDraftID(t *testing.T) {
	_, token := createUserWithToken(t)

	w := doRequest(t, http.MethodPost, "/claim", token, model.ClaimRequest{DraftSystem: smallDraft()})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "draftId is required", decodeError(t, w))
}

func TestRequestIDHeader(t *testing.T) {
	w := doRequest(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	testSrv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
