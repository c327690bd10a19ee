package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/micmagic/internal/auth"
	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/memo/memotest"
	"github.com/audiolibrelab/micmagic/internal/service"
	"github.com/audiolibrelab/micmagic/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	srv      *Server
	identity *memotest.Identity
	repo     *memotest.Repository
	jwt      *auth.JWTService
	token    string
	owner    string
}

func newTestEnv(t *testing.T, seed ...memo.Record) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	jwt := auth.NewJWTService([]byte("test-secret"), time.Hour)
	accounts := auth.NewService(store, jwt)
	resp, err := accounts.Register(ctx, auth.RegisterRequest{Email: "ada@example.com", Password: "longenough"})
	require.NoError(t, err)

	for i := range seed {
		seed[i].OwnerID = resp.User.ID
	}
	env := &testEnv{
		identity: &memotest.Identity{Owner: resp.User.ID},
		repo:     memotest.NewRepository(seed...),
		jwt:      jwt,
		token:    resp.Token,
		owner:    resp.User.ID,
	}
	mgr := service.New(env.identity, &memotest.Recorder{Clip: memo.Clip{DurationMs: 61000}}, memotest.NewPlayer(), env.repo,
		service.WithSharer(&memotest.Sharer{}))
	require.NoError(t, mgr.Load(ctx))
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	env.srv = New(Deps{Session: mgr, Identity: env.identity, JWT: jwt, Accounts: accounts})
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Body) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)

	var out Body
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func decode(t *testing.T, data interface{}, into interface{}) {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, into))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/status", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := env.jwt.Generate("someone-else", "x@example.com")
	require.NoError(t, err)
	w, _ = env.do(t, http.MethodGet, "/api/status", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.identity.Owner = ""
	w, _ = env.do(t, http.MethodGet, "/api/status", env.token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterLoginProfile(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "ada@example.com", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Conflict", body.Kind)

	w, _ = env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"email": "not-an-email", "password": "longenough"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "longenough"})
	require.Equal(t, http.StatusOK, w.Code)
	var tok auth.TokenResponse
	decode(t, body.Data, &tok)
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, env.owner, tok.User.ID)

	w, _ = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = env.do(t, http.MethodPut, "/api/profile", env.token, gin.H{"username": "Ada", "notifications": false})
	require.Equal(t, http.StatusOK, w.Code)
	var user auth.User
	decode(t, body.Data, &user)
	assert.Equal(t, "Ada", user.Username)
	assert.False(t, user.Notifications)

	w, body = env.do(t, http.MethodGet, "/api/profile", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, body.Data, &user)
	assert.Equal(t, "ada@example.com", user.Email)
}

func TestCaptureFlow(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/capture/toggle", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res service.ToggleResult
	decode(t, body.Data, &res)
	assert.Equal(t, "start", string(res.Intent))

	w, body = env.do(t, http.MethodPost, "/api/capture/resume", env.token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InvalidTransition", body.Kind)

	w, _ = env.do(t, http.MethodPost, "/api/capture/pause", env.token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/capture/stop", env.token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var entry memo.RecordingEntry
	decode(t, body.Data, &entry)
	assert.Equal(t, "Recording 1", entry.Name)
	assert.Equal(t, "1:01", entry.DurationLabel)
	assert.Equal(t, 1, env.repo.Len())

	w, body = env.do(t, http.MethodGet, "/api/status", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st service.Status
	decode(t, body.Data, &st)
	assert.Equal(t, "IDLE", string(st.State))
	assert.Equal(t, 1, st.Count)
}

func TestRecordingRoutes(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "memo.m4a")
	require.NoError(t, os.WriteFile(audio, []byte("0123456789"), 0644))
	env := newTestEnv(t,
		memo.Record{ID: "a", Fields: memo.Fields{Name: "Groceries", AudioRef: audio, DurationLabel: "0:05", CreatedDate: "3/5/24", CreatedTime: "8:00:00 AM"}},
		memo.Record{ID: "b", Fields: memo.Fields{Name: "Lecture", AudioRef: "/tmp/b.m4a", DurationLabel: "9:00", CreatedDate: "3/6/24", CreatedTime: "9:00:00 AM"}},
	)

	w, body := env.do(t, http.MethodGet, "/api/recordings?q=lect", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []memo.RecordingEntry
	decode(t, body.Data, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)

	w, body = env.do(t, http.MethodGet, "/api/recordings?q=", env.token, nil)
	decode(t, body.Data, &entries)
	assert.Len(t, entries, 2)

	w, body = env.do(t, http.MethodPatch, "/api/recordings/a", env.token, gin.H{"name": "  Shopping  "})
	require.Equal(t, http.StatusOK, w.Code)
	var entry memo.RecordingEntry
	decode(t, body.Data, &entry)
	assert.Equal(t, "Shopping", entry.Name)

	w, body = env.do(t, http.MethodPatch, "/api/recordings/a", env.token, gin.H{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidName", body.Kind)

	w, body = env.do(t, http.MethodPost, "/api/recordings/a/playback", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"playing": true}, body.Data)

	w, body = env.do(t, http.MethodPost, "/api/recordings/a/share", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"url": "shared:" + audio}, body.Data)

	req := httptest.NewRequest(http.MethodGet, "/api/recordings/a/audio", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())

	w, _ = env.do(t, http.MethodDelete, "/api/recordings/b", env.token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/recordings/b", env.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", body.Kind)

	env.repo.FailDelete = true
	w, body = env.do(t, http.MethodDelete, "/api/recordings/a", env.token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "PersistFailed", body.Kind)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Event)

	w, _ := env.do(t, http.MethodPost, "/api/capture/start", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Event)
	var ev service.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "RECORDING", string(ev.State))

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?token=bad", nil)
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{memo.ErrInvalidName, http.StatusBadRequest},
		{memo.ErrUnauthenticated, http.StatusUnauthorized},
		{memo.ErrPermissionDenied, http.StatusForbidden},
		{memo.ErrNotFound, http.StatusNotFound},
		{memo.ErrInvalidTransition, http.StatusConflict},
		{memo.ErrPersistFailed, http.StatusBadGateway},
		{memo.ErrShareUnavailable, http.StatusServiceUnavailable},
		{memo.ErrCaptureFailed, http.StatusInternalServerError},
		{auth.ErrEmailTaken, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
