package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonathan/newsroom/internal/db"
	"github.com/jonathan/newsroom/internal/ingestion"
	"github.com/jonathan/newsroom/internal/logging"
	"github.com/jonathan/newsroom/internal/processing"
	"github.com/jonathan/newsroom/internal/server/ratelimit"
	"github.com/jonathan/newsroom/internal/session"
	"github.com/jonathan/newsroom/internal/types"
	"github.com/jonathan/newsroom/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIngester drives progress like the ingestion service and records the calls it receives.
type fakeIngester struct {
	mu      sync.Mutex
	calls   []ingestion.NewsSource
	actors  []uuid.UUID
	block   chan struct{}
	started chan struct{}
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{started: make(chan struct{}, 8)}
}

func (f *fakeIngester) Ingest(ctx context.Context, actor uuid.UUID, source ingestion.NewsSource, progress ingestion.ProgressReporter, notifier ingestion.Notifier) (*ingestion.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, source)
	f.actors = append(f.actors, actor)
	block := f.block
	f.mu.Unlock()
	f.started <- struct{}{}

	progress.UpdateProgress(processing.StageUploading, 10, "Enviando requisição")
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			notifier.NotifyCancelled()
			progress.UpdateProgress(processing.StageIdle, 0, "")
			return nil, ctx.Err()
		}
	}
	progress.UpdateProgress(processing.StageCompleted, 100, "Concluído")
	notifier.NotifySuccess("2 notícias importadas.")
	return &ingestion.Result{Sources: 1, Fetched: 2, Persisted: 2}, nil
}

func (f *fakeIngester) sources() []ingestion.NewsSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingestion.NewsSource(nil), f.calls...)
}

// fakeSourceStore serves stored news sources per actor.
type fakeSourceStore struct {
	sources map[uuid.UUID]map[string]db.NewsSource
}

func (f *fakeSourceStore) GetNewsSource(_ context.Context, userID uuid.UUID, id string) (*db.NewsSource, error) {
	if src, ok := f.sources[userID][id]; ok {
		return &src, nil
	}
	return nil, nil
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	sessions *session.Manager
	jwt      *JWTService
	ingester *fakeIngester
	drafts   *session.MemoryDrafts
	stored   *fakeSourceStore
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		ingester: newFakeIngester(),
		drafts:   session.NewMemoryDrafts(),
		stored:   &fakeSourceStore{sources: make(map[uuid.UUID]map[string]db.NewsSource)},
	}
	env.sessions = session.NewManager(session.Config{
		Drafts:   env.drafts,
		Ingester: env.ingester,
		Logger:   logging.Discard(),
	}, 0)
	t.Cleanup(env.sessions.CloseAll)
	env.jwt = setupTestJWTService(t, 24)

	cfg := Config{
		Port:     0,
		Sessions: env.sessions,
		JWT:      env.jwt,
		Drafts:   env.drafts,
		Sources: []ingestion.NewsSource{
			{ID: "g1", Name: "G1", URL: "https://g1.globo.com/rss", Category: "geral", Frequency: "hourly"},
		},
		SourceStore: env.stored,
		RateLimit:   &ratelimit.Config{Enabled: false},
		Logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.rateLimiter.Stop)
	env.server = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) token(t *testing.T, actor uuid.UUID) string {
	t.Helper()
	token, err := e.jwt.GenerateToken(actor)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T, token string) uuid.UUID {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", nil, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp types.CreateSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func (e *testEnv) snapshot(t *testing.T, id uuid.UUID) session.Snapshot {
	t.Helper()
	w := e.do(t, http.MethodGet, "/sessions/"+id.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{JWT: setupTestJWTService(t, 24)})
	assert.Error(t, err)

	_, err = New(Config{Sessions: session.NewManager(session.Config{}, 0)})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, w.Body.String())
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return assert.AnError }

func TestHandleHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Health = failingPinger{} })
	w := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodOptions, "/sessions", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)

	t.Run("anonymous", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/sessions", nil, "")
		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeBody[types.CreateSessionResponse](t, w)
		assert.False(t, resp.Authenticated)
		assert.NotEqual(t, uuid.Nil, resp.ID)

		snap := env.snapshot(t, resp.ID)
		assert.Equal(t, workflow.StepUpload, snap.State.Step)
		assert.Equal(t, processing.StageIdle, snap.Processing.Stage)
		assert.False(t, snap.Authenticated)
	})

	t.Run("with token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/sessions", nil, env.token(t, uuid.New()))
		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeBody[types.CreateSessionResponse](t, w)
		assert.True(t, resp.Authenticated)
		assert.True(t, env.snapshot(t, resp.ID).Authenticated)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/sessions", nil, "forged")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/sessions/" + uuid.NewString(), "/sessions/not-a-uuid"} {
		w := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Body.String(), "session not found")
	}

	w := env.do(t, http.MethodPost, "/sessions/"+uuid.NewString()+"/advance", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "")

	w := env.do(t, http.MethodDelete, "/sessions/"+id.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, env.sessions.Len())

	w = env.do(t, http.MethodDelete, "/sessions/"+id.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdvanceGating(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "")
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodPost, base+"/advance", nil, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeBody[types.AdvanceResponse](t, w)
	assert.False(t, resp.IsValid)
	assert.Equal(t, workflow.MsgNoContent, resp.Message)
	assert.Equal(t, "upload", resp.Step)

	content := "Texto da matéria"
	w = env.do(t, http.MethodPatch, base+"/draft", types.UpdateDraftRequest{Content: &content}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/advance", nil, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, workflow.MsgProcessingPending, decodeBody[types.AdvanceResponse](t, w).Message)

	w = env.do(t, http.MethodPost, base+"/processing", types.ProcessingUpdateRequest{Stage: "completed", Progress: 100, Message: "Pronto"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody[processing.Status](t, w)
	assert.Equal(t, processing.StageCompleted, status.Stage)

	w = env.do(t, http.MethodPost, base+"/advance", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[types.AdvanceResponse](t, w)
	assert.True(t, resp.IsValid)
	assert.Equal(t, "title-selection", resp.Step)
	assert.Equal(t, 1, resp.Index)
	assert.Equal(t, workflow.StepRegistry[workflow.StepTitleSelection].Label, resp.Label)
}

func TestRetreatAndJump(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "")
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodPost, base+"/retreat", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[types.RetreatResponse](t, w)
	assert.False(t, resp.Moved)
	assert.Equal(t, "upload", resp.Step)

	w = env.do(t, http.MethodPost, base+"/jump", types.JumpRequest{Step: "finalization"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.StepFinalization, decodeBody[workflow.State](t, w).Step)

	w = env.do(t, http.MethodPost, base+"/retreat", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[types.RetreatResponse](t, w)
	assert.True(t, resp.Moved)
	assert.Equal(t, "image-selection", resp.Step)

	w = env.do(t, http.MethodPost, base+"/jump", types.JumpRequest{Step: "publishing"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/jump", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Step")
}

func TestProcessingUpdate_Validation(t *testing.T) {
	env := newTestEnv(t)
	base := "/sessions/" + env.createSession(t, "").String()

	w := env.do(t, http.MethodPost, base+"/processing", types.ProcessingUpdateRequest{Stage: "dancing"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/processing", types.ProcessingUpdateRequest{Stage: "error"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, processing.DefaultErrorDetail, decodeBody[processing.Status](t, w).Error)

	req := httptest.NewRequest(http.MethodPost, base+"/processing", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDraftFields(t *testing.T) {
	env := newTestEnv(t)
	base := "/sessions/" + env.createSession(t, "").String()

	w := env.do(t, http.MethodPost, base+"/files", types.AddFilesRequest{Files: []types.FileHandle{
		{ID: "f1", Name: "pauta.pdf", Size: 2048},
		{ID: "f2", Name: "foto.jpg", Size: 4096},
	}}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[workflow.State](t, w).Files, 2)

	w = env.do(t, http.MethodDelete, base+"/files/f1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, base+"/files/f1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, base+"/files", types.AddFilesRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, base+"/draft", types.UpdateDraftRequest{
		SuggestedTitles: []string{"Primeira manchete", "Segunda manchete"},
		SelectedImage:   &types.FileHandle{ID: "f2", Name: "foto.jpg", Size: 4096},
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeBody[workflow.State](t, w)
	require.NotNil(t, state.SelectedImage)
	assert.Equal(t, "f2", state.SelectedImage.ID)

	index := 1
	w = env.do(t, http.MethodPost, base+"/titles/select", types.SelectTitleRequest{Index: &index}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Segunda manchete", decodeBody[workflow.State](t, w).Title)

	index = 5
	w = env.do(t, http.MethodPost, base+"/titles/select", types.SelectTitleRequest{Index: &index}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/titles/select", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, base+"/draft", types.UpdateDraftRequest{ClearImage: true}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeBody[workflow.State](t, w).SelectedImage)
}

func TestPublish_DeferredUntilAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "")
	base := "/sessions/" + id.String()

	title := "Chuvas no litoral"
	w := env.do(t, http.MethodPatch, base+"/draft", types.UpdateDraftRequest{Title: &title}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/publish", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, types.GateResponse{AuthRequired: true}, decodeBody[types.GateResponse](t, w))

	snap := env.snapshot(t, id)
	assert.True(t, snap.AuthPrompt)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "publish_article", string(snap.Pending.Kind))
	assert.Nil(t, snap.State.ArticleID)

	w = env.do(t, http.MethodDelete, base+"/pending", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	snap = env.snapshot(t, id)
	assert.False(t, snap.AuthPrompt)
	assert.NotNil(t, snap.Pending, "dismissing keeps the pending command")

	actor := uuid.New()
	token := env.token(t, actor)
	w = env.do(t, http.MethodPost, base+"/auth", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap = decodeBody[session.Snapshot](t, w)
	assert.True(t, snap.Authenticated)
	assert.Nil(t, snap.Pending)
	require.NotNil(t, snap.State.ArticleID)

	w = env.do(t, http.MethodGet, "/drafts/"+snap.State.ArticleID.String(), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	draft := decodeBody[types.DraftResponse](t, w)
	assert.Equal(t, title, draft.Title)
	assert.Equal(t, db.DraftStatusPublished, draft.Status)
	assert.Contains(t, string(draft.State), `"title":"Chuvas no litoral"`)

	// Another actor cannot read it.
	w = env.do(t, http.MethodGet, "/drafts/"+snap.State.ArticleID.String(), nil, env.token(t, uuid.New()))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/drafts/"+snap.State.ArticleID.String(), nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublish_Authenticated(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, env.token(t, uuid.New()))

	w := env.do(t, http.MethodPost, "/sessions/"+id.String()+"/publish", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.GateResponse{Executed: true}, decodeBody[types.GateResponse](t, w))
	assert.NotNil(t, env.snapshot(t, id).State.ArticleID)
}

func TestAuthenticate_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "")

	w := env.do(t, http.MethodPost, "/sessions/"+id.String()+"/auth", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/sessions/"+id.String()+"/auth", nil, env.token(t, uuid.New()))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/sessions/"+id.String()+"/logout", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.snapshot(t, id).Authenticated)
}

func TestAuthenticate_AnotherActorConflicts(t *testing.T) {
	env := newTestEnv(t)
	alice := uuid.New()
	id := env.createSession(t, env.token(t, alice))
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodPost, base+"/auth", nil, env.token(t, uuid.New()))
	assert.Equal(t, http.StatusConflict, w.Code)
	sess, ok := env.sessions.Get(id)
	require.True(t, ok)
	assert.Equal(t, alice, sess.Actor())

	w = env.do(t, http.MethodPost, base+"/auth", nil, env.token(t, alice))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/logout", nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, base+"/auth", nil, env.token(t, uuid.New()))
	assert.Equal(t, http.StatusOK, w.Code)
}

func waitStarted(t *testing.T, f *fakeIngester) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion did not start")
	}
}

func TestIngest(t *testing.T) {
	env := newTestEnv(t)
	actor := uuid.New()
	id := env.createSession(t, env.token(t, actor))
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{SourceID: "g1"}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, types.GateResponse{Executed: true}, decodeBody[types.GateResponse](t, w))
	waitStarted(t, env.ingester)

	require.Eventually(t, func() bool {
		return env.snapshot(t, id).Processing.Stage == processing.StageCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, env.snapshot(t, id).State.AgentConfirmed)

	sources := env.ingester.sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "https://g1.globo.com/rss", sources[0].URL)
	assert.Equal(t, "hourly", sources[0].Frequency)
}

func TestIngest_SourceResolution(t *testing.T) {
	env := newTestEnv(t)
	actor := uuid.New()
	env.stored.sources[actor] = map[string]db.NewsSource{
		"folha": {ID: "folha", URL: "https://folha.uol.com.br/rss", Category: "politica", Frequency: "daily"},
	}
	id := env.createSession(t, env.token(t, actor))
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{SourceID: "folha"}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	waitStarted(t, env.ingester)
	require.Eventually(t, func() bool {
		return env.snapshot(t, id).Processing.Stage == processing.StageCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// Inline sources need no lookup.
	other := "/sessions/" + env.createSession(t, env.token(t, uuid.New())).String()
	w = env.do(t, http.MethodPost, other+"/ingest", types.IngestRequest{SourceID: "estadao", URL: "https://estadao.com.br/rss", Category: "geral"}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	waitStarted(t, env.ingester)

	w = env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{SourceID: "unknown"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sources := env.ingester.sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "politica", sources[0].Category)
	assert.Equal(t, "https://estadao.com.br/rss", sources[1].URL)
}

func TestIngest_DeferredUntilAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "")
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{SourceID: "g1"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, types.GateResponse{AuthRequired: true}, decodeBody[types.GateResponse](t, w))
	assert.Empty(t, env.ingester.sources())

	actor := uuid.New()
	w = env.do(t, http.MethodPost, base+"/auth", nil, env.token(t, actor))
	require.Equal(t, http.StatusOK, w.Code)
	waitStarted(t, env.ingester)

	env.ingester.mu.Lock()
	defer env.ingester.mu.Unlock()
	require.Len(t, env.ingester.actors, 1)
	assert.Equal(t, actor, env.ingester.actors[0])
}

func TestCancelProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.ingester.block = make(chan struct{})
	id := env.createSession(t, env.token(t, uuid.New()))
	base := "/sessions/" + id.String()

	w := env.do(t, http.MethodDelete, base+"/processing", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{SourceID: "g1"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	waitStarted(t, env.ingester)

	w = env.do(t, http.MethodPost, base+"/ingest", types.IngestRequest{SourceID: "g1"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodDelete, base+"/processing", nil, "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return env.snapshot(t, id).Processing.Stage == processing.StageIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngest_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.sessions = session.NewManager(session.Config{Logger: logging.Discard()}, 0)
	t.Cleanup(env.sessions.CloseAll)
	srv, err := New(Config{
		Sessions:  env.sessions,
		JWT:       env.jwt,
		Sources:   []ingestion.NewsSource{{ID: "g1", URL: "https://g1.globo.com/rss"}},
		RateLimit: &ratelimit.Config{Enabled: false},
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	env.handler = srv.Handler()

	id := env.createSession(t, env.token(t, uuid.New()))
	w := env.do(t, http.MethodPost, "/sessions/"+id.String()+"/ingest", types.IngestRequest{SourceID: "g1"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/drafts/"+uuid.NewString(), nil, env.token(t, uuid.New()))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestResumeDraft(t *testing.T) {
	env := newTestEnv(t)
	actor := uuid.New()

	saved := workflow.NewState()
	saved.Step = workflow.StepContentEditing
	saved.Content = "Rascunho salvo"
	saved.Title = "Manchete salva"
	draft, err := env.drafts.SaveDraft(context.Background(), actor, db.DraftInput{
		Title: saved.Title,
		Step:  string(saved.Step),
		State: saved,
	})
	require.NoError(t, err)

	anon := env.createSession(t, "")
	w := env.do(t, http.MethodPost, "/sessions/"+anon.String()+"/resume/"+draft.ID.String(), nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	id := env.createSession(t, env.token(t, actor))
	base := "/sessions/" + id.String()

	w = env.do(t, http.MethodPost, base+"/resume/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/resume/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, base+"/resume/"+draft.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decodeBody[workflow.State](t, w)
	assert.Equal(t, workflow.StepContentEditing, state.Step)
	assert.Equal(t, "Rascunho salvo", state.Content)
	require.NotNil(t, state.ArticleID)
	assert.Equal(t, draft.ID, *state.ArticleID)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit = &ratelimit.Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			EndpointConfigs: []ratelimit.EndpointConfig{{Pattern: "/sessions", Method: "POST", Limit: 1, Window: time.Hour}},
		}
	})

	w := env.do(t, http.MethodPost, "/sessions", nil, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = env.do(t, http.MethodPost, "/sessions", nil, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	w = env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// readSSE returns the event name and data of the next SSE message.
func readSSE(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestSessionEvents_SSE(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	id := env.createSession(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sessions/"+id.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, data := readSSE(t, reader)
	assert.Equal(t, "snapshot", event)
	assert.Contains(t, data, id.String())

	env.do(t, http.MethodPost, "/sessions/"+id.String()+"/processing", types.ProcessingUpdateRequest{Stage: "uploading", Progress: 10}, "")

	event, data = readSSE(t, reader)
	assert.Equal(t, session.EventTypeStatus, event)
	assert.Contains(t, data, `"stage":"uploading"`)

	env.sessions.Delete(id)
	event, _ = readSSE(t, reader)
	assert.Equal(t, "closed", event)
}

func TestSessionEvents_WebSocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	id := env.createSession(t, "")
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + id.String() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var pong map[string]any
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	env.do(t, http.MethodPost, "/sessions/"+id.String()+"/jump", types.JumpRequest{Step: "content-editing"}, "")

	var ev session.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, session.EventTypeStep, ev.Type)
	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "content-editing", data["step"])

	w := env.do(t, http.MethodGet, "/sessions/"+uuid.NewString()+"/ws", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
