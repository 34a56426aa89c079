package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
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

	_ "github.com/plotsync/plotsync/internal/reader/all"
	"github.com/plotsync/plotsync/internal/reader"
	"github.com/plotsync/plotsync/internal/storage/memory"
	"github.com/plotsync/plotsync/internal/syncer"
	"github.com/plotsync/plotsync/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type testServer struct {
	gw     *memory.MemoryStorage
	srv    *Server
	router *gin.Engine
	dir    string
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gw := memory.New()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(syncer.NewEngine(gw, nil, nil), opts)
	return &testServer{gw: gw, srv: srv, router: srv.Router(), dir: t.TempDir()}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return w, env
}

func (ts *testServer) writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(ts.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// importMarkdown imports content and returns the new project id.
func (ts *testServer) importMarkdown(t *testing.T, content string) (string, string) {
	t.Helper()
	path := ts.writeSource(t, "novel.md", content)
	w, env := ts.do(t, http.MethodPost, "/api/projects/import", ImportRequest{Path: path, Format: "markdown"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var res struct {
		Project types.Project `json:"project"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.Project.ID)
	return res.Project.ID, path
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	w, env := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestImportThenPreviewIsEmpty(t *testing.T) {
	ts := newTestServer(t, Options{})
	id, _ := ts.importMarkdown(t, "# Act One\n## Scene A\n- do thing\n")

	w, env := ts.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var projects []types.Project
	require.NoError(t, json.Unmarshal(env.Data, &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, id, projects[0].ID)

	w, env = ts.do(t, http.MethodGet, "/api/projects/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view ProjectView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Len(t, view.Chapters, 1)
	assert.Len(t, view.Scenes, 1)
	assert.Len(t, view.Beats, 1)

	w, env = ts.do(t, http.MethodGet, "/api/projects/"+id+"/sync/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var preview types.SyncPreview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.True(t, preview.IsEmpty())
	assert.Equal(t, id, preview.ProjectID)
}

func TestPreviewThenApply(t *testing.T) {
	ts := newTestServer(t, Options{})
	id, path := ts.importMarkdown(t, "# Act One\n## Scene A\n- do thing\n")
	require.NoError(t, os.WriteFile(path, []byte("# Act One\n## Scene A!\n- do thing\n## Scene B\n- more\n"), 0o644))

	_, env := ts.do(t, http.MethodGet, "/api/projects/"+id+"/sync/preview", nil)
	var preview types.SyncPreview
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	require.Len(t, preview.Changes, 1)
	require.Len(t, preview.Additions, 1)

	w, env := ts.do(t, http.MethodPost, "/api/projects/"+id+"/sync/apply", ApplyRequest{
		ChangeIDs: []string{preview.Changes[0].ID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum types.ReimportSummary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, 1, sum.ScenesUpdated)
	assert.Equal(t, 0, sum.ScenesAdded)

	w, env = ts.do(t, http.MethodPost, "/api/projects/"+id+"/reimport", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, 1, sum.ScenesAdded)
	assert.Equal(t, 1, sum.BeatsAdded)
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()

	scratch := &types.Project{Title: "Scratch"}
	require.NoError(t, ts.gw.CreateProject(ctx, scratch))
	badJSON := ts.writeSource(t, "board.json", "not json")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown project preview", http.MethodGet, "/api/projects/nope/sync/preview", nil, http.StatusNotFound, CodeNotFound},
		{"unknown project tree", http.MethodGet, "/api/projects/nope", nil, http.StatusNotFound, CodeNotFound},
		{"no source path preview", http.MethodGet, "/api/projects/" + scratch.ID + "/sync/preview", nil, http.StatusConflict, CodePrecondition},
		{"no source path reimport", http.MethodPost, "/api/projects/" + scratch.ID + "/reimport", nil, http.StatusConflict, CodePrecondition},
		{"unknown format", http.MethodPost, "/api/projects/import", ImportRequest{Path: badJSON, Format: "docx"}, http.StatusBadRequest, CodeBadRequest},
		{"missing path", http.MethodPost, "/api/projects/import", map[string]string{"format": "markdown"}, http.StatusBadRequest, CodeBadRequest},
		{"malformed source", http.MethodPost, "/api/projects/import", ImportRequest{Path: badJSON, Format: "toolexport"}, http.StatusUnprocessableEntity, CodeFormat},
		{"missing source file", http.MethodPost, "/api/projects/import", ImportRequest{Path: filepath.Join(ts.dir, "gone.md"), Format: "markdown"}, http.StatusNotFound, CodeNotFound},
		{"bad reference type", http.MethodPost, "/api/projects/" + scratch.ID + "/references/r1/type", ReclassifyRequest{Type: "spaceship"}, http.StatusBadRequest, CodeBadRequest},
		{"unknown reference", http.MethodPost, "/api/projects/" + scratch.ID + "/references/r1/type", ReclassifyRequest{Type: "character"}, http.StatusNotFound, CodeNotFound},
		{"no route", http.MethodGet, "/api/nothing", nil, http.StatusNotFound, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestReclassify(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()
	p := &types.Project{Title: "Refs"}
	require.NoError(t, ts.gw.CreateProject(ctx, p))
	ref := &types.Reference{ProjectID: p.ID, Type: types.RefItem, Name: "Mara", Classification: types.BasisDefault, Confidence: types.ConfidenceLow}
	_, err := ts.gw.InsertReference(ctx, ref)
	require.NoError(t, err)

	w, env := ts.do(t, http.MethodPost, "/api/projects/"+p.ID+"/references/"+ref.ID+"/type", ReclassifyRequest{Type: "Character"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got types.Reference
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, types.RefCharacter, got.Type)
	assert.Equal(t, types.BasisManual, got.Classification)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProgressStream(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ts.srv.Hub().Run(ctx)

	httpSrv := httptest.NewServer(ts.router)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	report := ts.srv.Hub().Reporter("p1", "/tmp/novel.md")
	report(reader.ProgressEvent{Format: types.FormatVault, Stage: "scan", Current: 2, Total: 5})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ProgressMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "progress", msg.Type)
	assert.Equal(t, "p1", msg.ProjectID)
	assert.Equal(t, "scan", msg.Event.Stage)
	assert.Equal(t, 2, msg.Event.Current)
	assert.Equal(t, 5, msg.Event.Total)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&types.FormatError{Format: types.FormatVault, Kind: types.FormatInvalidStructure}, http.StatusUnprocessableEntity},
		{&types.NotFoundError{Kind: "project", Name: "x"}, http.StatusNotFound},
		{&types.PreconditionError{Msg: "busy"}, http.StatusConflict},
		{&types.StoreError{Op: "insert", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusOf(tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
	}
}
