package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-deep/deeptree/internal/catalog"
	"github.com/the-deep/deeptree/internal/config"
	"github.com/the-deep/deeptree/internal/pipeline"
	"github.com/the-deep/deeptree/internal/platform"
	"github.com/the-deep/deeptree/internal/store"
	"github.com/the-deep/deeptree/internal/tree"
)

const testKey = "secret"

type harness struct {
	t     *testing.T
	srv   *Server
	store store.Store
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T, pc *platform.Client, cat *catalog.Catalog) *harness {
	t.Helper()
	cfg := config.Config{
		APIKey:         testKey,
		WorkerCount:    2,
		MaxQueueSize:   10,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
	}
	st := store.NewMemoryStore(0)
	orch := pipeline.NewOrchestrator(cfg, st, pc, quiet())
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return &harness{t: t, srv: NewServer(st, orch, cat, nil, quiet(), cfg), store: st}
}

func (h *harness) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testKey)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) seed() string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/trees", map[string]any{
		"title": "Orgs",
		"root": map[string]any{
			"key": "r", "label": "Root",
			"children": []any{
				map[string]any{"key": "a", "label": "Health", "children": []any{
					map[string]any{"key": "a1", "label": "Nutrition"},
					map[string]any{"key": "a2", "label": ""},
				}},
				map[string]any{"key": "b", "label": "Education"},
			},
		},
	})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeInto[store.Document](h.t, rec).ID
}

func TestHealthAndAuth(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trees", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/trees", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTreeLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.seed()

	rec := h.do(http.MethodGet, "/api/trees/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `"1"`, rec.Header().Get("ETag"))
	doc := decodeInto[store.Document](t, rec)
	require.Equal(t, "Orgs", doc.Title)
	require.Equal(t, 5, tree.Count(tree.Forest{doc.Root}))

	rec = h.do(http.MethodGet, "/api/trees", nil)
	list := decodeInto[struct{ Trees []store.Summary }](t, rec)
	require.Len(t, list.Trees, 1)
	require.Equal(t, 5, list.Trees[0].Nodes)

	rec = h.do(http.MethodDelete, "/api/trees/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/trees/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTreeRejects(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.do(http.MethodPost, "/api/trees", `{"title":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees", `{"root":{"key":"a","children":[{"key":"a"}]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Missing keys are filled in.
	rec = h.do(http.MethodPost, "/api/trees", `{"root":{"label":"Top","children":[{"label":"Leaf"}]}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decodeInto[store.Document](t, rec)
	require.Equal(t, "Top", doc.Title)
	require.NoError(t, tree.Validate(tree.Forest{doc.Root}))
}

func TestOptions(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.seed()

	type optionsResponse struct {
		Options []tree.Option
		Total   int
	}

	rec := h.do(http.MethodGet, "/api/trees/"+id+"/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeInto[optionsResponse](t, rec)
	require.Equal(t, 5, all.Total)
	require.Equal(t, "Root/Health/Nutrition", all.Options[2].Label)

	rec = h.do(http.MethodGet, "/api/trees/"+id+"/options?q=nutri", nil)
	found := decodeInto[optionsResponse](t, rec)
	require.Len(t, found.Options, 1)
	require.Equal(t, "a1", found.Options[0].Key)

	rec = h.do(http.MethodGet, "/api/trees/"+id+"/options?limit=2", nil)
	page := decodeInto[optionsResponse](t, rec)
	require.Len(t, page.Options, 2)
	require.Equal(t, 5, page.Total)

	rec = h.do(http.MethodGet, "/api/trees/"+id+"/options?limit=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectionEndpoints(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.seed()

	rec := h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "a1", "selected": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, `"2"`, rec.Header().Get("ETag"))

	type selectionResponse struct {
		Selected []string
		States   map[string]string
	}
	rec = h.do(http.MethodGet, "/api/trees/"+id+"/selection", nil)
	sel := decodeInto[selectionResponse](t, rec)
	require.Equal(t, []string{"r", "a", "a1"}, sel.Selected)
	require.Equal(t, "indeterminate", sel.States["a"])
	require.Equal(t, "selected", sel.States["a1"])

	rec = h.do(http.MethodPut, "/api/trees/"+id+"/selection", map[string]any{"keys": []string{"b"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/trees/"+id+"/selection", nil)
	require.Equal(t, []string{"b"}, decodeInto[selectionResponse](t, rec).Selected)

	rec = h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "zz", "selected": true})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionConflict(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.seed()

	rec := h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "b", "selected": true, "version": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "b", "selected": false, "version": 1})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "b", "selected": false}, "If-Match", `"1"`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "b", "selected": false}, "If-Match", `"2"`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNodeEditing(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.seed()

	rec := h.do(http.MethodPost, "/api/trees/"+id+"/nodes", map[string]any{"parent_key": "b", "label": "Schools"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeInto[struct{ Key string }](t, rec)
	require.NotEmpty(t, added.Key)

	rec = h.do(http.MethodPatch, "/api/trees/"+id+"/nodes/"+added.Key, map[string]any{"label": "Primary", "tooltip": "K-6"})
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeInto[store.Document](t, rec)
	n, ok := tree.Find(tree.Forest{doc.Root}, added.Key)
	require.True(t, ok)
	require.Equal(t, "Primary", n.Label)
	require.Equal(t, "K-6", n.Tooltip)

	rec = h.do(http.MethodPatch, "/api/trees/"+id+"/nodes/"+added.Key, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees/"+id+"/reorder", map[string]any{"parent_key": "a", "from": 1, "to": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	doc = decodeInto[store.Document](t, rec)
	require.Equal(t, "a2", doc.Root.Children[0].Children[0].Key)

	rec = h.do(http.MethodPost, "/api/trees/"+id+"/nodes", map[string]any{"parent_key": "a", "key": "b"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodDelete, "/api/trees/"+id+"/nodes?parent_key=a&index=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc = decodeInto[store.Document](t, rec)
	_, ok = tree.Find(tree.Forest{doc.Root}, "a2")
	require.False(t, ok)

	rec = h.do(http.MethodDelete, "/api/trees/"+id+"/nodes?parent_key=a&index=9", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Removing the root deletes the document.
	rec = h.do(http.MethodDelete, "/api/trees/"+id+"/nodes?parent_key=&index=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"deleted":true}`, rec.Body.String())
	rec = h.do(http.MethodGet, "/api/trees/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpStatsAndMetrics(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.seed()
	h.do(http.MethodPost, "/api/trees/"+id+"/toggle", map[string]any{"key": "a", "selected": true})

	rec := h.do(http.MethodGet, "/api/stats/ops", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"toggle"`)
	require.Contains(t, rec.Body.String(), `"create"`)

	rec = httptest.NewRecorder()
	h.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `deeptree_tree_operations_total{op="toggle",outcome="ok"} 1`)
	require.Contains(t, rec.Body.String(), "deeptree_api_requests_total")
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (h *harness) upload(path, field string, files map[string]string) *httptest.ResponseRecorder {
	h.t.Helper()
	body, ctype := multipartBody(h.t, field, files)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func (h *harness) waitJob(jobID string) pipeline.JobSnapshot {
	h.t.Helper()
	var snap pipeline.JobSnapshot
	require.Eventually(h.t, func() bool {
		rec := h.do(http.MethodGet, "/api/import/"+jobID+"/status", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		snap = decodeInto[pipeline.JobSnapshot](h.t, rec)
		return snap.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func TestImport(t *testing.T) {
	h := newHarness(t, nil, nil)

	rec := h.upload("/api/import", "file", map[string]string{"sectors.md": "# Health\n## Nutrition\n# Education\n"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeInto[struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}](t, rec)
	require.Equal(t, "/api/import/"+resp.JobID+"/status", resp.PollURL)

	snap := h.waitJob(resp.JobID)
	require.Equal(t, pipeline.StatusCompleted, snap.Status, snap.Errors)
	require.Equal(t, 4, snap.Nodes)

	rec = h.do(http.MethodGet, "/api/trees/"+snap.DocID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "sectors", decodeInto[store.Document](t, rec).Title)

	rec = h.upload("/api/import", "file", map[string]string{"virus.exe": "MZ"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/import/nope/status", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchImport(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.upload("/api/import/batch", "files", map[string]string{
		"a.txt":  "one\n  two\n",
		"b.csv":  "only,two\n",
		"c.bin":  "x",
		"d.json": `{"label":"D","children":[{"label":"E"}]}`,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Jobs []pipeline.BatchResult
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 4)

	var queued, failed int
	for _, j := range resp.Jobs {
		if j.Error != "" {
			failed++
			continue
		}
		queued++
		require.Equal(t, pipeline.StatusCompleted, h.waitJob(j.JobID).Status)
	}
	require.Equal(t, 2, queued)
	require.Equal(t, 2, failed)
}

func fakePlatform(t *testing.T) (*platform.Client, *[]byte) {
	t.Helper()
	var pushed []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/analysis-frameworks/5/", r.URL.Path)
			w.Write([]byte(`{"title":"FW","widgets":[{"key":"orgs","title":"Organigram","properties":{"options":{"key":"x","label":"X","children":[{"key":"y","label":"Y"}]}}}]}`))
		case http.MethodPatch:
			assert.Equal(t, "/analysis-frameworks/5/widgets/orgs/", r.URL.Path)
			pushed, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return platform.NewClient(srv.URL, "tok"), &pushed
}

func TestRemoteImportAndPush(t *testing.T) {
	pc, pushed := fakePlatform(t)
	h := newHarness(t, pc, nil)

	rec := h.do(http.MethodPost, "/api/import/remote", map[string]any{"framework_id": "5", "widget_key": "orgs"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decodeInto[struct {
		JobID string `json:"job_id"`
	}](t, rec).JobID

	snap := h.waitJob(jobID)
	require.Equal(t, pipeline.StatusCompleted, snap.Status, snap.Errors)

	rec = h.do(http.MethodPost, "/api/trees/"+snap.DocID+"/toggle", map[string]any{"key": "y", "selected": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees/"+snap.DocID+"/push", map[string]any{"framework_id": "5", "widget_key": "orgs"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Properties struct {
			Options *tree.Node
		}
	}
	require.NoError(t, json.Unmarshal(*pushed, &body))
	require.Equal(t, []string{"x", "y"}, tree.SelectedKeys(tree.Forest{body.Properties.Options}))
}

func TestRemoteWithoutPlatform(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.do(http.MethodPost, "/api/import/remote", map[string]any{"framework_id": "5", "widget_key": "orgs"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = h.do(http.MethodPost, "/api/import/remote", map[string]any{"framework_id": "5"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	id := h.seed()
	rec = h.do(http.MethodPost, "/api/trees/"+id+"/push", map[string]any{"framework_id": "5", "widget_key": "orgs"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sectors.yaml"), []byte("label: Sectors\nchildren:\n  - label: Health\n"), 0o644))
	cat, err := catalog.Open(dir, quiet())
	require.NoError(t, err)
	h := newHarness(t, nil, cat)

	rec := h.do(http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sectors"`)

	rec = h.do(http.MethodGet, "/api/catalog/sectors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/catalog/none", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodPost, "/api/trees", map[string]any{"template": "sectors"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decodeInto[store.Document](t, rec)
	require.Equal(t, "Sectors", doc.Title)
	require.Equal(t, "catalog:sectors", doc.Source)
	require.Equal(t, 2, tree.Count(tree.Forest{doc.Root}))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "passwd",
		"a..b.md":          "a_b.md",
		"":                 "unnamed",
		"plain.txt":        "plain.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
