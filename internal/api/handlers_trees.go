package api

import (
	"cmp"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/the-deep/deeptree/internal/codec"
	"github.com/the-deep/deeptree/internal/search"
	"github.com/the-deep/deeptree/internal/store"
	"github.com/the-deep/deeptree/internal/tree"
)

type createTreeRequest struct {
	Title    string     `json:"title" validate:"max=200"`
	Source   string     `json:"source" validate:"max=200"`
	Template string     `json:"template" validate:"required_without=Root"`
	Root     *tree.Node `json:"root" validate:"required_without=Template"`
}

func (s *Server) handleCreateTree(w http.ResponseWriter, r *http.Request) {
	var req createTreeRequest
	if !s.decode(w, r, &req) {
		return
	}

	root := codec.FillKeys(req.Root)
	title := req.Title
	source := req.Source
	if req.Template != "" {
		if s.catalog == nil {
			jsonError(w, "catalog not configured", http.StatusNotFound)
			return
		}
		tpl, err := s.catalog.Get(req.Template)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		root = tpl.Root
		title = cmp.Or(title, tpl.Title)
		source = cmp.Or(source, "catalog:"+tpl.Name)
	}

	var doc *store.Document
	err := s.ops.Time("create", func() error {
		var err error
		doc, err = s.store.Create(r.Context(), store.Document{
			Title:  cmp.Or(title, root.Label),
			Source: source,
			Root:   root,
		})
		return err
	})
	s.metrics.observeOp("create", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setVersion(w, doc.Version)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListTrees(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trees": list})
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.load(w, r)
	if !ok {
		return
	}
	setVersion(w, doc.Version)
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "treeID")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	doc, ok := s.load(w, r)
	if !ok {
		return
	}

	var opts []tree.Option
	s.ops.Time("flatten", func() error {
		opts = tree.Options(tree.Forest{doc.Root})
		return nil
	})
	for i := range opts {
		opts[i].Label = tree.DisplayLabel(opts[i].Label)
	}
	if q != "" {
		opts = search.Rank(q, opts)
	}
	total := len(opts)
	if limit > 0 && total > limit {
		opts = opts[:limit]
	}
	setVersion(w, doc.Version)
	writeJSON(w, http.StatusOK, map[string]any{"options": opts, "total": total})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.load(w, r)
	if !ok {
		return
	}
	f := tree.Forest{doc.Root}
	setVersion(w, doc.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"selected": tree.SelectedKeys(f),
		"states":   tree.States(f),
	})
}

type selectionRequest struct {
	Keys    []string `json:"keys" validate:"required,dive,required"`
	Version int64    `json:"version" validate:"min=0"`
}

func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mutate(w, r, "apply_selection", req.Version, func(root *tree.Node) (*tree.Node, error) {
		return tree.ApplySelection(tree.Forest{root}, req.Keys)[0], nil
	})
}

type toggleRequest struct {
	Key      string `json:"key" validate:"required"`
	Selected bool   `json:"selected"`
	Version  int64  `json:"version" validate:"min=0"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mutate(w, r, "toggle", req.Version, func(root *tree.Node) (*tree.Node, error) {
		f, err := tree.Toggle(tree.Forest{root}, req.Key, req.Selected)
		if err != nil {
			return nil, err
		}
		return f[0], nil
	})
}

// load fetches the document named in the URL, writing the error response when
// it fails.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*store.Document, bool) {
	doc, err := s.store.Get(r.Context(), chi.URLParam(r, "treeID"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return doc, true
}

// mutate applies fn to the document named in the URL and writes the result.
// The expected version comes from the request body or an If-Match header.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op string, version int64, fn store.UpdateFunc) {
	doc, err := s.update(r, op, version, fn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}
	setVersion(w, doc.Version)
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) update(r *http.Request, op string, version int64, fn store.UpdateFunc) (*store.Document, error) {
	if version == 0 {
		v, err := ifMatch(r)
		if err != nil {
			return nil, err
		}
		version = v
	}
	var doc *store.Document
	err := s.ops.Time(op, func() error {
		var err error
		doc, err = s.store.Update(r.Context(), chi.URLParam(r, "treeID"), version, fn)
		return err
	})
	s.metrics.observeOp(op, err)
	return doc, err
}

// ifMatch reads a version from an If-Match header such as `"3"` or `W/"3"`.
func ifMatch(r *http.Request) (int64, error) {
	h := strings.TrimSpace(r.Header.Get("If-Match"))
	if h == "" || h == "*" {
		return 0, nil
	}
	h = strings.Trim(strings.TrimPrefix(h, "W/"), `"`)
	v, err := strconv.ParseInt(h, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: bad If-Match %q", tree.ErrInvalidArgument, h)
	}
	return v, nil
}

func setVersion(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}
