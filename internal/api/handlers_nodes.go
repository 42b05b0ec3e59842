package api

import (
	"cmp"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/the-deep/deeptree/internal/tree"
)

type addNodeRequest struct {
	ParentKey string `json:"parent_key" validate:"required"`
	Key       string `json:"key" validate:"max=200"`
	Label     string `json:"label" validate:"max=500"`
	Tooltip   string `json:"tooltip" validate:"max=2000"`
	Version   int64  `json:"version" validate:"min=0"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	child := &tree.Node{
		Key:     cmp.Or(req.Key, tree.NewKey()),
		Label:   req.Label,
		Tooltip: req.Tooltip,
	}
	doc, err := s.update(r, "add_child", req.Version, func(root *tree.Node) (*tree.Node, error) {
		return tree.AddChild(root, req.ParentKey, child)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setVersion(w, doc.Version)
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     child.Key,
		"version": doc.Version,
	})
}

type patchNodeRequest struct {
	Label   *string `json:"label" validate:"required_without=Tooltip"`
	Tooltip *string `json:"tooltip"`
	Version int64   `json:"version" validate:"min=0"`
}

func (s *Server) handlePatchNode(w http.ResponseWriter, r *http.Request) {
	var req patchNodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")
	s.mutate(w, r, "edit_node", req.Version, func(root *tree.Node) (*tree.Node, error) {
		var err error
		if req.Label != nil {
			if root, err = tree.RenameNode(root, key, *req.Label); err != nil {
				return nil, err
			}
		}
		if req.Tooltip != nil {
			if root, err = tree.SetTooltip(root, key, *req.Tooltip); err != nil {
				return nil, err
			}
		}
		return root, nil
	})
}

// handleRemoveNode removes the child at index of parent_key. An empty
// parent_key with index 0 removes the root, which deletes the document.
func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	parentKey := r.URL.Query().Get("parent_key")
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		jsonError(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	s.mutate(w, r, "remove_node", 0, func(root *tree.Node) (*tree.Node, error) {
		return tree.RemoveNode(root, parentKey, index)
	})
}

type reorderRequest struct {
	ParentKey string `json:"parent_key" validate:"required"`
	From      int    `json:"from" validate:"min=0"`
	To        int    `json:"to" validate:"min=0"`
	Version   int64  `json:"version" validate:"min=0"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.mutate(w, r, "move_child", req.Version, func(root *tree.Node) (*tree.Node, error) {
		return tree.MoveChild(root, req.ParentKey, req.From, req.To)
	})
}
