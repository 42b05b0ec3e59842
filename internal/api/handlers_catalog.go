package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/the-deep/deeptree/internal/catalog"
)

func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	templates := []catalog.Template{}
	if s.catalog != nil {
		templates = s.catalog.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, "catalog not configured", http.StatusNotFound)
		return
	}
	tpl, err := s.catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}
