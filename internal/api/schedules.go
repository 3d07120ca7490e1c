package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// pathParam returns an unescaped chi URL parameter. Keyword names may
// contain spaces.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	schedule, err := s.engine.Schedule(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instance": name,
		"schedule": schedule,
	})
}

func (s *Server) handleAddScheduleRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AddScheduleRule(name, pathParam(r, "time"), req.Rule); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleRemoveScheduleRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveScheduleRule(chi.URLParam(r, "name"), pathParam(r, "time")); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleGetSchedule(w, r)
}

func (s *Server) handleListKeywords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"keywords": s.engine.Keywords(),
		"names":    s.engine.KeywordNames(),
	})
}

func (s *Server) handleAddKeyword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time string `json:"time"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AddKeyword(pathParam(r, "keyword"), req.Time); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleListKeywords(w, r)
}

func (s *Server) handleRemoveKeyword(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveKeyword(pathParam(r, "keyword")); err != nil {
		writeDomainError(w, err)
		return
	}
	s.handleListKeywords(w, r)
}

func (s *Server) handleSaveSchedules(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SaveSchedules(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}
