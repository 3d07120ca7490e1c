package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/timer"
)

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// timerView is one pending scheduler entry.
type timerView struct {
	Key    int64     `json:"key"`
	Tag    string    `json:"tag"`
	Expiry time.Time `json:"expiry"`
}

func (s *Server) handleTimers(w http.ResponseWriter, _ *http.Request) {
	var pending []timer.Entry
	if s.timers != nil {
		pending = s.timers.Pending()
	}
	out := make([]timerView, 0, len(pending))
	for _, e := range pending {
		out = append(out, timerView{Key: e.Key, Tag: e.Tag, Expiry: e.Expiry})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"timers": out,
		"count":  len(out),
	})
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	if s.reboot == nil {
		writeError(w, http.StatusConflict, ErrCodeUnsupported, "reboot is not available")
		return
	}
	s.logger.Warn("reboot requested", "remote", r.RemoteAddr)
	s.reboot.Request("api")
	writeJSON(w, http.StatusAccepted, map[string]any{"rebooting": true})
}
