package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// member resolves {name} or writes a 404.
func (s *Server) member(w http.ResponseWriter, r *http.Request) (instance.Member, bool) {
	m, err := s.engine.Find(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return m, true
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeAttributes(w http.ResponseWriter, m instance.Member) {
	writeJSON(w, http.StatusOK, m.Attributes())
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	if m, ok := s.member(w, r); ok {
		s.writeAttributes(w, m)
	}
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	m.Enable()
	s.writeAttributes(w, m)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	m.Disable()
	s.writeAttributes(w, m)
}

// delayRequest is the body of enable_in and disable_in.
type delayRequest struct {
	Minutes *float64 `json:"minutes"`
}

// maxDelayMinutes is the longest delay a time.Duration can hold.
const maxDelayMinutes = float64(math.MaxInt64) / float64(time.Minute)

func (d delayRequest) duration() (time.Duration, error) {
	if d.Minutes == nil {
		return 0, fmt.Errorf("minutes is required")
	}
	if *d.Minutes < 0 {
		return 0, fmt.Errorf("minutes must not be negative")
	}
	if *d.Minutes >= maxDelayMinutes {
		return 0, fmt.Errorf("minutes must be below %.0f", maxDelayMinutes)
	}
	return time.Duration(*d.Minutes * float64(time.Minute)), nil
}

func (s *Server) handleEnableIn(w http.ResponseWriter, r *http.Request) {
	s.handleDelayed(w, r, instance.Member.EnableIn)
}

func (s *Server) handleDisableIn(w http.ResponseWriter, r *http.Request) {
	s.handleDelayed(w, r, instance.Member.DisableIn)
}

func (s *Server) handleDelayed(w http.ResponseWriter, r *http.Request, fn func(instance.Member, time.Duration)) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	var req delayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := req.duration()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	fn(m, d)
	writeJSON(w, http.StatusAccepted, map[string]any{"instance": m.Name(), "delay_seconds": d.Seconds()})
}

// ruleRequest is the body of PUT .../rule and the schedule endpoints.
type ruleRequest struct {
	Rule any `json:"rule"`
}

func (s *Server) handleSetRule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := m.SetRule(req.Rule, false); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeAttributes(w, m)
}

func (s *Server) handleResetRule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	if err := m.ResetRule(); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeAttributes(w, m)
}

// device narrows a member to a device or writes a 409.
func device(w http.ResponseWriter, m instance.Member, op string) (*instance.Device, bool) {
	d, ok := m.(*instance.Device)
	if !ok {
		writeDomainError(w, fmt.Errorf("%w: %s is not a device and has no %s", instance.ErrNotSupported, m.Name(), op))
	}
	return d, ok
}

// sensor narrows a member to a sensor or writes a 409.
func sensor(w http.ResponseWriter, m instance.Member, op string) (*instance.Sensor, bool) {
	sn, ok := m.(*instance.Sensor)
	if !ok {
		writeDomainError(w, fmt.Errorf("%w: %s is not a sensor and has no %s", instance.ErrNotSupported, m.Name(), op))
	}
	return sn, ok
}

func (s *Server) handleIncrementRule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	d, ok := device(w, m, "increment_rule")
	if !ok {
		return
	}
	var req struct {
		Delta *float64 `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Delta == nil {
		writeBadRequest(w, "delta is required")
		return
	}
	if err := d.IncrementRule(*req.Delta); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeAttributes(w, d)
}

func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	s.handleSend(w, r, true)
}

func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	s.handleSend(w, r, false)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, on bool) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	op := "turn_off"
	if on {
		op = "turn_on"
	}
	d, ok := device(w, m, op)
	if !ok {
		return
	}
	if err := d.Send(on); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeAttributes(w, d)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	sn, ok := sensor(w, m, "trigger")
	if !ok {
		return
	}
	if err := sn.Trigger(); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeAttributes(w, sn)
}

func (s *Server) handleCondition(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	sn, ok := sensor(w, m, "condition")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instance":  sn.Name(),
		"condition": sn.ConditionMet(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	m, ok := s.member(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeDomainError(w, fmt.Errorf("%w: rule history is not recorded", instance.ErrNotSupported))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.history.GetHistory(r.Context(), m.Name(), limit)
	if err != nil {
		s.logger.Error("reading rule history", "instance", m.Name(), "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instance": m.Name(),
		"history":  entries,
		"count":    len(entries),
	})
}
