package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// The event stream never takes the command lock.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Use(s.commandLockMiddleware)

			r.Get("/status", s.handleStatus)
			r.Get("/timers", s.handleTimers)
			r.Post("/reboot", s.handleReboot)

			r.Route("/instances/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetInstance)
				r.Post("/enable", s.handleEnable)
				r.Post("/disable", s.handleDisable)
				r.Post("/enable_in", s.handleEnableIn)
				r.Post("/disable_in", s.handleDisableIn)
				r.Put("/rule", s.handleSetRule)
				r.Post("/reset_rule", s.handleResetRule)
				r.Post("/increment_rule", s.handleIncrementRule)
				r.Post("/turn_on", s.handleTurnOn)
				r.Post("/turn_off", s.handleTurnOff)
				r.Post("/trigger", s.handleTrigger)
				r.Get("/condition", s.handleCondition)
				r.Get("/history", s.handleHistory)

				r.Get("/schedule", s.handleGetSchedule)
				r.Put("/schedule/{time}", s.handleAddScheduleRule)
				r.Delete("/schedule/{time}", s.handleRemoveScheduleRule)
			})

			r.Route("/keywords", func(r chi.Router) {
				r.Get("/", s.handleListKeywords)
				r.Put("/{keyword}", s.handleAddKeyword)
				r.Delete("/{keyword}", s.handleRemoveKeyword)
			})

			r.Post("/schedules/save", s.handleSaveSchedules)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
