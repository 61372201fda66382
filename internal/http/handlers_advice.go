package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"financas/internal/advisor"
	applog "financas/internal/log"
	"financas/internal/middleware/trace"
)

const opAdvise = "advise"

type adviceRequest struct {
	Question string `json:"question"`
}

// handleAdvice streams the generated answer as chunked plain text. Each
// fragment is flushed as soon as it arrives; a client disconnect cancels
// the generation.
func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if s.advisor == nil {
		s.adviceUnavailable(w, r, advisor.ErrMissingCredential)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.adviceTimeout)
	defer cancel()

	stream, err := s.advisor.Advise(ctx, s.ledger.Snapshot(), req.Question)
	if err != nil {
		if isValidation(err) {
			writeError(w, r, err)
			return
		}
		s.adviceUnavailable(w, r, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	for chunk, err := range stream {
		if err != nil {
			if r.Context().Err() != nil {
				slog.DebugContext(r.Context(), "Client went away during advice stream")
				return
			}
			if !started {
				s.adviceUnavailable(w, r, err)
				return
			}
			// headers are gone, end the body with the user message
			s.logs.LogError(r.Context(), "Advice stream failed", err, applog.ComponentAdvisor, opAdvise, requestFields(r))
			_, _ = w.Write([]byte("\n\n" + advisor.ErrUnavailable.Error()))
			return
		}
		if chunk == "" {
			continue
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			slog.DebugContext(r.Context(), "Advice write failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if !started {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

// adviceUnavailable logs the cause and answers with the generic retryable
// message.
func (s *Server) adviceUnavailable(w http.ResponseWriter, r *http.Request, cause error) {
	if errors.Is(cause, advisor.ErrMissingCredential) {
		slog.WarnContext(r.Context(), "Advice requested without credential",
			applog.FieldComponent, applog.ComponentAdvisor,
			applog.FieldRequestID, trace.GetRequestID(r.Context()))
	} else {
		s.logs.LogError(r.Context(), "Advice request failed", cause, applog.ComponentAdvisor, opAdvise, requestFields(r))
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: advisor.ErrUnavailable.Error()})
}

func requestFields(r *http.Request) applog.LogFields {
	return applog.NewFields().WithRequestID(trace.GetRequestID(r.Context()))
}
