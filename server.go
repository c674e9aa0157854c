package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"i4.energy/across/serialterm/format"
	"i4.energy/across/serialterm/link"
	"i4.energy/across/serialterm/logbook"
)

// Server handles incoming HTTP requests for interacting with the
// terminal's serial link
type Server struct {
	Logger   *slog.Logger
	Terminal *Terminal
	// Metrics serves /metrics when set
	Metrics http.Handler
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", s.handleSend)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /log", s.handleLog)
	mux.HandleFunc("GET /history", s.handleHistory)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	s.sendJSON(w, resp, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to encode response", "error", err)
	}
}

// handleSend writes a payload to the device
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	type SendRequest struct {
		Data   string `json:"data"`
		Format string `json:"format"`
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Data == "" {
		s.sendError(w, "'data' field is required", http.StatusBadRequest)
		return
	}

	f := s.Terminal.TxFormat()
	if req.Format != "" {
		var err error
		if f, err = ParsePayloadFormat(req.Format); err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	data, err := s.Terminal.Send(r.Context(), req.Data, f)
	switch {
	case errors.Is(err, link.ErrNotConnected):
		s.sendError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, link.ErrTransportWrite):
		s.Logger.Error("Failed to send payload", "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.Logger.Info("Payload sent", "bytes", len(data), "format", string(f))

	type SendResponse struct {
		Bytes int    `json:"bytes"`
		Hex   string `json:"hex"`
	}
	s.sendJSON(w, SendResponse{Bytes: len(data), Hex: format.Hex(data, " ")}, http.StatusOK)
}

// handleStatus reports the link state and the log counters
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		State   string       `json:"state"`
		Error   string       `json:"error,omitempty"`
		Warning string       `json:"warning,omitempty"`
		Device  *link.Device `json:"device,omitempty"`
		Reading bool         `json:"reading"`
		RxChars int          `json:"rx_chars"`
		TxBytes int          `json:"tx_bytes"`
	}

	st := s.Terminal.Session.Status()
	rx, tx := s.Terminal.Log.Counters()
	s.sendJSON(w, StatusResponse{
		State:   st.State.String(),
		Error:   st.Err,
		Warning: st.Warning,
		Device:  st.Device,
		Reading: st.Reading,
		RxChars: rx,
		TxBytes: tx,
	}, http.StatusOK)
}

// handleLog returns the committed log entries, oldest first
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	entries := s.Terminal.Log.Entries()
	if entries == nil {
		entries = []logbook.Entry{}
	}
	s.sendJSON(w, entries, http.StatusOK)
}

// handleHistory returns the send history, most recent first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Terminal.History.List(), http.StatusOK)
}
