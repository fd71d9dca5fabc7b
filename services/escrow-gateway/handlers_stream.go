package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustescrow/core"
	"trustescrow/core/events"
	"trustescrow/native/stream"
)

type streamCreateRequest struct {
	ID            string `json:"id,omitempty"`
	Sender        string `json:"sender"`
	Receiver      string `json:"receiver"`
	RatePerSecond string `json:"ratePerSecond"`
	Budget        string `json:"budget"`
}

type streamCancelRequest struct {
	Caller string `json:"caller"`
}

type streamStateResponse struct {
	Stream   streamJSON   `json:"stream"`
	Snapshot snapshotJSON `json:"snapshot"`
}

type streamPayoutResponse struct {
	Amount string     `json:"amount"`
	Stream streamJSON `json:"stream"`
}

func (s *Server) handleStreamCreate(w http.ResponseWriter, r *http.Request) {
	var req streamCreateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var (
		p   core.StartStreamParams
		err error
	)
	if p.ID, err = parseOptionalID("id", req.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Sender, err = s.caller(r, "sender", req.Sender); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Receiver, err = parseAddress("receiver", req.Receiver); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.RatePerSecond, err = stream.ParseRate(req.RatePerSecond); err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.Budget, err = parseAmount("budget", req.Budget); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.settlement.StartStream(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, formatStream(st))
}

func (s *Server) handleStreamGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.settlement.StreamStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.settlement.Stream(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streamStateResponse{Stream: formatStream(st), Snapshot: formatSnapshot(snap)})
}

func (s *Server) handleStreamWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	paid, st, err := s.settlement.Withdraw(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streamPayoutResponse{Amount: events.FormatAmount(paid), Stream: formatStream(st)})
}

func (s *Server) handleStreamCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req streamCancelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	refunded, st, err := s.settlement.CancelStream(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streamPayoutResponse{Amount: events.FormatAmount(refunded), Stream: formatStream(st)})
}
