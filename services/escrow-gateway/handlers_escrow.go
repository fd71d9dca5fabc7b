package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustescrow/core"
	"trustescrow/native/escrow"
)

type depositRequest struct {
	Amount string `json:"amount"`
}

type escrowCreateRequest struct {
	ID       string `json:"id,omitempty"`
	Payer    string `json:"payer"`
	Payee    string `json:"payee"`
	Arbiter  string `json:"arbiter"`
	Amount   string `json:"amount"`
	Deadline int64  `json:"deadline"`
	Meta     string `json:"meta,omitempty"`
}

type escrowActorRequest struct {
	Caller string `json:"caller"`
}

type escrowPartialRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type escrowDisputeRequest struct {
	Caller string `json:"caller"`
	Reason string `json:"reason,omitempty"`
}

type escrowResolveRequest struct {
	Caller string `json:"caller"`
	Ratio  *int   `json:"ratio"`
}

type escrowDelegateRequest struct {
	Caller   string `json:"caller"`
	Delegate string `json:"delegate"`
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acc, err := s.settlement.Account(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatAccount(acc))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acc, err := s.settlement.Deposit(r.Context(), addr, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatAccount(acc))
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request) {
	var req escrowCreateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	params, err := s.createParams(r, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	esc, err := s.settlement.CreateEscrow(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, formatEscrow(esc))
}

func (s *Server) createParams(r *http.Request, req escrowCreateRequest) (core.CreateEscrowParams, error) {
	var (
		p   core.CreateEscrowParams
		err error
	)
	if p.ID, err = parseOptionalID("id", req.ID); err != nil {
		return p, err
	}
	if p.Payer, err = s.caller(r, "payer", req.Payer); err != nil {
		return p, err
	}
	if p.Payee, err = parseAddress("payee", req.Payee); err != nil {
		return p, err
	}
	if p.Arbiter, err = parseAddress("arbiter", req.Arbiter); err != nil {
		return p, err
	}
	if p.Amount, err = parseAmount("amount", req.Amount); err != nil {
		return p, err
	}
	if req.Deadline <= 0 {
		return p, invalidf("deadline is required")
	}
	p.Deadline = req.Deadline
	if p.MetaHash, err = parseOptionalID("meta", req.Meta); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	esc, err := s.settlement.Escrow(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func (s *Server) handleEscrowRelease(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := s.escrowActor(w, r)
	if !ok {
		return
	}
	esc, err := s.settlement.Release(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func (s *Server) handleEscrowRefund(w http.ResponseWriter, r *http.Request) {
	id, caller, ok := s.escrowActor(w, r)
	if !ok {
		return
	}
	esc, err := s.settlement.Refund(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

// escrowActor parses the path id and a body carrying only the caller.
func (s *Server) escrowActor(w http.ResponseWriter, r *http.Request) ([32]byte, [20]byte, bool) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return id, [20]byte{}, false
	}
	var req escrowActorRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return id, [20]byte{}, false
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return id, caller, false
	}
	return id, caller, true
}

func (s *Server) handleEscrowPartialRelease(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req escrowPartialRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	esc, err := s.settlement.ReleasePartial(r.Context(), id, caller, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func (s *Server) handleEscrowDispute(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req escrowDisputeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	esc, err := s.settlement.RaiseDispute(r.Context(), id, caller, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func (s *Server) handleEscrowResolve(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req escrowResolveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ratio, err := parseRatio(req.Ratio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	esc, err := s.settlement.ResolveDispute(r.Context(), id, caller, ratio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}

func (s *Server) handleEscrowDelegate(w http.ResponseWriter, r *http.Request) {
	s.delegation(w, r, s.settlement.Delegate)
}

func (s *Server) handleEscrowRevoke(w http.ResponseWriter, r *http.Request) {
	s.delegation(w, r, s.settlement.RevokeDelegate)
}

func (s *Server) delegation(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id [32]byte, caller, delegate [20]byte) (*escrow.Escrow, error)) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req escrowDelegateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	delegate, err := parseAddress("delegate", req.Delegate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	esc, err := apply(r.Context(), id, caller, delegate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatEscrow(esc))
}
