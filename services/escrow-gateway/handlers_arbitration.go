package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustescrow/native/arbitration"
)

type agentRegisterRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type evidenceRequest struct {
	Submitter string `json:"submitter"`
	Digest    string `json:"digest"`
	URI       string `json:"uri,omitempty"`
}

type analyzeRequest struct {
	Decision   string `json:"decision"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning,omitempty"`
	Ratio      *int   `json:"ratio,omitempty"`
}

type appealRequest struct {
	Caller string `json:"caller"`
}

type voteRequest struct {
	Choice string `json:"choice"`
}

type finalizeRequest struct {
	QuorumReached bool   `json:"quorumReached"`
	Reason        string `json:"reason,omitempty"`
}

func (s *Server) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	var req agentRegisterRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := s.caller(r, "address", req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.settlement.RegisterAgent(r.Context(), addr, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, formatProfile(profile))
}

func (s *Server) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.settlement.Profile(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatProfile(profile))
}

func (s *Server) handleCaseGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.settlement.Case(r.Context(), id)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req evidenceRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	submitter, err := s.caller(r, "submitter", req.Submitter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	digest, err := parseOptionalID("digest", req.Digest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.settlement.SubmitEvidence(r.Context(), id, submitter, digest, req.URI)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseReview(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.settlement.BeginReview(r.Context(), id)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseAnalyze(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req analyzeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	decision, err := arbitration.ParseDecision(req.Decision)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	confidence, err := parseConfidence(req.Confidence)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := arbitration.VerdictInput{Decision: decision, Confidence: confidence, Reasoning: req.Reasoning}
	if req.Ratio != nil {
		if *req.Ratio < 0 || *req.Ratio > 100 {
			s.writeError(w, r, arbitration.ErrInvalidVerdict)
			return
		}
		ratio := uint8(*req.Ratio)
		in.Ratio = &ratio
	}
	c, err := s.settlement.Analyze(r.Context(), id, in)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseAccept(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.settlement.AcceptVerdict(r.Context(), id)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseAppeal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req appealRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.settlement.Appeal(r.Context(), id, caller)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseVote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req voteRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	choice, err := arbitration.ParseDecision(req.Choice)
	if err != nil || !choice.Votable() {
		s.writeError(w, r, arbitration.ErrInvalidVote)
		return
	}
	c, err := s.settlement.CastVote(r.Context(), id, choice)
	s.writeCase(w, r, c, err)
}

func (s *Server) handleCaseFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req finalizeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.settlement.FinalizeVote(r.Context(), id, arbitration.QuorumSignal{Reached: req.QuorumReached, Reason: req.Reason})
	s.writeCase(w, r, c, err)
}

func (s *Server) writeCase(w http.ResponseWriter, r *http.Request, c *arbitration.Case, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatCase(c))
}
