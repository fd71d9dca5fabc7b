package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustescrow/native/chain"
)

type chainLinkRequest struct {
	Parent       string `json:"parent"`
	Child        string `json:"child"`
	Type         string `json:"type,omitempty"`
	ThresholdBps uint32 `json:"thresholdBps,omitempty"`
}

type chainMilestoneRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleChainLink(w http.ResponseWriter, r *http.Request) {
	var req chainLinkRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	parent, err := parseID("parent", req.Parent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	child, err := parseID("child", req.Child)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	depType, err := chain.ParseDependencyType(req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	edge, err := s.settlement.Link(r.Context(), parent, child, depType, req.ThresholdBps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, formatEdge(*edge))
}

func (s *Server) handleChainGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	node, err := s.settlement.ChainNode(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ancestors, err := s.settlement.Ancestors(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	descendants, err := s.settlement.Descendants(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := chainJSON{
		ID:          formatID(id),
		Parents:     make([]edgeJSON, 0, len(node.Parents)),
		Children:    formatIDs(node.Children),
		Ancestors:   formatIDs(ancestors),
		Descendants: formatIDs(descendants),
	}
	for _, edge := range node.Parents {
		out.Parents = append(out.Parents, formatEdge(edge))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChainCanRelease(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok, err := s.settlement.CanRelease(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canRelease": ok})
}

func (s *Server) handleChainMilestone(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req chainMilestoneRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller, err := s.caller(r, "caller", req.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.settlement.MarkMilestone(r.Context(), id, caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": formatID(id), "milestone": true})
}

func (s *Server) handleChainRemove(w http.ResponseWriter, r *http.Request) {
	id, err := parseID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	removed, err := s.settlement.RemoveChain(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"root": formatID(id), "removed": removed})
}
