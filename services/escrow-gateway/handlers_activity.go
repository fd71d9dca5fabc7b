package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"trustescrow/services/activitylog"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsSubscriberSize = 128
)

func (s *Server) activityFilter(r *http.Request) (activitylog.Filter, error) {
	q := r.URL.Query()
	f := activitylog.Filter{
		Module:  strings.TrimSpace(q.Get("module")),
		Type:    strings.TrimSpace(q.Get("type")),
		Subject: strings.TrimSpace(q.Get("subject")),
	}
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			return f, invalidf("after must be a non-negative integer")
		}
		f.After = after
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return f, invalidf("limit must be a positive integer")
		}
		f.Limit = limit
	}
	return f, nil
}

func (s *Server) handleActivityList(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "activity store not configured")
		return
	}
	f, err := s.activityFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.activity.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []activitylog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleActivityVerify(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "activity store not configured")
		return
	}
	err := s.activity.Verify(r.Context())
	switch {
	case errors.Is(err, activitylog.ErrChainBroken):
		writeProblem(w, http.StatusConflict, "ChainBroken", err.Error())
	case err != nil:
		s.writeError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"intact": true})
	}
}

// handleActivityWS streams stored entries matching the query filter. Entries
// after the "after" cursor are replayed first, then live entries follow.
func (s *Server) handleActivityWS(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "activity store not configured")
		return
	}
	f, err := s.activityFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(s.cors.AllowedOrigins)})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Clients only listen; reading in the background handles pings and close
	// frames.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamActivity(ctx, conn, f); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
			s.logger.Debug("activity stream ended", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamActivity(ctx context.Context, conn *websocket.Conn, f activitylog.Filter) error {
	// Subscribe before reading the backlog so nothing committed in between is
	// missed; duplicates are dropped by sequence.
	updates, cancel := s.activity.Hub().Subscribe(wsSubscriberSize)
	defer cancel()

	cursor := f.After
	for {
		backlog, err := s.activity.List(ctx, activitylog.Filter{
			Module:  f.Module,
			Type:    f.Type,
			Subject: f.Subject,
			After:   cursor,
		})
		if err != nil {
			return err
		}
		for _, entry := range backlog {
			if err := writeActivity(ctx, conn, entry); err != nil {
				return err
			}
			cursor = entry.Sequence
		}
		if len(backlog) == 0 {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return nil
			}
			if entry.Sequence <= cursor || !matches(f, entry) {
				continue
			}
			if err := writeActivity(ctx, conn, entry); err != nil {
				return err
			}
			cursor = entry.Sequence
		}
	}
}

// originPatterns converts CORS origins into the host patterns the websocket
// handshake checks. No configured origins allows any.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		out = append(out, strings.TrimSuffix(host, "/"))
	}
	return out
}

func matches(f activitylog.Filter, entry activitylog.Entry) bool {
	if f.Module != "" && f.Module != entry.Module {
		return false
	}
	if f.Type != "" && f.Type != entry.Type {
		return false
	}
	if f.Subject != "" && !strings.EqualFold(f.Subject, entry.Subject) {
		return false
	}
	return true
}

func writeActivity(ctx context.Context, conn *websocket.Conn, entry activitylog.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
