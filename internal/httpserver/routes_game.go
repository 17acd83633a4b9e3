// internal/httpserver/routes_game.go
//
// Game endpoints. Every route except /game/new runs behind withSession, so
// handlers find their *store.Session in the request context.
//
// Endpoints:
//   POST   /game/new     start a session (replacing the caller's old one)
//   GET    /game/state   current snapshot
//   POST   /game/intent  {type, difficulty?, answer?} -> snapshot after the intent
//   DELETE /game         stop the engine and forget the session

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/riddlerush/internal/game"
	"github.com/robalobadob/riddlerush/internal/metrics"
	"github.com/robalobadob/riddlerush/internal/store"
)

type newGameRes struct {
	SessionID string         `json:"sessionId"`
	Token     string         `json:"token"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
	State     game.GameState `json:"state"`
}

// stateRes is returned by every endpoint that reports game state. Ignored is
// set when the intent did not apply in the current stage; the state is then
// unchanged.
type stateRes struct {
	State   game.GameState `json:"state"`
	Ignored bool           `json:"ignored,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// handleNewGame creates a session with a fresh engine and hands out its token.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	// one game per client: drop the session an existing token points at
	if id, err := s.sessionID(r); err == nil {
		if err := s.deps.Store.Delete(r.Context(), id); err == nil {
			hlog.FromRequest(r).Debug().Str("session", id).Msg("replaced session")
		}
	}

	sess := store.NewSession(s.deps.NewEngine)
	if err := s.deps.Store.Save(r.Context(), sess); err != nil {
		sess.Stop()
		hlog.FromRequest(r).Error().Err(err).Msg("save session")
		writeJSONError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	metrics.Sessions.Set(float64(s.deps.Store.Len()))

	tok, exp, err := s.signToken(sess.ID)
	if err != nil {
		_ = s.deps.Store.Delete(r.Context(), sess.ID)
		hlog.FromRequest(r).Error().Err(err).Msg("sign session token")
		writeJSONError(w, http.StatusInternalServerError, "sign_failed")
		return
	}
	s.setSessionCookie(w, tok, exp)

	hlog.FromRequest(r).Info().Str("session", sess.ID).Msg("game session started")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(newGameRes{
		SessionID: sess.ID,
		Token:     tok,
		CreatedAt: sess.CreatedAt.UTC(),
		ExpiresAt: exp.UTC(),
		State:     sess.Engine.Snapshot().Redacted(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	_ = json.NewEncoder(w).Encode(stateRes{State: sess.Engine.Snapshot().Redacted()})
}

// handleIntent dispatches one intent. Intents the current stage does not
// accept are reported as ignored with 200, not as an error: a double click
// on "Next" is not a client bug.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var in game.Intent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if in.Kind == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_type")
		return
	}

	sess := sessionFrom(r.Context())
	st, err := sess.Engine.Dispatch(r.Context(), in)
	res, status := intentResult(st, err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Warn().Err(err).Str("session", sess.ID).Msg("dispatch failed")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// intentResult maps a Dispatch outcome to a response body and status.
func intentResult(st game.GameState, err error) (stateRes, int) {
	st = st.Redacted()
	switch {
	case err == nil:
		return stateRes{State: st}, http.StatusOK
	case errors.Is(err, game.ErrInvalidTransition):
		return stateRes{State: st, Ignored: true, Reason: err.Error()}, http.StatusOK
	case errors.Is(err, game.ErrStopped):
		return stateRes{State: st, Reason: "session_ended"}, http.StatusGone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return stateRes{State: st, Reason: "timeout"}, http.StatusServiceUnavailable
	default:
		return stateRes{State: st, Reason: err.Error()}, http.StatusInternalServerError
	}
}

// handleEndGame stops the session's engine and clears the cookie.
func (s *Server) handleEndGame(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if err := s.deps.Store.Delete(r.Context(), sess.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	metrics.Sessions.Set(float64(s.deps.Store.Len()))
	s.clearSessionCookie(w)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
