package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/robalobadob/riddlerush/internal/config"
	"github.com/robalobadob/riddlerush/internal/game"
	"github.com/robalobadob/riddlerush/internal/riddles"
	"github.com/robalobadob/riddlerush/internal/store"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	cfg := &config.Config{
		Port:          "0",
		ClientOrigin:  "http://localhost:5173",
		SessionSecret: testSecret,
		SessionTTL:    time.Hour,
		SessionIdle:   time.Hour,
		TotalRounds:   2,
		RoundSeconds:  60,
	}
	catalog := riddles.NewCatalog([]riddles.Entry{
		{Difficulty: game.Easy, Riddle: game.Riddle{Text: "I speak without a mouth and hear without ears.", Answer: "echo"}},
	})
	st := store.NewMemoryStore()
	s := New(cfg, Deps{
		Store: st,
		NewEngine: func(string) *game.Engine {
			return game.New(&riddles.CatalogProvider{Catalog: catalog}, riddles.Hinter{}, riddles.Checker{},
				game.WithConfig(game.Config{TotalRounds: cfg.TotalRounds, RoundSeconds: cfg.RoundSeconds}),
				game.WithLogger(zerolog.Nop()))
		},
		RiddleStats: catalog.Stats,
	})
	t.Cleanup(func() {
		_ = st.Close(context.Background())
	})
	return s, st
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func newGame(t *testing.T, h http.Handler) newGameRes {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/game/new", "", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /game/new = %d %s", rec.Code, rec.Body.String())
	}
	return decode[newGameRes](t, rec)
}

func intent(t *testing.T, h http.Handler, token, body string) stateRes {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/game/intent", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /game/intent %s = %d %s", body, rec.Code, rec.Body.String())
	}
	return decode[stateRes](t, rec)
}

// pollState reads /game/state until ok accepts it.
func pollState(t *testing.T, h http.Handler, token string, ok func(game.GameState) bool) game.GameState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := do(t, h, http.MethodGet, "/game/state", token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET /game/state = %d %s", rec.Code, rec.Body.String())
		}
		st := decode[stateRes](t, rec).State
		if ok(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never matched, last = %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDiagnostics(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	if rec := do(t, h, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Errorf("/health = %d %s", rec.Code, rec.Body.String())
	}
	rec := do(t, h, http.MethodGet, "/nope", "", "")
	if rec.Code != http.StatusNotFound || decode[map[string]string](t, rec)["error"] != "not_found" {
		t.Errorf("/nope = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/debug/riddles", "", "")
	if got := decode[map[string]int](t, rec); got["Easy"] != 1 {
		t.Errorf("/debug/riddles = %v", got)
	}
	rec = do(t, h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "riddle_http_requests_total") {
		t.Errorf("/metrics missing request counter")
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodOptions, "/game/intent", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestFullRoundOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	g := newGame(t, h)
	if g.SessionID == "" || g.Token == "" {
		t.Fatalf("new game = %+v", g)
	}
	if g.CreatedAt.IsZero() || !g.ExpiresAt.After(g.CreatedAt) {
		t.Errorf("session times: created %v expires %v", g.CreatedAt, g.ExpiresAt)
	}
	if g.State.Stage != game.StageStart || g.State.TotalRounds != 2 {
		t.Fatalf("initial state = %+v", g.State)
	}

	res := intent(t, h, g.Token, `{"type":"start_game"}`)
	if res.Ignored || res.State.Stage != game.StageDifficultySelect {
		t.Fatalf("start_game = %+v", res)
	}

	res = intent(t, h, g.Token, `{"type":"next_round"}`)
	if !res.Ignored || res.Reason == "" || res.State.Stage != game.StageDifficultySelect {
		t.Fatalf("next_round in difficulty select = %+v", res)
	}

	res = intent(t, h, g.Token, `{"type":"select_difficulty","difficulty":"easy"}`)
	if res.State.Stage != game.StageRound || res.State.Difficulty != game.Easy {
		t.Fatalf("select_difficulty = %+v", res)
	}

	shown := pollState(t, h, g.Token, func(st game.GameState) bool { return st.Riddle != nil })
	if shown.Riddle.Answer != "" {
		t.Fatalf("answer leaked during the round: %+v", shown.Riddle)
	}

	intent(t, h, g.Token, `{"type":"submit_answer","answer":"  Echo "}`)
	st := pollState(t, h, g.Token, func(st game.GameState) bool { return st.Stage == game.StageResult })
	if st.LastResult != game.ResultCorrect || st.Score != 10 || st.Riddle.Answer != "echo" {
		t.Fatalf("after answer = %+v", st)
	}

	rec := do(t, h, http.MethodDelete, "/game", g.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /game = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/game/state", g.Token, ""); rec.Code != http.StatusNotFound {
		t.Errorf("state after delete = %d, want 404", rec.Code)
	}
}

func TestSessionTokenRequired(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/game/state", tt.token, "")
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}

	// valid signature but a different secret
	other, _ := newTestServer(t)
	other.cfg.SessionSecret = "someone-else"
	tok, _, err := other.signToken("whatever")
	if err != nil {
		t.Fatal(err)
	}
	if rec := do(t, h, http.MethodGet, "/game/state", tok, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("foreign token status = %d, want 401", rec.Code)
	}

	// well-formed token for a session that does not exist
	tok, _, _ = s.signToken("gone")
	if rec := do(t, h, http.MethodGet, "/game/state", tok, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestCookieAddressesSession(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	rec := do(t, h, http.MethodPost, "/game/new", "", "")
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/game/state", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("state via cookie = %d", out.Code)
	}
}

func TestNewGameReplacesOldSession(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Router()

	first := newGame(t, h)
	rec := do(t, h, http.MethodPost, "/game/new", first.Token, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("second new = %d", rec.Code)
	}
	second := decode[newGameRes](t, rec)
	if second.SessionID == first.SessionID {
		t.Fatal("session not replaced")
	}
	if st.Len() != 1 {
		t.Errorf("store holds %d sessions, want 1", st.Len())
	}
}

func TestBadIntentBodies(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()
	g := newGame(t, h)

	for _, body := range []string{`{`, `{"answer":"x"}`} {
		if rec := do(t, h, http.MethodPost, "/game/intent", g.Token, body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s = %d, want 400", body, rec.Code)
		}
	}
}

func TestIntentResult(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		ignored bool
	}{
		{"applied", nil, http.StatusOK, false},
		{"invalid", game.ErrInvalidTransition, http.StatusOK, true},
		{"stopped", game.ErrStopped, http.StatusGone, false},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, status := intentResult(game.GameState{}, tt.err)
			if status != tt.status || res.Ignored != tt.ignored {
				t.Errorf("got %d ignored=%v, want %d ignored=%v", status, res.Ignored, tt.status, tt.ignored)
			}
		})
	}
}
