package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mindhaven/mindhaven/config"
	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/notify"
	"github.com/mindhaven/mindhaven/repository"
	"github.com/mindhaven/mindhaven/utils"
)

const (
	testSecret      = "test-secret"
	testInternalKey = "internal-key"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeInbox struct {
	events []notify.Event
	err    error
}

func (f *fakeInbox) Inbox(_ context.Context, accountID string, limit int) ([]notify.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []notify.Event
	for _, ev := range f.events {
		if ev.AccountID == accountID && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

type server struct {
	t      *testing.T
	engine *gamification.Engine
	url    string
	client *http.Client
}

func newServer(t *testing.T, inbox *fakeInbox) *server {
	t.Helper()
	cfg := config.AppConfig{
		JWTSecret:          testSecret,
		InternalAPIKey:     testInternalKey,
		GinMode:            "test",
		RateLimitPerMinute: 600,
		AllowedOrigins:     []string{"*"},
		MetricsEnabled:     true,
	}
	engine := gamification.New(repository.NewMemoryStore())
	if err := engine.SyncCatalog(context.Background()); err != nil {
		t.Fatalf("sync catalog: %v", err)
	}
	deps := Dependencies{Engine: engine}
	if inbox != nil {
		deps.Inbox = inbox
	}
	ts := httptest.NewServer(SetupRouter(cfg, deps))
	t.Cleanup(ts.Close)
	return &server{t: t, engine: engine, url: ts.URL, client: ts.Client()}
}

func (s *server) do(method, path string, body interface{}, header map[string]string) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, s.url+path, &buf)
	if err != nil {
		s.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func (s *server) internal(method, path string, body interface{}) (int, envelope) {
	return s.do(method, path, body, map[string]string{"X-Internal-Key": testInternalKey})
}

func (s *server) member(method, path, accountID string) (int, envelope) {
	s.t.Helper()
	tok, err := utils.GenerateToken(testSecret, accountID, time.Hour)
	if err != nil {
		s.t.Fatal(err)
	}
	return s.do(method, path, nil, map[string]string{"Authorization": "Bearer " + tok})
}

func decode(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode %s: %v", env.Data, err)
	}
}

func TestHealthAndPublicCatalog(t *testing.T) {
	s := newServer(t, nil)

	status, env := s.do(http.MethodGet, "/health", nil, nil)
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("health = %d %+v", status, env)
	}

	status, env = s.do(http.MethodGet, "/api/v1/gamification/levels", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("levels status = %d", status)
	}
	var levels struct {
		Levels []gamification.LevelInfo `json:"levels"`
	}
	decode(t, env, &levels)
	if len(levels.Levels) != len(gamification.Levels()) {
		t.Fatalf("levels = %d", len(levels.Levels))
	}

	status, env = s.do(http.MethodGet, "/api/v1/gamification/badges", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("badges status = %d", status)
	}
	var badges struct {
		Badges []json.RawMessage `json:"badges"`
	}
	decode(t, env, &badges)
	if len(badges.Badges) != len(gamification.Catalog()) {
		t.Fatalf("badges = %d, want %d", len(badges.Badges), len(gamification.Catalog()))
	}

	status, env = s.do(http.MethodGet, "/nope", nil, nil)
	if status != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("no route = %d %+v", status, env)
	}
}

func TestInternalRoutesRequireKey(t *testing.T) {
	s := newServer(t, nil)

	status, env := s.do(http.MethodPost, "/internal/v1/accounts", map[string]string{"account_id": "a"}, nil)
	if status != http.StatusUnauthorized || env.Code != 40106 {
		t.Fatalf("missing key = %d %+v", status, env)
	}
	status, _ = s.do(http.MethodPost, "/internal/v1/accounts", map[string]string{"account_id": "a"},
		map[string]string{"X-Internal-Key": "wrong"})
	if status != http.StatusForbidden {
		t.Fatalf("wrong key = %d", status)
	}
}

func TestAwardFlowOverHTTP(t *testing.T) {
	s := newServer(t, nil)

	status, env := s.internal(http.MethodPost, "/internal/v1/accounts", map[string]string{"account_id": "acc-1"})
	if status != http.StatusCreated {
		t.Fatalf("create = %d %+v", status, env)
	}
	status, _ = s.internal(http.MethodPost, "/internal/v1/accounts", map[string]string{"account_id": "acc-1"})
	if status != http.StatusOK {
		t.Fatalf("second create = %d", status)
	}

	status, env = s.internal(http.MethodPost, "/internal/v1/points", map[string]string{
		"account_id": "acc-1", "kind": "session_attended", "reference_id": "s-1", "reference_type": "session",
	})
	if status != http.StatusOK {
		t.Fatalf("award = %d %+v", status, env)
	}
	var award gamification.AwardResult
	decode(t, env, &award)
	if award.PointsAwarded != 50 || award.NewTotal != 50 {
		t.Fatalf("award = %+v", award)
	}
	if !containsName(award.BadgesUnlocked, gamification.BadgeFirstSession) {
		t.Fatalf("badges = %v", award.BadgesUnlocked)
	}

	status, env = s.internal(http.MethodGet, "/internal/v1/accounts/acc-1/reconcile", nil)
	if status != http.StatusOK {
		t.Fatalf("reconcile = %d", status)
	}
	var report gamification.ReconcileReport
	decode(t, env, &report)
	if !report.Consistent || report.LedgerSum != 50 {
		t.Fatalf("report = %+v", report)
	}

	status, env = s.internal(http.MethodPost, "/internal/v1/accounts/acc-1/badges/SESSION/check", nil)
	if status != http.StatusOK {
		t.Fatalf("check = %d %+v", status, env)
	}
	var check struct {
		BadgesUnlocked []string `json:"badges_unlocked"`
	}
	decode(t, env, &check)
	if len(check.BadgesUnlocked) != 0 {
		t.Fatalf("repeat check unlocked %v", check.BadgesUnlocked)
	}
}

func TestInternalErrorMapping(t *testing.T) {
	s := newServer(t, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown kind", http.MethodPost, "/internal/v1/points", map[string]string{"account_id": "x", "kind": "NOPE"}, http.StatusBadRequest},
		{"engine-only kind", http.MethodPost, "/internal/v1/points", map[string]string{"account_id": "x", "kind": "BADGE_UNLOCKED"}, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/internal/v1/points", map[string]string{}, http.StatusBadRequest},
		{"unknown account", http.MethodPost, "/internal/v1/points", map[string]string{"account_id": "ghost", "kind": "MOOD_LOGGED"}, http.StatusNotFound},
		{"bad category", http.MethodPost, "/internal/v1/accounts/x/badges/nope/check", nil, http.StatusBadRequest},
		{"reconcile unknown", http.MethodGet, "/internal/v1/accounts/ghost/reconcile", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := s.internal(tc.method, tc.path, tc.body)
			if status != tc.status {
				t.Fatalf("status = %d, want %d (%+v)", status, tc.status, env)
			}
		})
	}
}

func TestMemberRoutes(t *testing.T) {
	s := newServer(t, nil)
	s.internal(http.MethodPost, "/internal/v1/accounts", map[string]string{"account_id": "acc-2"})

	status, env := s.do(http.MethodGet, "/api/v1/gamification/me/stats", nil, nil)
	if status != http.StatusUnauthorized || env.Code != 40101 {
		t.Fatalf("anonymous = %d %+v", status, env)
	}
	status, _ = s.do(http.MethodGet, "/api/v1/gamification/me/stats", nil, map[string]string{"Authorization": "Bearer junk"})
	if status != http.StatusUnauthorized {
		t.Fatalf("junk token = %d", status)
	}

	status, env = s.member(http.MethodPost, "/api/v1/gamification/me/check-in", "acc-2")
	if status != http.StatusOK {
		t.Fatalf("check-in = %d %+v", status, env)
	}
	var checkIn gamification.CheckInResult
	decode(t, env, &checkIn)
	if !checkIn.IsNewCheckIn || checkIn.CurrentStreak != 1 || checkIn.PointsAwarded != 10 {
		t.Fatalf("check-in = %+v", checkIn)
	}

	_, env = s.member(http.MethodPost, "/api/v1/gamification/me/check-in", "acc-2")
	decode(t, env, &checkIn)
	if checkIn.IsNewCheckIn {
		t.Fatal("second check-in on the same day should not be new")
	}

	status, env = s.member(http.MethodGet, "/api/v1/gamification/me/stats", "acc-2")
	if status != http.StatusOK {
		t.Fatalf("stats = %d", status)
	}
	var stats gamification.UserStats
	decode(t, env, &stats)
	if stats.CurrentStreak != 1 || stats.TotalPoints < 10 {
		t.Fatalf("stats = %+v", stats)
	}

	status, env = s.member(http.MethodGet, "/api/v1/gamification/me/points?limit=1", "acc-2")
	if status != http.StatusOK {
		t.Fatalf("points = %d", status)
	}
	var history gamification.PointHistory
	decode(t, env, &history)
	if len(history.Transactions) != 1 || history.Total < 1 {
		t.Fatalf("history = %+v", history)
	}

	status, _ = s.member(http.MethodGet, "/api/v1/gamification/me/points?offset=-1", "acc-2")
	if status != http.StatusBadRequest {
		t.Fatalf("negative offset = %d", status)
	}

	status, _ = s.member(http.MethodGet, "/api/v1/gamification/me/badges", "acc-2")
	if status != http.StatusOK {
		t.Fatalf("badges = %d", status)
	}

	status, _ = s.member(http.MethodGet, "/api/v1/gamification/me/stats", "ghost")
	if status != http.StatusNotFound {
		t.Fatalf("unknown member = %d", status)
	}

	status, _ = s.member(http.MethodGet, "/api/v1/gamification/me/notifications", "acc-2")
	if status != http.StatusNotFound {
		t.Fatalf("notifications without inbox = %d", status)
	}
}

func TestNotificationsRoute(t *testing.T) {
	inbox := &fakeInbox{events: []notify.Event{
		*notify.BadgeUnlockedEvent("acc-3", gamification.BadgeFirstSession),
		*notify.LevelUpEvent("other", 2, "Explorador"),
	}}
	s := newServer(t, inbox)

	status, env := s.member(http.MethodGet, "/api/v1/gamification/me/notifications", "acc-3")
	if status != http.StatusOK {
		t.Fatalf("notifications = %d %+v", status, env)
	}
	var out struct {
		Notifications []notify.Event `json:"notifications"`
	}
	decode(t, env, &out)
	if len(out.Notifications) != 1 || out.Notifications[0].Type != notify.EventBadgeUnlocked {
		t.Fatalf("notifications = %+v", out.Notifications)
	}

	inbox.err = errors.New("redis down")
	status, _ = s.member(http.MethodGet, "/api/v1/gamification/me/notifications", "acc-3")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("inbox failure = %d", status)
	}
}

func TestStreakResetRoute(t *testing.T) {
	s := newServer(t, nil)
	status, env := s.internal(http.MethodPost, "/internal/v1/streaks/reset", nil)
	if status != http.StatusOK {
		t.Fatalf("reset = %d %+v", status, env)
	}
	var res gamification.ResetResult
	decode(t, env, &res)
	if res.UsersReset != 0 || res.TotalProcessed != 0 {
		t.Fatalf("reset on empty store = %+v", res)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	resp, err := s.client.Get(s.url + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
