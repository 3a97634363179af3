package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/apierr"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api/response"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/battlemetrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/factory"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/model"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/stats"
)

const token = factory.TestAdminToken

// testServer wraps a router over a TestApp
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	app := factory.NewTestApp()
	return &testServer{
		handler: app.Router(nil),
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) transition(t *testing.T, name string, online bool, at time.Time) {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/groups/42/transitions",
		map[string]any{"name": name, "online": online, "at": at}, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[apierr.ErrorResponse](t, rr).Error.Code
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.request(http.MethodGet, "/api/v1/health", nil, "")

	rr := ts.request(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tracker_")
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{"name": "jeff", "online": true}

	rr := ts.request(http.MethodPost, "/api/v1/groups/42/transitions", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/transitions", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/transitions", body, token)
	assert.Equal(t, http.StatusOK, rr.Code)

	// reads stay public
	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLoginSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"token": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/auth/login", map[string]string{"token": token}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	session := decodeBody[response.Session](t, rr)
	require.NotEmpty(t, session.Token)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/players", map[string]string{"name": "jeff"}, session.Token)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/auth/logout", nil, session.Token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/players", map[string]string{"name": "bob"}, session.Token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminDisabledWithoutHashes(t *testing.T) {
	app, err := factory.New(t.Context(), factory.Config{})
	require.NoError(t, err)
	handler := app.Router(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/42/reset", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeAdminDisabled, errorCode(t, rr))
}

func TestInvalidInput(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/groups/abc/players", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeValidation, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/transitions", map[string]any{"name": "[CLAN]  ", "online": true}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/nobody/sessions", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodePlayerNotFound, errorCode(t, rr))
}

func TestNumericNameResolvesByName(t *testing.T) {
	ts := newTestServer(t)
	ts.transition(t, "Jeff", true, ts.app.MockClock.Now())
	ts.transition(t, "1337", true, ts.app.MockClock.Now())

	rr := ts.request(http.MethodGet, "/api/v1/groups/42/players/1337/sessions", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sessions := decodeBody[response.Sessions](t, rr)
	require.NotNil(t, sessions.Player)
	assert.Equal(t, "1337", sessions.Player.Name)
	assert.Len(t, sessions.Sessions, 1)

	// an existing id still wins over a name
	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/1/sessions", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jeff", decodeBody[response.Sessions](t, rr).Player.Name)
}

func TestSessionsDefaultToWipeEpoch(t *testing.T) {
	ts := newTestServer(t)
	start := ts.app.MockClock.Now()

	ts.transition(t, "Jeff", true, start)
	ts.transition(t, "Jeff", false, start.Add(time.Hour))
	ts.transition(t, "Jeff", true, start.Add(3*time.Hour))

	rr := ts.request(http.MethodPut, "/api/v1/groups/42/wipe", map[string]any{"at": start.Add(2 * time.Hour)}, token)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/jeff/sessions", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	sessions := decodeBody[response.Sessions](t, rr)
	assert.Len(t, sessions.Sessions, 1)
	require.NotNil(t, sessions.Since)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/jeff/sessions?since=all", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[response.Sessions](t, rr).Sessions, 2)

	since := start.Add(30 * time.Minute).Format(time.RFC3339)
	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/jeff/sessions?since="+since, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	clamped := decodeBody[response.Sessions](t, rr).Sessions
	require.Len(t, clamped, 2)
	assert.True(t, clamped[0].Start.Equal(start.Add(30*time.Minute)))

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/jeff/sessions?since=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWipeLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/groups/42/wipe", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decodeBody[response.Wipe](t, rr).WipeEpoch)

	// no body marks the wipe now
	rr = ts.request(http.MethodPost, "/api/v1/groups/42/wipe", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	epoch := decodeBody[response.Wipe](t, rr).WipeEpoch
	require.NotNil(t, epoch)
	assert.True(t, epoch.Equal(ts.app.MockClock.Now()))

	rr = ts.request(http.MethodDelete, "/api/v1/groups/42/wipe", nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/wipe", nil, "")
	assert.Nil(t, decodeBody[response.Wipe](t, rr).WipeEpoch)
}

func TestPredictionOutcomes(t *testing.T) {
	ts := newTestServer(t)
	day := ts.app.MockClock.Now().Truncate(24 * time.Hour)

	ts.transition(t, "jeff", true, day.Add(18*time.Hour))
	ts.transition(t, "jeff", false, day.Add(19*time.Hour))

	rr := ts.request(http.MethodGet, "/api/v1/groups/42/players/jeff/prediction", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, response.PredictionInsufficient, decodeBody[response.Prediction](t, rr).Status)

	for d := 1; d < 3; d++ {
		ts.transition(t, "jeff", true, day.AddDate(0, 0, d).Add(18*time.Hour))
		ts.transition(t, "jeff", false, day.AddDate(0, 0, d).Add(19*time.Hour))
	}
	ts.app.MockClock.Set(day.AddDate(0, 0, 3).Add(12 * time.Hour))

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/jeff/prediction", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[response.Prediction](t, rr)
	assert.Equal(t, response.PredictionOK, got.Status)
	require.NotNil(t, got.Prediction)
	assert.Equal(t, 18, got.Prediction.Hour)
}

func TestStatsAndLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	start := ts.app.MockClock.Now()

	ts.transition(t, "jeff", true, start)
	ts.transition(t, "jeff", false, start.Add(2*time.Hour))
	ts.transition(t, "bob", true, start)
	ts.transition(t, "bob", false, start.Add(time.Hour))
	ts.app.MockClock.Set(start.Add(3 * time.Hour))

	rr := ts.request(http.MethodGet, "/api/v1/groups/42/leaderboard?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var board []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	require.Len(t, board, 1)
	assert.Equal(t, "jeff", board[0]["player"])

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/leaderboard?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players/bob/stats", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.InDelta(t, 1.0, stats["total_hours"], 0.001)
}

func TestMarketListings(t *testing.T) {
	ts := newTestServer(t)
	now := ts.app.MockClock.Now()

	broadcast := func(shop string, at time.Time, cost int) {
		t.Helper()
		rr := ts.request(http.MethodPost, "/api/v1/groups/42/listings", map[string]any{
			"shop": shop,
			"at":   at,
			"listings": []map[string]any{
				{"item": "Assault Rifle", "quantity": 1, "cost_item": "Scrap", "cost_amount": cost, "stock": 2},
			},
		}, token)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := ts.request(http.MethodPost, "/api/v1/groups/42/listings", map[string]any{"shop": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/listings", map[string]any{"shop": "x"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	broadcast("North", now.Add(-30*time.Hour), 300)
	broadcast("North", now.Add(-2*time.Hour), 400)
	broadcast("North", now.Add(-time.Hour), 450)
	broadcast("South", now.Add(-3*time.Hour), 500)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/listings?item=rifle", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	result := decodeBody[stats.MarketSearch](t, rr)
	assert.Equal(t, 2, result.Shops)
	require.Len(t, result.Listings, 2)
	assert.Equal(t, "North", result.Listings[0].Shop)
	assert.Equal(t, 450, result.Listings[0].CostAmount)
	assert.Equal(t, "South", result.Listings[1].Shop)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/listings", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTradesAndEconomy(t *testing.T) {
	ts := newTestServer(t)

	trade := map[string]any{"buyer": "jeff", "seller": "bob", "item": "Sulfur", "quantity": 1000, "cost_item": "Scrap", "cost_amount": 50}
	rr := ts.request(http.MethodPost, "/api/v1/groups/42/trades", trade, token)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/trades", map[string]any{"item": "Sulfur", "quantity": 0}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/economy", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var report struct {
		Trades   int `json:"trades"`
		TopItems []struct {
			Item   string `json:"item"`
			Volume int    `json:"volume"`
		} `json:"top_items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Trades)
	require.Len(t, report.TopItems, 1)
	assert.Equal(t, 50, report.TopItems[0].Volume)
}

func TestMergeRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.transition(t, "jeff", true, ts.app.MockClock.Now())
	_, err := ts.app.Storage.EnsurePlayer(t.Context(), 42, "player jeff", nil)
	require.NoError(t, err)

	rr := ts.request(http.MethodPost, "/api/v1/groups/42/merge", map[string]string{"source": "jeff", "target": "jeff"}, token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeSameIdentity, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/merge", map[string]string{"source": "jeff", "target": "ghost"}, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/duplicates", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	dups := decodeBody[response.Duplicates](t, rr).Duplicates
	require.Len(t, dups, 1)
	require.NotNil(t, dups[0].Target)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/merge", map[string]string{
		"source": dups[0].Source.ID.String(),
		"target": dups[0].Target.ID.String(),
	}, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, dups[0].Target.ID, decodeBody[model.MergeReport](t, rr).Target)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/dedupe", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"merged":[]`)
}

func TestPollTargetAndReconcile(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/groups/42/reconcile", nil, token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNoPollTarget, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/groups/42/poll-target", map[string]string{"target": "not-a-server"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodPut, "/api/v1/groups/42/poll-target", map[string]string{"target": "123"}, token)
	require.Equal(t, http.StatusOK, rr.Code)

	ts.transition(t, "jeff", true, ts.app.MockClock.Now())
	ts.app.MockClock.Advance(time.Minute)

	ts.app.MockFetcher.Fail(errors.New("timeout"))
	rr = ts.request(http.MethodPost, "/api/v1/groups/42/reconcile", nil, token)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	ts.app.MockFetcher.SetOnline("123")
	rr = ts.request(http.MethodPost, "/api/v1/groups/42/reconcile", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	result := decodeBody[response.Reconcile](t, rr)
	assert.Equal(t, 1, result.Corrections)
	assert.Equal(t, []string{"jeff"}, result.Report.MarkedOffline)

	rr = ts.request(http.MethodGet, "/api/v1/status", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeBody[response.Status](t, rr)
	require.Len(t, status.Groups, 1)
	assert.Equal(t, "123", status.Groups[0].PollTarget)
	assert.Equal(t, 1, status.Groups[0].Players)
	assert.Equal(t, 0, status.Groups[0].Online)
}

func TestServerInfo(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/groups/42/server", nil, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNoPollTarget, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/groups/42/poll-target", map[string]string{"target": "123"}, token)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/server", nil, "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	ts.app.MockFetcher.SetOnline("123", "Bob", "Alice")
	rr = ts.request(http.MethodGet, "/api/v1/groups/42/server", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	info := decodeBody[battlemetrics.ServerInfo](t, rr)
	assert.Equal(t, "123", info.ID)
	assert.Equal(t, 2, info.Players)
}

func TestResetRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.transition(t, "jeff", true, ts.app.MockClock.Now())

	rr := ts.request(http.MethodPost, "/api/v1/groups/42/reset", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[model.ResetReport](t, rr).Players)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/players", nil, "")
	assert.Empty(t, decodeBody[response.Players](t, rr).Players)
}

func TestDeviceRoutes(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/groups/42/devices", map[string]string{"entity_id": "abc", "name": "Base", "kind": "alarm"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/devices", map[string]string{"entity_id": "1234", "name": "Base", "kind": "alarm"}, token)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/groups/42/devices", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[response.Devices](t, rr).Devices, 1)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/devices/events", map[string]any{"entity_id": "1234", "value": true}, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Smart alarm triggered: Base", decodeBody[model.DeviceTriggeredPayload](t, rr).Message)

	rr = ts.request(http.MethodPost, "/api/v1/groups/42/devices/events", map[string]any{"entity_id": "999", "value": true}, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/groups/42/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool {
		hub := ts.app.HubManager.GetHub(42)
		return hub != nil && hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ts.transition(t, "jeff", true, ts.app.MockClock.Now())

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: player_online") {
			break
		}
	}
}
