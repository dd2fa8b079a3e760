package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/game"
	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/wager"
)

type fixedHub struct{ clients int }

func (h fixedHub) ClientCount() int { return h.clients }

type fixedBroker struct {
	ready    bool
	balances map[string]float64
}

func (b fixedBroker) Ready() bool { return b.ready }

func (b fixedBroker) Balances() map[string]float64 { return b.balances }

func newTestRouter(t *testing.T, broker Broker) *mux.Router {
	t.Helper()

	ledger := wager.NewLedger(nil, "ytest.usd", nil)
	match := game.NewMatchMaker(game.Rules{MinPlayers: 2, MaxPlayers: 8}, ledger, nil)
	t.Cleanup(match.Shutdown)

	router := mux.NewRouter()
	NewHandler(match, fixedHub{clients: 3}, broker).Register(router)
	return router
}

func TestHealthReportsBrokerState(t *testing.T) {
	router := newTestRouter(t, fixedBroker{ready: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["broker_ready"])
	assert.Equal(t, float64(0), body["rooms"])
	assert.Equal(t, float64(3), body["ws_clients"])
	assert.NotEmpty(t, body["uptime"])
}

func TestRoomsEmptyWithoutPlayers(t *testing.T) {
	router := newTestRouter(t, fixedBroker{ready: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
}

func TestBalancesUnavailableWhileBrokerIsDown(t *testing.T) {
	router := newTestRouter(t, fixedBroker{ready: false})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "broker offline")
}

func TestBalancesServed(t *testing.T) {
	router := newTestRouter(t, fixedBroker{
		ready:    true,
		balances: map[string]float64{"ytest.usd": 117.25},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balances", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Balances map[string]float64 `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 117.25, body.Balances["ytest.usd"])
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, fixedBroker{ready: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
