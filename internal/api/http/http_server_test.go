package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/perp-engine/internal/adapter/in_memory"
	"github.com/olyamironova/perp-engine/internal/api/dto"
	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/liquidation"
	"github.com/olyamironova/perp-engine/internal/logging"
	"github.com/olyamironova/perp-engine/internal/middleware"
	"github.com/olyamironova/perp-engine/internal/position"
)

const (
	btc  = domain.Symbol("BTC-PERP")
	usdt = "USDT"
)

type testServer struct {
	router *gin.Engine
	ledger *in_memory.Ledger
	repo   *in_memory.MemoryRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logging.Discard()

	ledger := in_memory.NewLedger()
	positions := position.NewManager(position.DefaultConfig(), ledger, log)
	reg := core.NewRegistry(core.SymbolSpec{Symbol: btc, QuoteAsset: usdt, MaxLeverage: 100})
	eng := core.NewEngine(reg, positions, ledger, log, core.WithFees(core.FeeSchedule{}))
	proc := liquidation.NewProcessor(liquidation.Deps{
		Engine:         eng,
		Positions:      positions,
		Fund:           in_memory.NewInsuranceFund(domain.WholeAmount(1_000_000)),
		Counterparties: positions,
		Notifier:       in_memory.NewNotifier(),
		Store:          in_memory.NewResultStore(),
		Alerter:        &in_memory.Alerter{},
	}, liquidation.DefaultConfig(), log)

	repo := in_memory.NewMemoryRepo()
	srv := NewHTTPServer(eng, positions, proc, repo, log, 0)
	return &testServer{router: srv.Router(), ledger: ledger, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, account string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(middleware.AccountHeader, account)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) submit(t *testing.T, req dto.SubmitOrderRequest) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/v1/orders", req.AccountID, req)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (s *testServer) fund(account string, amount int64) {
	s.ledger.Deposit(account, usdt, domain.WholeAmount(amount))
}

func (s *testServer) available(t *testing.T, account string) domain.Amount {
	t.Helper()
	a, err := s.ledger.AvailableBalance(context.Background(), account, usdt)
	require.NoError(t, err)
	return a
}

func TestOpenAndCloseLongRealizesProfit(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 10_000)
	s.fund("bob", 10_000)
	s.fund("carol", 10_000)

	w := s.submit(t, dto.SubmitOrderRequest{AccountID: "bob", Symbol: string(btc), Side: "SELL", Type: "LIMIT", Price: dec("50000"), Quantity: dec("1")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ACCEPTED", decode[dto.ExecutionReport](t, w).Status)

	w = s.submit(t, dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "MARKET", Quantity: dec("1")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[dto.ExecutionReport](t, w)
	assert.Equal(t, "FILLED", rep.Status)
	require.Len(t, rep.Trades, 1)
	assert.True(t, rep.Trades[0].Price.Equal(dec("50000")))

	w = s.do(t, http.MethodGet, "/v1/positions/alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Positions []dto.Position `json:"positions"`
	}](t, w)
	require.Len(t, body.Positions, 1)
	long := body.Positions[0]
	assert.Equal(t, "LONG", long.Side)
	assert.True(t, long.Margin.Equal(dec("5000")), long.Margin.String())
	assert.True(t, long.LiquidationPrice.Equal(dec("45500")), long.LiquidationPrice.String())
	assert.Equal(t, domain.WholeAmount(5_000), s.available(t, "alice"))

	w = s.submit(t, dto.SubmitOrderRequest{AccountID: "carol", Symbol: string(btc), Side: "BUY", Type: "LIMIT", Price: dec("55000"), Quantity: dec("1")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.submit(t, dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "SELL", PositionSide: "LONG", Type: "MARKET", Quantity: dec("1")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "FILLED", decode[dto.ExecutionReport](t, w).Status)

	w = s.do(t, http.MethodGet, "/v1/positions/alice", "", nil)
	body = decode[struct {
		Positions []dto.Position `json:"positions"`
	}](t, w)
	require.Len(t, body.Positions, 1)
	closed := body.Positions[0]
	assert.Equal(t, "CLOSED", closed.State)
	assert.True(t, closed.RealizedPnL.Equal(dec("5000")), closed.RealizedPnL.String())
	assert.True(t, closed.ROI.Equal(dec("1")), closed.ROI.String())
	assert.Equal(t, domain.WholeAmount(15_000), s.available(t, "alice"))
}

func TestSubmitErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 100)

	tests := []struct {
		name   string
		req    dto.SubmitOrderRequest
		status int
		reason string
	}{
		{
			name:   "unknown symbol",
			req:    dto.SubmitOrderRequest{AccountID: "alice", Symbol: "DOGE-PERP", Side: "BUY", Type: "LIMIT", Price: dec("1"), Quantity: dec("1")},
			status: http.StatusNotFound,
			reason: "UNKNOWN_SYMBOL",
		},
		{
			name:   "zero quantity",
			req:    dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "LIMIT", Price: dec("100"), Quantity: dec("0")},
			status: http.StatusBadRequest,
			reason: "INVALID_QUANTITY",
		},
		{
			name:   "limit without price",
			req:    dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "LIMIT", Quantity: dec("1")},
			status: http.StatusBadRequest,
			reason: "MISSING_PRICE",
		},
		{
			name:   "margin above balance",
			req:    dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "LIMIT", Price: dec("50000"), Quantity: dec("1")},
			status: http.StatusUnprocessableEntity,
			reason: "INSUFFICIENT_BALANCE",
		},
		{
			name:   "fok without liquidity",
			req:    dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "LIMIT", TimeInForce: "FOK", Price: dec("100"), Quantity: dec("1")},
			status: http.StatusUnprocessableEntity,
			reason: "INSUFFICIENT_LIQUIDITY",
		},
		{
			name:   "reduce only without position",
			req:    dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "SELL", PositionSide: "LONG", Type: "LIMIT", Price: dec("100"), Quantity: dec("1")},
			status: http.StatusUnprocessableEntity,
			reason: "REDUCE_ONLY_VIOLATION",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.submit(t, tc.req)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.reason, decode[map[string]string](t, w)["reason"])
		})
	}
}

func TestOrderRoutesRequireAccountHeader(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/orders", "", dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "LIMIT", Price: dec("1"), Quantity: dec("1")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_ACCOUNT", decode[map[string]string](t, w)["reason"])
}

func TestCancelReplaceAndQueryOrder(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 10_000)

	w := s.submit(t, dto.SubmitOrderRequest{OrderID: 7, AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "LIMIT", Price: dec("40000"), Quantity: dec("1")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.WholeAmount(6_000), s.available(t, "alice"))

	w = s.do(t, http.MethodPut, "/v1/orders/BTC-PERP/7", "alice", dto.ReplaceOrderRequest{AccountID: "alice", Quantity: dec("0.5")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.WholeAmount(8_000), s.available(t, "alice"))

	w = s.do(t, http.MethodGet, "/v1/depth/BTC-PERP?levels=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	depth := decode[dto.Depth](t, w)
	require.Len(t, depth.Bids, 1)
	assert.True(t, depth.Bids[0].Quantity.Equal(dec("0.5")))
	assert.Empty(t, depth.Asks)

	w = s.do(t, http.MethodDelete, "/v1/orders/BTC-PERP/7", "mallory", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/v1/orders/BTC-PERP/7", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode[dto.Order](t, w).Status)
	assert.Equal(t, domain.WholeAmount(10_000), s.available(t, "alice"))

	w = s.do(t, http.MethodDelete, "/v1/orders/BTC-PERP/7", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ORDER_ALREADY_TERMINAL", decode[map[string]string](t, w)["reason"])

	w = s.do(t, http.MethodGet, "/v1/orders/BTC-PERP/7", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", decode[dto.Order](t, w).Status)

	w = s.do(t, http.MethodGet, "/v1/orders/BTC-PERP/abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReportsBreachedPositions(t *testing.T) {
	s := newTestServer(t)
	s.fund("alice", 10_000)
	s.fund("bob", 10_000)

	require.Equal(t, http.StatusOK, s.submit(t, dto.SubmitOrderRequest{AccountID: "bob", Symbol: string(btc), Side: "SELL", Type: "LIMIT", Price: dec("50000"), Quantity: dec("1")}).Code)
	require.Equal(t, http.StatusOK, s.submit(t, dto.SubmitOrderRequest{AccountID: "alice", Symbol: string(btc), Side: "BUY", Type: "MARKET", Quantity: dec("1")}).Code)

	w := s.do(t, http.MethodPost, "/v1/mark", "", dto.MarkRequest{Symbol: string(btc), Price: dec("50000")})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.MarkResponse](t, w).Breached)

	w = s.do(t, http.MethodPost, "/v1/mark", "", dto.MarkRequest{Symbol: string(btc), Price: dec("45000")})
	require.Equal(t, http.StatusOK, w.Code)
	breached := decode[dto.MarkResponse](t, w).Breached
	require.Len(t, breached, 1)
	assert.Equal(t, "alice", breached[0].AccountID)

	w = s.do(t, http.MethodPost, "/v1/mark", "", dto.MarkRequest{Symbol: string(btc), Price: dec("0")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeverageBounds(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPut, "/v1/leverage", "", dto.LeverageRequest{AccountID: "alice", Symbol: string(btc), Leverage: 20})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPut, "/v1/leverage", "", dto.LeverageRequest{AccountID: "alice", Symbol: string(btc), Leverage: 101})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_LEVERAGE", decode[map[string]string](t, w)["reason"])
}

func TestLiquidationOfUnknownPosition(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/v1/liquidations", "", dto.LiquidationRequest{PositionID: "missing", MarkPrice: dec("100")})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "POSITION_NOT_FOUND", decode[map[string]string](t, w)["reason"])
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTradeHistoryPages(t *testing.T) {
	s := newTestServer(t)
	trades := make([]domain.Trade, 0, 3)
	for seq := uint64(1); seq <= 3; seq++ {
		trades = append(trades, domain.Trade{ID: "t", Symbol: btc, Seq: seq, Price: domain.WholePrice(100), Quantity: domain.WholeQuantity(1)})
	}
	require.NoError(t, s.repo.SaveTrades(context.Background(), trades))

	w := s.do(t, http.MethodGet, "/v1/trades/BTC-PERP?from=2&limit=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Trades []dto.Trade `json:"trades"`
	}](t, w)
	require.Len(t, body.Trades, 1)
	assert.Equal(t, uint64(2), body.Trades[0].Seq)

	w = s.do(t, http.MethodGet, "/v1/trades/BTC-PERP?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/v1/trades/DOGE-PERP", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
