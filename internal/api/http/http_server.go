package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/perp-engine/internal/api/dto"
	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/liquidation"
	"github.com/olyamironova/perp-engine/internal/middleware"
	"github.com/olyamironova/perp-engine/internal/port"
	"github.com/olyamironova/perp-engine/internal/position"
)

type HTTPServer struct {
	Eng         *core.Engine
	Positions   *position.Manager
	Liquidation *liquidation.Processor
	History     port.Repository
	log         logrus.FieldLogger
	rateLimit   time.Duration
}

func NewHTTPServer(eng *core.Engine, positions *position.Manager, liq *liquidation.Processor, history port.Repository, log logrus.FieldLogger, rateLimit time.Duration) *HTTPServer {
	return &HTTPServer{
		Eng:         eng,
		Positions:   positions,
		Liquidation: liq,
		History:     history,
		log:         log.WithField("component", "http"),
		rateLimit:   rateLimit,
	}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Logger(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	orders := v1.Group("/orders")
	orders.Use(middleware.NewRateLimiter(s.rateLimit).Middleware())
	orders.POST("", s.submitOrder)
	orders.DELETE("/:symbol/:id", s.cancelOrder)
	orders.PUT("/:symbol/:id", s.replaceOrder)
	orders.GET("/:symbol/:id", s.getOrder)

	v1.GET("/depth/:symbol", s.getDepth)
	v1.GET("/trades/:symbol", s.getTrades)
	v1.PUT("/leverage", s.setLeverage)
	v1.GET("/positions/:account", s.getPositions)

	// risk monitor
	v1.POST("/mark", s.updateMark)
	v1.POST("/liquidations", s.liquidate)
	v1.POST("/funding", s.settleFunding)
	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownSymbol),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderAlreadyTerminal),
		errors.Is(err, domain.ErrDuplicateOrderID),
		errors.Is(err, domain.ErrPositionFrozen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrPostOnlyWouldCross),
		errors.Is(err, domain.ErrReduceOnlyViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidNumber),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrMissingPrice),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidLeverage),
		errors.Is(err, domain.ErrInvalidOrderKind),
		errors.Is(err, domain.ErrUnsupportedOrderKind),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "reason": domain.RejectReason(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "BAD_REQUEST"})
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd, err := toCommand(&req)
	if err != nil {
		fail(c, err)
		return
	}
	rep, err := s.Eng.Submit(c.Request.Context(), cmd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertReport(rep))
}

func orderRef(c *gin.Context) (domain.Symbol, domain.OrderID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, errors.New("invalid order id"))
		return "", 0, false
	}
	return domain.Symbol(c.Param("symbol")), domain.OrderID(id), true
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	symbol, id, ok := orderRef(c)
	if !ok {
		return
	}
	o, err := s.Eng.Cancel(c.Request.Context(), symbol, id, c.GetHeader(middleware.AccountHeader))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertOrder(o))
}

func (s *HTTPServer) replaceOrder(c *gin.Context) {
	symbol, id, ok := orderRef(c)
	if !ok {
		return
	}
	var req dto.ReplaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	price, err := domain.PriceFromDecimal(req.Price)
	if err != nil {
		fail(c, err)
		return
	}
	qty, err := domain.QuantityFromDecimal(req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	rep, err := s.Eng.Replace(c.Request.Context(), core.Amendment{
		Symbol:    symbol,
		OrderID:   id,
		AccountID: req.AccountID,
		Price:     price,
		Quantity:  qty,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertReport(rep))
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	symbol, id, ok := orderRef(c)
	if !ok {
		return
	}
	o, err := s.Eng.Order(c.Request.Context(), symbol, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertOrder(o))
}

func (s *HTTPServer) getDepth(c *gin.Context) {
	levels, err := strconv.Atoi(c.DefaultQuery("levels", "0"))
	if err != nil || levels < 0 {
		badRequest(c, errors.New("levels must be a non-negative integer"))
		return
	}
	snap, err := s.Eng.Depth(c.Request.Context(), domain.Symbol(c.Param("symbol")), levels)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertDepth(snap))
}

// getTrades pages through persisted trades from a sequence number. Persistence is
// asynchronous, so the newest trades may not be visible yet.
func (s *HTTPServer) getTrades(c *gin.Context) {
	symbol := domain.Symbol(c.Param("symbol"))
	if _, err := s.Eng.Registry().Spec(symbol); err != nil {
		fail(c, err)
		return
	}
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		badRequest(c, errors.New("from must be a sequence number"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		badRequest(c, errors.New("limit must be in [1, 1000]"))
		return
	}
	trades, err := s.History.LoadTrades(c.Request.Context(), symbol, from, limit)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbol).Error("load trades failed")
		fail(c, err)
		return
	}
	out := make([]dto.Trade, 0, len(trades))
	for _, t := range trades {
		out = append(out, convertTrade(t))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

func (s *HTTPServer) setLeverage(c *gin.Context) {
	var req dto.LeverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	symbol := domain.Symbol(req.Symbol)
	spec, err := s.Eng.Registry().Spec(symbol)
	if err != nil {
		fail(c, err)
		return
	}
	if spec.MaxLeverage > 0 && req.Leverage > spec.MaxLeverage {
		fail(c, domain.ErrInvalidLeverage)
		return
	}
	if err := s.Positions.SetLeverage(req.AccountID, symbol, req.Leverage); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *HTTPServer) getPositions(c *gin.Context) {
	positions := s.Positions.Positions(c.Param("account"))
	c.JSON(http.StatusOK, gin.H{"positions": convertPositions(positions)})
}

func (s *HTTPServer) updateMark(c *gin.Context) {
	var req dto.MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mark, err := domain.PriceFromDecimal(req.Price)
	if err != nil {
		fail(c, err)
		return
	}
	breached, err := s.Eng.UpdateMarkPrice(c.Request.Context(), domain.Symbol(req.Symbol), mark)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MarkResponse{Symbol: req.Symbol, Breached: convertPositions(breached)})
}

func (s *HTTPServer) liquidate(c *gin.Context) {
	var req dto.LiquidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mark, err := domain.PriceFromDecimal(req.MarkPrice)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.Liquidation.ExecuteLiquidation(c.Request.Context(), req.PositionID, mark)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convertLiquidation(res))
}

func (s *HTTPServer) settleFunding(c *gin.Context) {
	var req dto.FundingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rate, err := domain.RateFromDecimal(req.Rate)
	if err != nil {
		fail(c, err)
		return
	}
	mark, err := domain.PriceFromDecimal(req.MarkPrice)
	if err != nil {
		fail(c, err)
		return
	}
	symbol := domain.Symbol(req.Symbol)
	if _, err := s.Eng.Registry().Spec(symbol); err != nil {
		fail(c, err)
		return
	}
	if mark <= 0 {
		fail(c, domain.ErrInvalidPrice)
		return
	}
	payments, err := s.Positions.SettleFunding(c.Request.Context(), symbol, rate, mark)
	if err != nil {
		fail(c, err)
		return
	}
	out := dto.FundingResponse{Symbol: req.Symbol, Payments: make([]dto.FundingPayment, 0, len(payments))}
	for _, p := range payments {
		out.Payments = append(out.Payments, dto.FundingPayment{PositionID: p.PositionID, AccountID: p.AccountID, Amount: p.Amount.Decimal()})
	}
	c.JSON(http.StatusOK, out)
}
