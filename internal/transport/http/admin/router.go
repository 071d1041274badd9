package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"perpbot/internal/agent"
	"perpbot/internal/analysis/indicator"
	"perpbot/internal/analysis/visual"
	"perpbot/internal/config"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/pkg/symbol"
	"perpbot/internal/scanner"
	"perpbot/internal/strategy"
	"perpbot/internal/trader"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
	exchangeTimeout     = 15 * time.Second
)

type Controller interface {
	Start(ctx context.Context) bool
	Stop() bool
	Running() bool
	Status() agent.Status
}

type TradeDesk interface {
	Active() []trader.Trade
	Completed() []trader.Trade
	Close(ctx context.Context, id string) (trader.Trade, error)
	CloseAll(ctx context.Context) (int, error)
	Stats() *trader.StatsBook
}

type Scanner interface {
	Cycle(ctx context.Context) (scanner.Report, error)
	Last() (scanner.Report, bool)
}

type Indicators interface {
	Snapshot(ctx context.Context, symbol, timeframe string, p indicator.Params) (indicator.Snapshot, error)
}

type Signals interface {
	Evaluate(ctx context.Context, symbol, timeframe string) strategy.Signal
}

type Market interface {
	Ping(ctx context.Context) error
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	Balance(ctx context.Context) (exchange.Balance, error)
}

// History 是可选的交易日志读取端。
type History interface {
	ListTrades(ctx context.Context, state trader.State, limit int) ([]trader.Trade, error)
}

// Deps 汇总后台路由所需的运行时组件。History 与 Signals 可为空。
type Deps struct {
	Runtime    *config.Runtime
	Controller Controller
	Trades     TradeDesk
	Scanner    Scanner
	Indicators Indicators
	Signals    Signals
	Market     Market
	History    History
}

type Router struct {
	d Deps
}

func NewRouter(d Deps) *Router {
	return &Router{d: d}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/config", r.handleGetConfig)
	group.PUT("/config", r.handlePutConfig)
	group.POST("/pairs", r.handleAddPair)
	group.DELETE("/pairs/:symbol", r.handleRemovePair)
	group.GET("/trades", r.handleTrades)
	group.POST("/trades/:id/close", r.handleCloseTrade)
	group.POST("/positions/close-all", r.handleCloseAll)
	group.GET("/stats", r.handleStats)
	group.GET("/scan", r.handleLastScan)
	group.POST("/scan", r.handleRunScan)
	group.GET("/indicators/:symbol", r.handleIndicators)
	group.GET("/balance", r.handleBalance)
	group.POST("/trading/start", r.handleStart)
	group.POST("/trading/stop", r.handleStop)
	group.POST("/exchange/ping", r.handlePing)
	group.GET("/charts/equity", r.handleEquityChart)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.d.Controller.Status())
}

func (r *Router) handleGetConfig(c *gin.Context) {
	if strings.EqualFold(c.Query("format"), "yaml") {
		raw, err := r.d.Runtime.YAML()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", raw)
		return
	}
	c.JSON(http.StatusOK, r.d.Runtime.Values())
}

func (r *Router) handlePutConfig(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": err.Error()})
		return
	}
	req, err := decodeUpdate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": err.Error()})
		return
	}
	if err := r.d.Runtime.Update(req.Param, req.Value); err != nil {
		code := "INVALID_VALUE"
		if errors.Is(err, config.ErrUnknownParam) {
			code = "UNKNOWN_PARAM"
		}
		c.JSON(http.StatusBadRequest, gin.H{"code": code, "error": err.Error()})
		return
	}
	value, _ := r.d.Runtime.Get(req.Param)
	log.Infof("config %s updated to %v by %s", req.Param, value, operatorOrAnon(c))
	c.JSON(http.StatusOK, gin.H{"param": req.Param, "value": value})
}

func (r *Router) handleAddPair(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": err.Error()})
		return
	}
	sym := symbol.Normalize(req.Symbol)
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_SYMBOL", "error": "invalid symbol " + req.Symbol})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), exchangeTimeout)
	defer cancel()
	if _, err := r.d.Market.TickerPrice(ctx, sym); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, exchange.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"code": "SYMBOL_UNAVAILABLE", "error": err.Error()})
		return
	}
	added := r.d.Runtime.Pairs().Add(sym)
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "added": added, "pairs": r.d.Runtime.Pairs().Snapshot()})
}

func (r *Router) handleRemovePair(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	if sym == "" || !r.d.Runtime.Pairs().Remove(sym) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "pair not active"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "pairs": r.d.Runtime.Pairs().Snapshot()})
}

func (r *Router) handleTrades(c *gin.Context) {
	state := strings.ToLower(strings.TrimSpace(c.DefaultQuery("state", "active")))
	switch state {
	case "active", "open":
		c.JSON(http.StatusOK, gin.H{"trades": r.d.Trades.Active()})
	case "completed":
		c.JSON(http.StatusOK, gin.H{"trades": r.d.Trades.Completed()})
	case "history":
		if r.d.History == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade journal disabled"})
			return
		}
		trades, err := r.d.History.ListTrades(c.Request.Context(), "", parseLimit(c.Query("limit")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_STATE", "error": "state must be active, completed or history"})
	}
}

func (r *Router) handleCloseTrade(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), exchangeTimeout)
	defer cancel()
	t, err := r.d.Trades.Close(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, trader.ErrTradeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	log.Infof("trade %s %s closed manually by %s", t.ID, t.Symbol, operatorOrAnon(c))
	c.JSON(http.StatusOK, t)
}

func (r *Router) handleCloseAll(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*exchangeTimeout)
	defer cancel()
	n, err := r.d.Trades.CloseAll(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"closed": n, "error": err.Error()})
		return
	}
	log.Infof("close-all closed %d positions by %s", n, operatorOrAnon(c))
	c.JSON(http.StatusOK, gin.H{"closed": n})
}

func (r *Router) handleStats(c *gin.Context) {
	st := r.d.Trades.Stats().Snapshot()
	if strings.EqualFold(c.Query("format"), "text") {
		s := r.d.Runtime.Snapshot()
		c.String(http.StatusOK, trader.StatsMessage(st, s.Trading.Mode, s.Trading.UseRealTrading))
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleLastScan(c *gin.Context) {
	rep, ok := r.d.Scanner.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "no scan completed yet"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handleRunScan(c *gin.Context) {
	rep, err := r.d.Scanner.Cycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (r *Router) handleIndicators(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_SYMBOL", "error": "invalid symbol"})
		return
	}
	s := r.d.Runtime.Snapshot()
	tf := strings.TrimSpace(c.DefaultQuery("timeframe", s.Indicators.CandleTimeframe))
	ctx, cancel := context.WithTimeout(c.Request.Context(), exchangeTimeout)
	defer cancel()
	snap, err := r.d.Indicators.Snapshot(ctx, sym, tf, indicator.ParamsFrom(s.Indicators))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, indicator.ErrInsufficientData) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	out := gin.H{"indicators": snap}
	if r.d.Signals != nil {
		out["signal"] = r.d.Signals.Evaluate(ctx, sym, tf)
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) handleBalance(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), exchangeTimeout)
	defer cancel()
	bal, err := r.d.Market.Balance(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (r *Router) handleStart(c *gin.Context) {
	started := r.d.Controller.Start(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"started": started, "running": r.d.Controller.Running()})
}

func (r *Router) handleStop(c *gin.Context) {
	stopped := r.d.Controller.Stop()
	c.JSON(http.StatusOK, gin.H{"stopped": stopped, "running": r.d.Controller.Running()})
}

func (r *Router) handlePing(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), exchangeTimeout)
	defer cancel()
	start := time.Now()
	if err := r.d.Market.Ping(ctx); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "latency_ms": time.Since(start).Milliseconds()})
}

func (r *Router) handleEquityChart(c *gin.Context) {
	trades := r.d.Trades.Completed()
	if r.d.History != nil {
		hist, err := r.d.History.ListTrades(c.Request.Context(), trader.StateCompleted, parseLimit(c.Query("limit")))
		if err != nil {
			log.Warnf("equity chart journal read failed: %v", err)
		} else {
			trades = hist
		}
	}
	page, err := visual.RenderEquity("Equity", trades)
	if err != nil {
		if errors.Is(err, visual.ErrNoTrades) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return min(n, maxHistoryLimit)
}

func operatorOrAnon(c *gin.Context) string {
	if id := CurrentOperator(c); id != "" {
		return id
	}
	return "anonymous"
}
