package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/tradereplay/agent"
	"github.com/rustyeddy/tradereplay/config"
	"github.com/rustyeddy/tradereplay/internal/logger"
	"github.com/rustyeddy/tradereplay/journal"
	"github.com/rustyeddy/tradereplay/ledger"
	"github.com/rustyeddy/tradereplay/market"
	"github.com/rustyeddy/tradereplay/pkg/id"
	"github.com/rustyeddy/tradereplay/replay"
)

// RunRequest asks for one replay. Zero account fields take the engine
// defaults.
type RunRequest struct {
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	StartDate      string         `json:"start_date" binding:"required"`
	EndDate        string         `json:"end_date" binding:"required"`
	AgentType      string         `json:"agent_type"`
	AgentParams    map[string]any `json:"agent_params"`
	InitialCapital float64        `json:"initial_capital"`
	PositionSize   float64        `json:"position_size"`
	Leverage       float64        `json:"leverage"`
	Commission     *float64       `json:"commission"`
	Speed          float64        `json:"speed"`
	StartBar       int            `json:"start_bar"`
}

func (r *RunRequest) withDefaults() {
	if r.Symbol == "" {
		r.Symbol = "XRPUSDT"
	}
	if r.Timeframe == "" {
		r.Timeframe = "5m"
	}
	if r.AgentType == "" {
		r.AgentType = "orderflow"
	}
}

func (r RunRequest) options() replay.Options {
	opts := replay.DefaultOptions()
	if r.InitialCapital != 0 {
		opts.InitialCapital = r.InitialCapital
	}
	if r.PositionSize != 0 {
		opts.PositionSize = r.PositionSize
	}
	if r.Leverage != 0 {
		opts.Leverage = r.Leverage
	}
	if r.Commission != nil {
		opts.Commission = *r.Commission
	}
	return opts
}

type Candle struct {
	Time  int64   `json:"time"` // unix seconds
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type RunResponse struct {
	Success     bool                      `json:"success"`
	RunID       string                    `json:"run_id"`
	Status      replay.Status             `json:"status"`
	TotalTrades int                       `json:"total_trades"`
	Wins        int                       `json:"wins"`
	Losses      int                       `json:"losses"`
	WinRate     float64                   `json:"win_rate"`
	ReturnPct   float64                   `json:"return_pct"`
	Equity      float64                   `json:"equity"`
	Trades      []ledger.Trade            `json:"trades"`
	DecisionLog []replay.DecisionLogEntry `json:"decision_log"`
	EquityCurve []replay.EquityPoint      `json:"equity_curve"`
	Candles     []Candle                  `json:"candles"`
}

func candles(s market.Series) []Candle {
	out := make([]Candle, len(s))
	for i, b := range s {
		out[i] = Candle{Time: b.Time.Unix(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "source": s.source.Name(), "journal": s.journal != nil})
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": agent.List()})
}

// fetch loads the bars a request names. The error is already an HTTP
// status plus message.
func (s *Server) fetch(c *gin.Context, r RunRequest) (market.Series, bool) {
	data := config.DataConfig{Symbol: r.Symbol, Timeframe: r.Timeframe, Start: r.StartDate, End: r.EndDate}
	req, err := data.Request()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if _, err := market.ParseTimeframe(r.Timeframe); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	series, err := s.source.Fetch(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(series) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no data fetched"})
		return nil, false
	}
	return series, true
}

func (s *Server) handleRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.withDefaults()
	if req.Speed < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "speed must not be negative"})
		return
	}

	series, ok := s.fetch(c, req)
	if !ok {
		return
	}

	a, err := agent.New(req.AgentType, req.AgentParams)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := agent.Prepare(a, series); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eng, err := replay.NewEngine(series, a, req.options())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := id.New()
	if s.journal != nil {
		rec := journal.NewRecorder(s.journal, runID, req.Symbol)
		rec.SkipHolds = true
		rec.Attach(eng)
	}

	res, err := eng.Run(c.Request.Context(), req.Speed, req.StartBar)
	s.recordRun(c, runID, req, res)
	if err != nil {
		var ae *replay.AgentError
		if errors.As(err, &ae) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "run_id": runID, "status": res.Status})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, RunResponse{
		Success:     true,
		RunID:       runID,
		Status:      res.Status,
		TotalTrades: res.TotalTrades,
		Wins:        res.Wins,
		Losses:      res.Losses,
		WinRate:     res.WinRate,
		ReturnPct:   res.ReturnPct,
		Equity:      res.Equity,
		Trades:      res.Trades,
		DecisionLog: res.DecisionLog,
		EquityCurve: res.EquityCurve,
		Candles:     candles(series),
	})
}

func (s *Server) recordRun(c *gin.Context, runID string, req RunRequest, res replay.Results) {
	if s.journal == nil {
		return
	}
	params := "{}"
	if len(req.AgentParams) > 0 {
		if b, err := json.Marshal(req.AgentParams); err == nil {
			params = string(b)
		}
	}
	rr := journal.NewRunRecord(journal.RunMeta{
		RunID:     runID,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Dataset:   fmt.Sprintf("%s %s..%s", s.source.Name(), req.StartDate, req.EndDate),
		Agent:     req.AgentType,
		Params:    params,
	}, res)
	if err := s.journal.RecordRun(c.Request.Context(), rr); err != nil {
		logger.Warnf("[server] record run %s: %v", runID, err)
	}
}

type CompareRequest struct {
	RunRequest
	Agents []struct {
		Name   string         `json:"name"`
		Type   string         `json:"type" binding:"required"`
		Params map[string]any `json:"params"`
	} `json:"agents" binding:"required,min=1"`
}

func (s *Server) handleCompare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.withDefaults()

	series, ok := s.fetch(c, req.RunRequest)
	if !ok {
		return
	}

	contenders := make([]replay.Contender, 0, len(req.Agents))
	for _, ac := range req.Agents {
		a, err := agent.New(ac.Type, ac.Params)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name := ac.Name
		if name == "" {
			name = ac.Type
		}
		contenders = append(contenders, replay.Contender{Name: name, Agent: a})
	}

	outcomes, err := replay.Compare(c.Request.Context(), series, req.options(), req.StartBar, contenders)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "outcomes": outcomes})
}

func (s *Server) requireJournal(c *gin.Context) bool {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal not configured"})
		return false
	}
	return true
}

func (s *Server) handleRunList(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	runs, err := s.journal.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	run, err := s.journal.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	trades, err := s.journal.ListTradesByRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	if !s.requireJournal(c) {
		return
	}
	equity, err := s.journal.ListEquityByRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}
