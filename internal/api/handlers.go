package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"market-analyzer/internal/backtest"
	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
	"market-analyzer/internal/store/redis"
	"market-analyzer/internal/store/sqlite"
)

var errUnavailable = errors.New("not configured on this server")

// backtestRequest is the POST /api/v1/backtests body. Bars, when present,
// are used as is; otherwise they are loaded for the symbol over [from, to).
type backtestRequest struct {
	backtest.PlanRun
	Bars []model.Bar `json:"bars"`
}

// indicatorQuery is the GET /api/v1/indicators query string.
type indicatorQuery struct {
	Symbol string `form:"symbol" binding:"required"`
	From   string `form:"from"`
	To     string `form:"to"`
	Fast   int    `form:"fast" binding:"gte=0"`
	Slow   int    `form:"slow" binding:"gte=0"`
	Trend  int    `form:"trend" binding:"gte=0"`
	RSI    int    `form:"rsi" binding:"gte=0"`
}

// indicatorResponse is a Frame with its columns labeled and the RSI
// reference bands attached.
type indicatorResponse struct {
	Symbol  string             `json:"symbol"`
	Config  indicator.Config   `json:"config"`
	TS      []string           `json:"ts"`
	Close   []float64          `json:"close"`
	Columns []indicator.Column `json:"columns"`
	Bands   map[string]float64 `json:"rsi_bands"`
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health != nil {
		s.deps.Health.ServeHTTP(c.Writer, c.Request)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) websocket(c *gin.Context) {
	if s.deps.Hub == nil {
		writeError(c, errUnavailable)
		return
	}
	s.deps.Hub.ServeWS(c.Writer, c.Request)
}

func (s *Server) runBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.Symbol == "" {
		badRequest(c, errors.New("symbol required"))
		return
	}

	bars := req.Bars
	if len(bars) == 0 {
		from, to, err := req.Range()
		if err != nil {
			badRequest(c, err)
			return
		}
		if s.deps.Bars == nil {
			writeError(c, errUnavailable)
			return
		}
		if bars, err = s.deps.Bars.ReadBars(c.Request.Context(), req.Symbol, from, to); err != nil {
			writeError(c, err)
			return
		}
		if len(bars) == 0 {
			writeError(c, backtest.ErrNoBars)
			return
		}
	}

	ind, risk := req.Resolve(s.deps.Indicators, s.deps.Risk)
	rep, err := s.deps.Runner.Run(c.Request.Context(), backtest.Request{
		Symbol:     req.Symbol,
		Bars:       bars,
		Indicators: ind,
		Risk:       risk,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) getIndicators(c *gin.Context) {
	var q indicatorQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if s.deps.Bars == nil {
		writeError(c, errUnavailable)
		return
	}
	run := backtest.PlanRun{Symbol: q.Symbol, From: q.From, To: q.To,
		Fast: q.Fast, Slow: q.Slow, Trend: q.Trend, RSI: q.RSI}
	from, to, err := run.Range()
	if err != nil {
		badRequest(c, err)
		return
	}
	cfg, _ := run.Resolve(s.deps.Indicators, s.deps.Risk)

	bars, err := s.deps.Bars.ReadBars(c.Request.Context(), q.Symbol, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(bars) == 0 {
		writeError(c, backtest.ErrNoBars)
		return
	}
	frame, err := indicator.Compute(bars, cfg)
	if err != nil {
		writeError(c, err)
		return
	}

	ts := make([]string, len(frame.TS))
	for i, t := range frame.TS {
		ts[i] = t.Format("2006-01-02")
	}
	c.JSON(http.StatusOK, indicatorResponse{
		Symbol:  q.Symbol,
		Config:  cfg,
		TS:      ts,
		Close:   frame.Close,
		Columns: frame.Columns(),
		Bands: map[string]float64{
			"overbought": indicator.RSIOverbought,
			"oversold":   indicator.RSIOversold,
		},
	})
}

func (s *Server) getSymbols(c *gin.Context) {
	if s.deps.Symbols == nil {
		writeError(c, errUnavailable)
		return
	}
	syms, err := s.deps.Symbols.Symbols(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": syms})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.deps.Runs == nil {
		writeError(c, errUnavailable)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		badRequest(c, errors.New("limit must be between 1 and 500"))
		return
	}
	runs, err := s.deps.Runs.ListRuns(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	if s.deps.Runs == nil {
		writeError(c, errUnavailable)
		return
	}
	rep, err := s.deps.Runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// replay returns buffered envelopes for symbol with channel_seq in
// [from_seq, to_seq], optionally limited to one run_id.
func (s *Server) replay(c *gin.Context) {
	if s.deps.Hub == nil {
		writeError(c, errUnavailable)
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		badRequest(c, errors.New("symbol required"))
		return
	}
	channel := redis.ReportChannel(symbol)
	fromSeq, err1 := strconv.ParseInt(c.DefaultQuery("from_seq", "1"), 10, 64)
	toSeq, err2 := strconv.ParseInt(c.DefaultQuery("to_seq", strconv.FormatInt(s.deps.Hub.GetChannelSeq(channel), 10)), 10, 64)
	if err := errors.Join(err1, err2); err != nil {
		badRequest(c, err)
		return
	}

	msgs := s.deps.Hub.GetReplayRange(channel, fromSeq, toSeq, c.Query("run_id"))
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	c.Writer.WriteString("[")
	for i, m := range msgs {
		if i > 0 {
			c.Writer.WriteString(",")
		}
		c.Writer.Write(m)
	}
	c.Writer.WriteString("]")
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case backtest.IsInputError(err):
		status = http.StatusBadRequest
	case errors.Is(err, sqlite.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		slog.Error("api handler failed", "path", c.Request.URL.Path, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "class": backtest.Classify(err)})
}
