package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

const (
	defaultResultLimit = 100
	maxResultLimit     = 500
)

type handlers struct {
	cfg ServerConfig
}

type summaryResponse struct {
	domain.DashboardSummary
	LastError string `json:"last_error,omitempty"`
}

type riskResponse struct {
	Settings  domain.RiskSettings        `json:"settings"`
	Breaker   domain.CircuitBreakerState `json:"breaker"`
	Portfolio portfolioView              `json:"portfolio"`
}

type holdingView struct {
	Quantity float64 `json:"quantity"`
	Value    float64 `json:"value"`
}

type portfolioView struct {
	NAV              float64                `json:"nav"`
	Cash             float64                `json:"cash"`
	PeakEquity       float64                `json:"peak_equity"`
	Drawdown         float64                `json:"drawdown"`
	DeployedFraction float64                `json:"deployed_fraction"`
	Positions        map[string]holdingView `json:"positions"`
	AsOf             *time.Time             `json:"as_of,omitempty"`
}

type resultView struct {
	SignalID        string     `json:"signal_id"`
	Symbol          string     `json:"symbol"`
	Side            string     `json:"side"`
	Strategy        string     `json:"strategy"`
	Confidence      float64    `json:"confidence"`
	EntryPrice      float64    `json:"entry_price"`
	Status          string     `json:"status"`
	RiskCheckPassed bool       `json:"risk_check_passed"`
	PositionSize    int64      `json:"position_size"`
	OrderID         string     `json:"order_id,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	QualityScore    float64    `json:"quality_score"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func toPortfolioView(p domain.PortfolioSnapshot) portfolioView {
	v := portfolioView{
		NAV:              p.NAV,
		Cash:             p.Cash,
		PeakEquity:       p.PeakEquity,
		Drawdown:         p.Drawdown,
		DeployedFraction: p.DeployedFraction(),
		Positions:        make(map[string]holdingView, len(p.Positions)),
	}
	for sym, h := range p.Positions {
		v.Positions[sym] = holdingView{Quantity: h.Quantity, Value: h.Value}
	}
	if !p.AsOf.IsZero() {
		asOf := p.AsOf
		v.AsOf = &asOf
	}
	return v
}

func toResultView(r domain.ExecutionResult) resultView {
	v := resultView{
		SignalID:        r.Signal.ID,
		Symbol:          r.Signal.Symbol,
		Side:            string(r.Signal.Side),
		Strategy:        r.Signal.StrategyName,
		Confidence:      r.Signal.Confidence,
		EntryPrice:      r.Signal.EntryPrice,
		Status:          string(r.Status),
		RiskCheckPassed: r.RiskCheckPassed,
		PositionSize:    r.PositionSize,
		OrderID:         r.OrderID,
		RejectionReason: r.RejectionReason,
		QualityScore:    r.QualityScore,
		CreatedAt:       r.CreatedAt,
	}
	if !r.CompletedAt.IsZero() {
		done := r.CompletedAt
		v.CompletedAt = &done
	}
	return v
}

func (h *handlers) summary(c *gin.Context) {
	c.JSON(http.StatusOK, summaryResponse{
		DashboardSummary: h.cfg.Summary.Summary(),
		LastError:        h.cfg.Summary.LastError(),
	})
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Summary.Summary().Stats)
}

func (h *handlers) risk(c *gin.Context) {
	c.JSON(http.StatusOK, riskResponse{
		Settings:  h.cfg.Risk.Settings(),
		Breaker:   h.cfg.Risk.Breaker().State(),
		Portfolio: toPortfolioView(h.cfg.Risk.Portfolio()),
	})
}

// resetBreaker is the manual acknowledgement path for a tripped breaker.
func (h *handlers) resetBreaker(c *gin.Context) {
	breaker := h.cfg.Risk.Breaker()
	if !breaker.Reset() {
		c.JSON(http.StatusConflict, gin.H{"error": "circuit breaker is not tripped", "breaker": breaker.State()})
		return
	}
	state := breaker.State()
	h.cfg.Logger.Warn(c.Request.Context(), "Circuit breaker reset by operator", map[string]interface{}{"ip": c.ClientIP()})
	if h.cfg.OnBreakerReset != nil {
		h.cfg.OnBreakerReset(state)
	}
	c.JSON(http.StatusOK, gin.H{"breaker": state})
}

func (h *handlers) results(c *gin.Context) {
	filter := ports.ResultFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Status: domain.ExecutionStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Limit:  defaultResultLimit,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = min(n, maxResultLimit)
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		filter.Since = since
	}

	rows, err := h.cfg.Audit.ListResults(c.Request.Context(), filter)
	if err != nil {
		h.cfg.Logger.Error(c.Request.Context(), err, "Listing audit results failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit store unavailable"})
		return
	}
	out := make([]resultView, 0, len(rows))
	for _, r := range rows {
		out = append(out, toResultView(r))
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "count": len(out)})
}

func (h *handlers) resultCounts(c *gin.Context) {
	counts, err := h.cfg.Audit.CountByStatus(c.Request.Context())
	if err != nil {
		h.cfg.Logger.Error(c.Request.Context(), err, "Counting audit results failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit store unavailable"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *handlers) start(c *gin.Context) {
	// The supervisor outlives the request.
	if err := h.cfg.Control.Start(context.WithoutCancel(c.Request.Context())); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "state": h.cfg.Summary.Summary().State})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.cfg.Summary.Summary().State})
}

func (h *handlers) stop(c *gin.Context) {
	h.cfg.Control.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": h.cfg.Summary.Summary().State})
}
