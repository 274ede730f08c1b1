package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coinlens/coinlens/internal/alerts"
	"github.com/coinlens/coinlens/internal/planner"
	"github.com/coinlens/coinlens/internal/rebalance"
)

// AnalyzeRequest describes one portfolio analysis. Weights are fractions
// per symbol; holdings are asset amounts and only needed for rebalancing
// trade generation.
type AnalyzeRequest struct {
	Symbols    []string               `json:"symbols" binding:"required,min=1"`
	Weights    map[string]float64     `json:"weights" binding:"required"`
	Holdings   map[string]float64     `json:"holdings"`
	PnLPct     float64                `json:"pnlPct"`
	WindowDays int                    `json:"windowDays"`
	Benchmark  string                 `json:"benchmark"`
	Plan       string                 `json:"plan"`
	Policy     *alerts.Policy         `json:"policy"`
	Consts     *rebalance.Constraints `json:"constraints"`
}

// AnalyzeResponse carries the analysis results keyed by step name plus run
// metadata.
type AnalyzeResponse struct {
	RunID     string          `json:"runId"`
	Plan      string          `json:"plan"`
	Risk      any             `json:"risk,omitempty"`
	Health    any             `json:"health,omitempty"`
	Alerts    any             `json:"alerts,omitempty"`
	Rebalance any             `json:"rebalance,omitempty"`
	Narrative any             `json:"narrative,omitempty"`
	Events    []planner.Event `json:"events"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, initial, err := s.prepare(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.runner.Execute(c.Request.Context(), plan, initial, nil)
	if err != nil {
		var failure *planner.ToolFailure
		if errors.As(err, &failure) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "analysis failed",
				"step":  failure.Step,
				"tool":  failure.Tool,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, buildResponse(result))
}

func (s *Server) handleListPlans(c *gin.Context) {
	names := make([]string, 0, len(s.plans))
	for name := range s.plans {
		names = append(names, name)
	}
	c.JSON(http.StatusOK, gin.H{"plans": names, "default": s.defaultPlan})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// prepare selects the plan and builds the initial blackboard for a
// request, applying the configured defaults.
func (s *Server) prepare(req *AnalyzeRequest) (*planner.Plan, map[string]any, error) {
	planName := req.Plan
	if planName == "" {
		planName = s.defaultPlan
	}
	plan, ok := s.plans[planName]
	if !ok {
		return nil, nil, errors.New("unknown plan " + planName)
	}

	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = s.defaults.WindowDays
	}
	benchmark := req.Benchmark
	if benchmark == "" {
		benchmark = s.defaults.Benchmark
	}
	policy := s.defaults.Policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	constraints := s.defaults.Constraints
	if req.Consts != nil {
		constraints = *req.Consts
	}
	holdings := req.Holdings
	if holdings == nil {
		holdings = map[string]float64{}
	}

	initial := map[string]any{
		"symbols":     req.Symbols,
		"weights":     req.Weights,
		"holdings":    holdings,
		"pnlPct":      req.PnLPct,
		"windowDays":  windowDays,
		"benchmark":   benchmark,
		"policy":      policy,
		"constraints": constraints,
	}
	return plan, initial, nil
}

func buildResponse(result *planner.Result) AnalyzeResponse {
	resp := AnalyzeResponse{
		RunID:  result.RunID.String(),
		Plan:   result.Plan,
		Events: result.Events,
	}
	resp.Risk = result.Blackboard["risk"]
	resp.Health = result.Blackboard["health"]
	resp.Alerts = result.Blackboard["alerts"]
	resp.Rebalance = result.Blackboard["rebalance"]
	resp.Narrative = result.Blackboard["narrative"]
	return resp
}
