// Package ai asks a Gemini model for a read-only review of the wallet.
// The review is advice only; nothing here places trades.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"bullwatch/internal/market"
	"bullwatch/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Recommendations and risk levels the model may answer with.
const (
	Buy  = "BUY"
	Sell = "SELL"
	Hold = "HOLD"

	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Analysis is the structured answer requested from the model.
type Analysis struct {
	Summary         string  `json:"analysis"`
	Recommendation  string  `json:"recommendation"` // BUY, SELL, HOLD
	Ticker          string  `json:"ticker,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"` // 0..1
	RiskAssessment  string  `json:"risk_assessment"`  // LOW, MEDIUM, HIGH
}

// HoldingContext is one position as the model sees it.
type HoldingContext struct {
	Ticker       string          `json:"ticker"`
	Quantity     decimal.Decimal `json:"quantity"`
	HoldingValue decimal.Decimal `json:"holding_value"`
	Weight       float64         `json:"weight_pct"`
	Change7d     float64         `json:"change_7d_pct"`
	Score        *float64        `json:"bullish_score,omitempty"`
	Band         market.Band     `json:"band,omitempty"`
}

// PortfolioSnapshot is the payload sent to the model.
type PortfolioSnapshot struct {
	Timestamp  string                `json:"timestamp"`
	Cash       decimal.Decimal       `json:"cash"`
	TotalValue decimal.Decimal       `json:"total_value"`
	Holdings   []HoldingContext      `json:"holdings"`
	TopBullish []models.BullishScore `json:"top_bullish"`
}

// NewSnapshot combines the wallet with today's scores and each holding's
// 7-day change (percent, keyed by upper-case ticker).
func NewSnapshot(w models.WalletSnapshot, scores []models.BullishScore, change7d map[string]float64, top int, now time.Time) PortfolioSnapshot {
	byTicker := make(map[string]float64, len(scores))
	for _, s := range scores {
		byTicker[strings.ToUpper(s.Ticker)] = s.Score
	}

	snap := PortfolioSnapshot{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Cash:       w.Cash,
		TotalValue: w.TotalValue,
		Holdings:   make([]HoldingContext, 0, len(w.Holdings)),
		TopBullish: market.TopBullish(scores, top),
	}
	for _, h := range w.Holdings {
		t := strings.ToUpper(h.Ticker)
		hc := HoldingContext{
			Ticker:       t,
			Quantity:     h.Quantity,
			HoldingValue: h.HoldingValue,
			Change7d:     change7d[t],
		}
		if w.TotalValue.IsPositive() {
			hc.Weight, _ = h.HoldingValue.Div(w.TotalValue).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		}
		if s, ok := byTicker[t]; ok {
			hc.Score = &s
			hc.Band = market.BandOf(s)
		}
		snap.Holdings = append(snap.Holdings, hc)
	}
	sort.Slice(snap.Holdings, func(i, j int) bool {
		return snap.Holdings[i].HoldingValue.GreaterThan(snap.Holdings[j].HoldingValue)
	})
	return snap
}

// SystemInstruction frames the review.
const SystemInstruction = `You review a paper-trading stock portfolio.
Scores come from a model that rates each ticker's bullishness in [0,1].
Answer with one JSON object: "analysis" (at most five sentences),
"recommendation" (BUY, SELL or HOLD), "ticker" (the ticker the
recommendation is about, empty for HOLD), "confidence_score" in [0,1],
and "risk_assessment" (LOW, MEDIUM or HIGH).
Never recommend a SELL of a ticker the portfolio does not hold.`

// Generator produces the model's raw JSON answer.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Client reviews portfolios through a Generator.
type Client struct {
	gen Generator
}

// New wraps gen.
func New(gen Generator) *Client { return &Client{gen: gen} }

// Analyze sends snap and decodes the answer.
func (c *Client) Analyze(ctx context.Context, snap PortfolioSnapshot) (Analysis, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return Analysis{}, fmt.Errorf("encode snapshot: %w", err)
	}
	raw, err := c.gen.Generate(ctx, SystemInstruction, "Analyze this portfolio state: "+string(payload))
	if err != nil {
		return Analysis{}, fmt.Errorf("ai: %w", err)
	}
	return parseAnalysis(raw, snap)
}

// parseAnalysis decodes and normalizes the answer. A SELL of something not
// held is downgraded to HOLD.
func parseAnalysis(raw string, snap PortfolioSnapshot) (Analysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var a Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &a); err != nil {
		return Analysis{}, fmt.Errorf("ai: parse model output: %w (raw: %.200s)", err, raw)
	}

	a.Recommendation = strings.ToUpper(strings.TrimSpace(a.Recommendation))
	switch a.Recommendation {
	case Buy, Sell, Hold:
	default:
		return Analysis{}, fmt.Errorf("ai: unknown recommendation %q", a.Recommendation)
	}
	a.RiskAssessment = strings.ToUpper(strings.TrimSpace(a.RiskAssessment))
	switch a.RiskAssessment {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		a.RiskAssessment = RiskMedium
	}
	a.Ticker = strings.ToUpper(strings.TrimSpace(a.Ticker))
	a.ConfidenceScore = min(max(a.ConfidenceScore, 0), 1)

	if a.Recommendation == Sell && !holds(snap, a.Ticker) {
		a.Recommendation, a.Ticker = Hold, ""
	}
	if a.Recommendation == Hold {
		a.Ticker = ""
	}
	return a, nil
}

func holds(snap PortfolioSnapshot, ticker string) bool {
	for _, h := range snap.Holdings {
		if h.Ticker == ticker && h.Quantity.IsPositive() {
			return true
		}
	}
	return false
}
