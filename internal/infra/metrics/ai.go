package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiTokensTotal,
		aiCostCaps,
		aiGenerations,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Sum of total tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCostCaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_caps",
			Help: "Total caps debited per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_generations_total",
			Help: "Completed generation streams per provider/model and outcome.",
		},
		[]string{"provider", "model", "success"},
	)
)

func ObserveGenerationUsage(provider, model string, tokensIn, tokensOut, tokensTotal int, costCaps int64, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiTokensTotal.WithLabelValues(lbl...).Add(float64(tokensTotal))
	aiCostCaps.WithLabelValues(lbl...).Add(float64(costCaps))
	aiGenerations.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).Inc()
}
