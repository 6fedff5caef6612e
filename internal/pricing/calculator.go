package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

var per1K = decimal.NewFromInt(1000)

// CostBreakdown is the full result of pricing one provider call.
type CostBreakdown struct {
	ModelName       string          `json:"model_name"`
	Provider        enums.Provider  `json:"provider"`
	ServiceName     string          `json:"service_name"`
	ServiceCategory string          `json:"service_category"`
	InputTokens     int64           `json:"input_tokens"`
	OutputTokens    int64           `json:"output_tokens"`
	ReasoningTokens int64           `json:"reasoning_tokens"`
	TotalTokens     int64           `json:"total_tokens"`
	InputCost       decimal.Decimal `json:"input_cost_usd"`
	OutputCost      decimal.Decimal `json:"output_cost_usd"`
	ReasoningCost   decimal.Decimal `json:"reasoning_cost_usd"`
	BaseCost        decimal.Decimal `json:"base_cost_usd"`
	Multiplier      decimal.Decimal `json:"multiplier"`
	ActualCharge    decimal.Decimal `json:"actual_charge_usd"`
}

// ComputeCost prices one call: per-1k token rates from the model table, then
// the service multiplier on top. Reasoning tokens bill at the model's
// reasoning rate when it has one, otherwise at the output rate.
func ComputeCost(serviceName, modelName string, inputTokens, outputTokens, reasoningTokens int64) (CostBreakdown, error) {
	if modelName == "" {
		modelName = DefaultModel
	}

	modelRate, err := ModelRateFor(modelName)
	if err != nil {
		return CostBreakdown{}, err
	}
	serviceRate := ServiceRateFor(serviceName)

	inputCost := tokenCost(inputTokens, modelRate.InputPer1K)
	outputCost := tokenCost(outputTokens, modelRate.OutputPer1K)

	reasoningCost := decimal.Zero
	if reasoningTokens > 0 {
		reasoningRate := modelRate.OutputPer1K
		if modelRate.ReasoningPer1K != nil {
			reasoningRate = *modelRate.ReasoningPer1K
		}
		reasoningCost = tokenCost(reasoningTokens, reasoningRate)
	}

	baseCost := inputCost.Add(outputCost).Add(reasoningCost)

	return CostBreakdown{
		ModelName:       modelName,
		Provider:        modelRate.Provider,
		ServiceName:     serviceName,
		ServiceCategory: serviceRate.Category,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		ReasoningTokens: reasoningTokens,
		TotalTokens:     inputTokens + outputTokens + reasoningTokens,
		InputCost:       inputCost,
		OutputCost:      outputCost,
		ReasoningCost:   reasoningCost,
		BaseCost:        baseCost,
		Multiplier:      serviceRate.Multiplier,
		ActualCharge:    baseCost.Mul(serviceRate.Multiplier),
	}, nil
}

// Sum combines breakdowns from multiple provider calls made by one job.
// Token counts and costs add; the model/provider fields reflect the first
// entry since a summed breakdown spans calls.
func Sum(breakdowns []CostBreakdown) CostBreakdown {
	if len(breakdowns) == 0 {
		return CostBreakdown{
			InputCost:     decimal.Zero,
			OutputCost:    decimal.Zero,
			ReasoningCost: decimal.Zero,
			BaseCost:      decimal.Zero,
			Multiplier:    DefaultMultiplier,
			ActualCharge:  decimal.Zero,
		}
	}

	total := breakdowns[0]
	for _, b := range breakdowns[1:] {
		total.InputTokens += b.InputTokens
		total.OutputTokens += b.OutputTokens
		total.ReasoningTokens += b.ReasoningTokens
		total.TotalTokens += b.TotalTokens
		total.InputCost = total.InputCost.Add(b.InputCost)
		total.OutputCost = total.OutputCost.Add(b.OutputCost)
		total.ReasoningCost = total.ReasoningCost.Add(b.ReasoningCost)
		total.BaseCost = total.BaseCost.Add(b.BaseCost)
		total.ActualCharge = total.ActualCharge.Add(b.ActualCharge)
	}
	return total
}

func tokenCost(tokens int64, ratePer1K decimal.Decimal) decimal.Decimal {
	if tokens <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(tokens).Div(per1K).Mul(ratePer1K)
}
