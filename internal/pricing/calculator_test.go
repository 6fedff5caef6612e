package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	apperrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
)

func TestComputeCostAllKnownModels(t *testing.T) {
	const (
		inputTokens     = 1500
		outputTokens    = 700
		reasoningTokens = 200
	)

	for _, modelName := range SupportedModels() {
		modelRate, err := ModelRateFor(modelName)
		if err != nil {
			t.Fatalf("%s: rate lookup failed: %v", modelName, err)
		}

		got, err := ComputeCost("blog_generation", modelName, inputTokens, outputTokens, reasoningTokens)
		if err != nil {
			t.Fatalf("%s: ComputeCost error: %v", modelName, err)
		}

		reasoningRate := modelRate.OutputPer1K
		if modelRate.ReasoningPer1K != nil {
			reasoningRate = *modelRate.ReasoningPer1K
		}

		thousand := decimal.NewFromInt(1000)
		wantBase := decimal.NewFromInt(inputTokens).Div(thousand).Mul(modelRate.InputPer1K).
			Add(decimal.NewFromInt(outputTokens).Div(thousand).Mul(modelRate.OutputPer1K)).
			Add(decimal.NewFromInt(reasoningTokens).Div(thousand).Mul(reasoningRate))
		wantCharge := wantBase.Mul(decimal.NewFromFloat(5.0))

		if !got.BaseCost.Equal(wantBase) {
			t.Errorf("%s: base cost %s, want %s", modelName, got.BaseCost, wantBase)
		}
		if !got.ActualCharge.Equal(wantCharge) {
			t.Errorf("%s: charge %s, want %s", modelName, got.ActualCharge, wantCharge)
		}
		if got.TotalTokens != inputTokens+outputTokens+reasoningTokens {
			t.Errorf("%s: total tokens %d", modelName, got.TotalTokens)
		}
	}
}

func TestComputeCostSpecificValues(t *testing.T) {
	// claude-3-sonnet at $0.003/$0.015 per 1k, multiplier 5.0.
	got, err := ComputeCost("blog_generation", "claude-3-sonnet", 100, 50, 0)
	if err != nil {
		t.Fatalf("ComputeCost error: %v", err)
	}

	wantBase := decimal.NewFromFloat(0.00105)
	wantCharge := decimal.NewFromFloat(0.00525)
	if !got.BaseCost.Equal(wantBase) {
		t.Fatalf("base cost %s, want %s", got.BaseCost, wantBase)
	}
	if !got.ActualCharge.Equal(wantCharge) {
		t.Fatalf("charge %s, want %s", got.ActualCharge, wantCharge)
	}
	if got.Provider != enums.ProviderAnthropic {
		t.Fatalf("provider %s, want anthropic", got.Provider)
	}
}

func TestComputeCostReasoningFallsBackToOutputRate(t *testing.T) {
	// claude-3-5-sonnet has no dedicated reasoning rate.
	got, err := ComputeCost("blog_generation", "claude-3-5-sonnet-20241022", 0, 0, 1000)
	if err != nil {
		t.Fatalf("ComputeCost error: %v", err)
	}
	if !got.ReasoningCost.Equal(decimal.NewFromFloat(0.015)) {
		t.Fatalf("reasoning cost %s, want output rate 0.015", got.ReasoningCost)
	}

	// gpt-5 has an explicit reasoning rate.
	got, err = ComputeCost("blog_generation", "gpt-5", 0, 0, 1000)
	if err != nil {
		t.Fatalf("ComputeCost error: %v", err)
	}
	if !got.ReasoningCost.Equal(decimal.NewFromFloat(0.010)) {
		t.Fatalf("reasoning cost %s, want 0.010", got.ReasoningCost)
	}
}

func TestComputeCostUnknownModel(t *testing.T) {
	_, err := ComputeCost("blog_generation", "gpt-99", 100, 100, 0)
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeUnknownModel {
		t.Fatalf("expected UNKNOWN_MODEL code, got %v", err)
	}
}

func TestComputeCostUnknownServiceFallsBack(t *testing.T) {
	got, err := ComputeCost("brand-new-service", "gpt-4o", 1000, 0, 0)
	if err != nil {
		t.Fatalf("unknown service must not fail: %v", err)
	}
	if !got.Multiplier.Equal(decimal.NewFromFloat(5.0)) {
		t.Fatalf("multiplier %s, want default 5.0", got.Multiplier)
	}
	if got.ServiceCategory != "unknown" {
		t.Fatalf("category %q, want unknown", got.ServiceCategory)
	}
}

func TestComputeCostEmptyModelUsesDefault(t *testing.T) {
	got, err := ComputeCost("blog_generation", "", 1000, 0, 0)
	if err != nil {
		t.Fatalf("ComputeCost error: %v", err)
	}
	if got.ModelName != DefaultModel {
		t.Fatalf("model %q, want %q", got.ModelName, DefaultModel)
	}
}

func TestServiceRateConfiguredMultipliers(t *testing.T) {
	cases := map[string]float64{
		"outline_generation":        0.2,
		"outline_generation_claude": 8.0,
		"featured_image_generation": 8.0,
		"blog_generation":           5.0,
	}
	for service, want := range cases {
		got := ServiceRateFor(service)
		if !got.Multiplier.Equal(decimal.NewFromFloat(want)) {
			t.Errorf("%s: multiplier %s, want %v", service, got.Multiplier, want)
		}
	}
}

func TestSumBreakdowns(t *testing.T) {
	first, err := ComputeCost("blog_generation", "gpt-4o", 1000, 500, 0)
	if err != nil {
		t.Fatalf("ComputeCost error: %v", err)
	}
	second, err := ComputeCost("featured_image_generation", "gpt-4o", 200, 100, 0)
	if err != nil {
		t.Fatalf("ComputeCost error: %v", err)
	}

	total := Sum([]CostBreakdown{first, second})
	if total.InputTokens != 1200 || total.OutputTokens != 600 {
		t.Fatalf("summed tokens %d/%d", total.InputTokens, total.OutputTokens)
	}
	if !total.BaseCost.Equal(first.BaseCost.Add(second.BaseCost)) {
		t.Fatalf("summed base %s", total.BaseCost)
	}
	if !total.ActualCharge.Equal(first.ActualCharge.Add(second.ActualCharge)) {
		t.Fatalf("summed charge %s", total.ActualCharge)
	}

	empty := Sum(nil)
	if !empty.ActualCharge.IsZero() {
		t.Fatalf("empty sum charge %s", empty.ActualCharge)
	}
}

func TestModelsByProvider(t *testing.T) {
	openai := ModelsByProvider(enums.ProviderOpenAI)
	if len(openai) == 0 {
		t.Fatal("expected openai models")
	}
	for _, name := range openai {
		r, err := ModelRateFor(name)
		if err != nil {
			t.Fatalf("rate for %s: %v", name, err)
		}
		if r.Provider != enums.ProviderOpenAI {
			t.Fatalf("%s listed under openai with provider %s", name, r.Provider)
		}
	}
}
