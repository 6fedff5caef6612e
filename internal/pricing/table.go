package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	apperrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
)

// DefaultModel is billed when a caller does not specify one.
const DefaultModel = "gpt-4o"

// DefaultMultiplier applies to services with no configured markup.
var DefaultMultiplier = decimal.NewFromFloat(5.0)

// ModelRate holds per-1000-token USD rates for one model. Reasoning is nil
// for models without a dedicated reasoning rate; those bill reasoning tokens
// at the output rate.
type ModelRate struct {
	Provider       enums.Provider
	InputPer1K     decimal.Decimal
	OutputPer1K    decimal.Decimal
	ReasoningPer1K *decimal.Decimal
}

// ServiceRate describes the markup policy for one billable service.
type ServiceRate struct {
	Multiplier  decimal.Decimal
	Description string
	Category    string
}

func rate(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func ratePtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

var modelRates = map[string]ModelRate{
	"gpt-4o": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.0025),
		OutputPer1K: rate(0.010),
	},
	"chatgpt-4o-latest": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.005),
		OutputPer1K: rate(0.015),
	},
	"gpt-4o-mini-2024-07-18": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.00015),
		OutputPer1K: rate(0.0006),
	},
	"gpt-4.1-mini": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.00015),
		OutputPer1K: rate(0.0006),
	},
	"gpt-4": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.03),
		OutputPer1K: rate(0.06),
	},
	"gpt-4-turbo": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.01),
		OutputPer1K: rate(0.03),
	},
	"gpt-3.5-turbo": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.0005),
		OutputPer1K: rate(0.0015),
	},
	"o1": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.015),
		OutputPer1K: rate(0.060),
	},
	"o1-mini": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.003),
		OutputPer1K: rate(0.012),
	},
	"gpt-4.1-2025-04-14": {
		Provider:    enums.ProviderOpenAI,
		InputPer1K:  rate(0.002),
		OutputPer1K: rate(0.008),
	},
	"gpt-5": {
		Provider:       enums.ProviderOpenAI,
		InputPer1K:     rate(0.00125),
		OutputPer1K:    rate(0.010),
		ReasoningPer1K: ratePtr(0.010),
	},
	"claude-3-5-sonnet-20241022": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.003),
		OutputPer1K: rate(0.015),
	},
	"claude-3-opus": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.015),
		OutputPer1K: rate(0.075),
	},
	"claude-opus-4-20250514": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.015),
		OutputPer1K: rate(0.075),
	},
	"claude-opus-4-1": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.015),
		OutputPer1K: rate(0.075),
	},
	"claude-haiku-4-5-20251001": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.00025),
		OutputPer1K: rate(0.00125),
	},
	"claude-3-sonnet": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.003),
		OutputPer1K: rate(0.015),
	},
	"claude-3-haiku": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.00025),
		OutputPer1K: rate(0.00125),
	},
	"claude-3-7-sonnet-20250219": {
		Provider:    enums.ProviderAnthropic,
		InputPer1K:  rate(0.003),
		OutputPer1K: rate(0.015),
	},
	// Winston bills a flat per-1k credit rate; both directions use it.
	"winston-ai-plagiarism": {
		Provider:    enums.ProviderWinston,
		InputPer1K:  rate(0.025),
		OutputPer1K: rate(0.025),
	},
}

var serviceRates = map[string]ServiceRate{
	"category_selection": {
		Multiplier:  rate(5.0),
		Description: "Blog content generation service",
		Category:    "content_creation",
	},
	"meta_description": {
		Multiplier:  rate(5.0),
		Description: "Meta description generation service",
		Category:    "content_creation",
	},
	"keyword_research": {
		Multiplier:  rate(5.0),
		Description: "SEO keyword research service",
		Category:    "seo_tools",
	},
	"content_analysis": {
		Multiplier:  rate(5.0),
		Description: "Content analysis and optimization",
		Category:    "content_optimization",
	},
	"title_generation": {
		Multiplier:  rate(5.0),
		Description: "Title and headline generation",
		Category:    "content_creation",
	},
	"outline_creation": {
		Multiplier:  rate(5.0),
		Description: "Content outline creation",
		Category:    "content_planning",
	},
	"outline_generation": {
		Multiplier:  rate(0.2),
		Description: "Basic outline generation service",
		Category:    "content_planning",
	},
	"outline_generation_suggestion": {
		Multiplier:  rate(5.0),
		Description: "Advanced outline generation with web research",
		Category:    "content_planning",
	},
	"outline_generation_claude": {
		Multiplier:  rate(8.0),
		Description: "Premium outline generation using Claude Opus with advanced reasoning",
		Category:    "content_planning",
	},
	"secondary_keywords_generation": {
		Multiplier:  rate(5.0),
		Description: "AI-powered secondary keyword generation with intent analysis",
		Category:    "seo_tools",
	},
	"secondary_keywords_manual": {
		Multiplier:  rate(5.0),
		Description: "Manual secondary keyword analysis and intent classification",
		Category:    "seo_tools",
	},
	"add_custom_source": {
		Multiplier:  rate(5.0),
		Description: "Custom source addition and processing with AI analysis",
		Category:    "content_research",
	},
	"sources_upload_doc": {
		Multiplier:  rate(5.0),
		Description: "Document upload and AI-powered content extraction",
		Category:    "content_research",
	},
	"sources_generation": {
		Multiplier:  rate(5.0),
		Description: "High-volume streaming source collection with batch processing",
		Category:    "content_research",
	},
	"primary_keywords": {
		Multiplier:  rate(5.0),
		Description: "Primary keyword search with AI intent analysis",
		Category:    "seo_tools",
	},
	"primary_related_keywords": {
		Multiplier:  rate(5.0),
		Description: "Related keyword research with batch AI intent analysis",
		Category:    "seo_tools",
	},
	"blog_generation": {
		Multiplier:  rate(5.0),
		Description: "Full blog generation with specialty detection and content processing",
		Category:    "content_creation",
	},
	"plagiarism_checker": {
		Multiplier:  rate(5.0),
		Description: "Plagiarism detection and content originality analysis",
		Category:    "content_optimization",
	},
	"outline_generation_streaming": {
		Multiplier:  rate(5.0),
		Description: "Streaming outline generation with real-time AI processing",
		Category:    "content_planning",
	},
	"text_shortening": {
		Multiplier:  rate(5.0),
		Description: "AI-powered text shortening with SEO preservation",
		Category:    "content_optimization",
	},
	"convert_to_table": {
		Multiplier:  rate(5.0),
		Description: "AI-powered table conversion with SEO preservation",
		Category:    "content_optimization",
	},
	"featured_image_generation": {
		Multiplier:  rate(8.0),
		Description: "AI-powered featured image generation",
		Category:    "content_creation",
	},
}

// ModelRateFor looks up the rate card for a model. Unknown models are a hard
// failure so an undefined amount is never charged.
func ModelRateFor(modelName string) (ModelRate, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	r, ok := modelRates[modelName]
	if !ok {
		return ModelRate{}, apperrors.New(apperrors.CodeUnknownModel,
			fmt.Sprintf("model %q not found in pricing table", modelName))
	}
	return r, nil
}

// ServiceRateFor returns the markup policy for a service. Unknown services
// fall back to the default multiplier so new services stay billable while
// pricing is being configured.
func ServiceRateFor(serviceName string) ServiceRate {
	if r, ok := serviceRates[serviceName]; ok {
		return r
	}
	return ServiceRate{
		Multiplier:  DefaultMultiplier,
		Description: fmt.Sprintf("Unknown service: %s", serviceName),
		Category:    "unknown",
	}
}

// SupportedModels returns all priced model names, sorted.
func SupportedModels() []string {
	names := make([]string, 0, len(modelRates))
	for name := range modelRates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelsByProvider returns the priced model names for one provider, sorted.
func ModelsByProvider(provider enums.Provider) []string {
	names := []string{}
	for name, r := range modelRates {
		if r.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SupportedServices returns all configured billable service names, sorted.
func SupportedServices() []string {
	names := make([]string, 0, len(serviceRates))
	for name := range serviceRates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceCategories returns the distinct configured service categories, sorted.
func ServiceCategories() []string {
	seen := map[string]struct{}{}
	for _, r := range serviceRates {
		seen[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}
