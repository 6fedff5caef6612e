package controllers

import (
	"net/http"

	"github.com/inkwell-labs/inkwell-backend/api/responses"
	"github.com/inkwell-labs/inkwell-backend/internal/pricing"
)

type modelPricePayload struct {
	Name           string  `json:"name"`
	Provider       string  `json:"provider"`
	InputPer1K     string  `json:"input_per_1k"`
	OutputPer1K    string  `json:"output_per_1k"`
	ReasoningPer1K *string `json:"reasoning_per_1k,omitempty"`
}

type servicePricePayload struct {
	Name        string `json:"name"`
	Multiplier  string `json:"multiplier"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type pricingResponse struct {
	Models   []modelPricePayload   `json:"models"`
	Services []servicePricePayload `json:"services"`
}

// Pricing exposes the static rate card so clients can show cost estimates.
func Pricing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := pricingResponse{}

		for _, name := range pricing.SupportedModels() {
			rate, err := pricing.ModelRateFor(name)
			if err != nil {
				continue
			}
			payload := modelPricePayload{
				Name:        name,
				Provider:    rate.Provider.String(),
				InputPer1K:  rate.InputPer1K.String(),
				OutputPer1K: rate.OutputPer1K.String(),
			}
			if rate.ReasoningPer1K != nil {
				s := rate.ReasoningPer1K.String()
				payload.ReasoningPer1K = &s
			}
			out.Models = append(out.Models, payload)
		}

		for _, name := range pricing.SupportedServices() {
			rate := pricing.ServiceRateFor(name)
			out.Services = append(out.Services, servicePricePayload{
				Name:        name,
				Multiplier:  rate.Multiplier.String(),
				Category:    rate.Category,
				Description: rate.Description,
			})
		}

		responses.WriteSuccess(w, out)
	}
}
