package generation

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
)

// Service names under which generation work is metered.
const (
	BlogServiceName          = "blog_generation"
	FeaturedImageServiceName = "featured_image_generation"
)

// Job is the payload carried through the generation queue. One job is one
// end-to-end blog generation: stream, persist, bill, finalize.
type Job struct {
	JobID             uuid.UUID `json:"job_id"`
	UserID            uuid.UUID `json:"user_id"`
	Title             string    `json:"title"`
	SystemPrompt      string    `json:"system_prompt"`
	UserPrompt        string    `json:"user_prompt"`
	Formality         string    `json:"formality"`
	Keywords          []string  `json:"keywords,omitempty"`
	MaxTokens         int       `json:"max_tokens,omitempty"`
	Temperature       float64   `json:"temperature,omitempty"`
	WithFeaturedImage bool      `json:"with_featured_image,omitempty"`
}

// Validate checks the fields a worker cannot proceed without.
func (j Job) Validate() error {
	if j.JobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id is required")
	}
	if j.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(j.UserPrompt) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user prompt is required")
	}
	return nil
}
