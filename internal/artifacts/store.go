package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwell-labs/inkwell-backend/pkg/db/models"
	dbtypes "github.com/inkwell-labs/inkwell-backend/pkg/db/types"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
	pkgerrors "github.com/inkwell-labs/inkwell-backend/pkg/errors"
)

// ErrNotFound is returned when no artifact exists for a job.
var ErrNotFound = errors.New("artifact not found")

// Artifact is the persisted result of one generation job.
type Artifact struct {
	UserID    uuid.UUID
	Title     string
	Content   string
	Thinking  string
	WordCount int
	Keywords  []string
	Provider  enums.Provider
	ModelName string
}

// Store persists generated artifacts. An un-persisted result is unusable,
// so a Save failure is fatal for the job even after a successful stream.
type Store interface {
	Save(ctx context.Context, jobID uuid.UUID, artifact Artifact) error
	Get(ctx context.Context, jobID uuid.UUID) (*Artifact, error)
}

// GormStore implements Store over the blog_documents table. A re-run of the
// same job replaces the document, which keeps whole-job retries idempotent
// at the artifact layer.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore builds the database-backed artifact store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &GormStore{db: db}, nil
}

type artifactMetadata struct {
	Thinking string `json:"thinking,omitempty"`
}

func (s *GormStore) Save(ctx context.Context, jobID uuid.UUID, artifact Artifact) error {
	if jobID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "job id is required")
	}
	if strings.TrimSpace(artifact.Content) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "artifact content is required")
	}

	metadata, err := json.Marshal(artifactMetadata{Thinking: artifact.Thinking})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal artifact metadata")
	}

	doc := models.BlogDocument{
		ID:        uuid.New(),
		JobID:     jobID,
		UserID:    artifact.UserID,
		Title:     artifact.Title,
		Content:   artifact.Content,
		WordCount: artifact.WordCount,
		Keywords:  dbtypes.StringArray(artifact.Keywords),
		Provider:  artifact.Provider,
		ModelName: artifact.ModelName,
		Metadata:  metadata,
	}
	if doc.Keywords == nil {
		doc.Keywords = dbtypes.StringArray{}
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "content", "word_count", "keywords", "provider", "model_name", "metadata", "updated_at",
			}),
		}).
		Create(&doc).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save artifact")
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, jobID uuid.UUID) (*Artifact, error) {
	var doc models.BlogDocument
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load artifact")
	}

	var metadata artifactMetadata
	if len(doc.Metadata) > 0 {
		// Metadata is informational; a decode failure must not hide the content.
		_ = json.Unmarshal(doc.Metadata, &metadata)
	}

	return &Artifact{
		UserID:    doc.UserID,
		Title:     doc.Title,
		Content:   doc.Content,
		Thinking:  metadata.Thinking,
		WordCount: doc.WordCount,
		Keywords:  []string(doc.Keywords),
		Provider:  doc.Provider,
		ModelName: doc.ModelName,
	}, nil
}
