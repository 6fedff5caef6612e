package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/inkwell-labs/inkwell-backend/pkg/db/types"
	"github.com/inkwell-labs/inkwell-backend/pkg/enums"
)

// BlogDocument is the persisted artifact of a completed generation job.
type BlogDocument struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	JobID     uuid.UUID           `gorm:"column:job_id;type:uuid;not null;uniqueIndex"`
	UserID    uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Title     string              `gorm:"column:title;not null"`
	Content   string              `gorm:"column:content;type:text;not null"`
	WordCount int                 `gorm:"column:word_count;not null;default:0"`
	Keywords  dbtypes.StringArray `gorm:"type:text[];column:keywords;not null;default:ARRAY[]::text[]"`
	Provider  enums.Provider      `gorm:"column:provider;not null"`
	ModelName string              `gorm:"column:model_name;not null"`
	Metadata  json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
