package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AICallLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       *uuid.UUID     `gorm:"type:uuid;index" json:"job_id,omitempty"`
	CallType    string         `gorm:"column:call_type;not null" json:"call_type"`
	Model       string         `gorm:"column:model;not null" json:"model"`
	TokenBudget int            `gorm:"column:token_budget;not null;default:0" json:"token_budget"`
	PromptChars int            `gorm:"column:prompt_chars;not null;default:0" json:"prompt_chars"`
	OutputChars int            `gorm:"column:output_chars;not null;default:0" json:"output_chars"`
	DurationMS  int64          `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	Success     bool           `gorm:"column:success;not null" json:"success"`
	Error       string         `gorm:"column:error" json:"error"`
	Detail      datatypes.JSON `gorm:"type:jsonb;column:detail" json:"detail"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AICallLog) TableName() string {
	return "ai_call_log"
}
