package model

import (
	"time"

	"gorm.io/datatypes"
)

// PreferenceKeyDecisionSpec 最近一次 DecisionSpec 的固定键。
const PreferenceKeyDecisionSpec = "decision_spec"

// Preference 按固定键存放的不透明 JSON，不加密也不做版本管理。
// CreatedAt/UpdatedAt 由 GORM 自动维护。
type Preference struct {
	Key       string         `gorm:"primaryKey" json:"key"`
	Value     datatypes.JSON `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
