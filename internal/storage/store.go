package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"deal-ranker/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 封装 SQLite 访问，只保存偏好 JSON。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&model.Preference{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// SavePreference 以 JSON 写入 value，键已存在则覆盖。
func (s *Store) SavePreference(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal preference %s: %w", key, err)
	}
	pref := model.Preference{Key: key, Value: datatypes.JSON(data), UpdatedAt: time.Now().UTC()}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref)
	if tx.Error != nil {
		return fmt.Errorf("save preference %s: %w", key, tx.Error)
	}
	return nil
}

// LoadPreference 读取键对应的 JSON 到 dest，键不存在时返回 false。
func (s *Store) LoadPreference(ctx context.Context, key string, dest any) (bool, error) {
	var pref model.Preference
	if err := s.db.WithContext(ctx).Where(&model.Preference{Key: key}).First(&pref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load preference %s: %w", key, err)
	}
	if err := json.Unmarshal(pref.Value, dest); err != nil {
		return false, fmt.Errorf("decode preference %s: %w", key, err)
	}
	return true, nil
}

// SaveDecisionSpec 保存最近一次 DecisionSpec。
func (s *Store) SaveDecisionSpec(ctx context.Context, spec model.DecisionSpec) error {
	return s.SavePreference(ctx, model.PreferenceKeyDecisionSpec, spec)
}

// LoadDecisionSpec 未保存过时返回 (nil, nil)。
func (s *Store) LoadDecisionSpec(ctx context.Context) (*model.DecisionSpec, error) {
	var spec model.DecisionSpec
	ok, err := s.LoadPreference(ctx, model.PreferenceKeyDecisionSpec, &spec)
	if err != nil || !ok {
		return nil, err
	}
	return &spec, nil
}
