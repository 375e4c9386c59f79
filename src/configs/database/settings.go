package database

import (
	"time"

	"gorm.io/gorm"

	"pixname-server-go/src/configs"
)

// SettingRecord 持久化的重命名设置，键值对形式存储
type SettingRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;size:64"`
	Value     string `gorm:"size:512"`
	UpdatedAt time.Time
}

// RenameRecord 重命名历史记录，仅用于审计，不参与候选名生成
type RenameRecord struct {
	ID         uint   `gorm:"primaryKey"`
	OldPath    string `gorm:"size:512"`
	NewPath    string `gorm:"size:512"`
	Model      string `gorm:"size:128"`
	Backend    string `gorm:"size:32"`
	DurationMs int64
	CreatedAt  time.Time
}

// SettingsRepository 设置仓库
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// 数据库中可覆盖的设置键
const (
	KeyUseLocalModel = "use_local_model"
	KeyLocalPreset   = "local_server_preset"
	KeyDatePrefix    = "date_prefix"
	KeyCaseStyle     = "case_style"
	KeyAllowSpaces   = "allow_spaces"
	KeyCloudModel    = "cloud_model"
	KeyLocalModel    = "local_model"
)

// Overlay 将数据库中的设置覆盖到给定配置上，数据库不可用时原样返回
func (r *SettingsRepository) Overlay(settings configs.RenameSettings) configs.RenameSettings {
	if r == nil || r.db == nil {
		return settings
	}

	var records []SettingRecord
	if err := r.db.Find(&records).Error; err != nil {
		return settings
	}

	for _, rec := range records {
		switch rec.Key {
		case KeyUseLocalModel:
			settings.UseLocalModel = rec.Value == "true"
		case KeyLocalPreset:
			settings.LocalServerPreset = configs.LocalPreset(rec.Value)
		case KeyDatePrefix:
			settings.DatePrefix = rec.Value == "true"
		case KeyCaseStyle:
			settings.CaseStyle = configs.CaseStyle(rec.Value)
		case KeyAllowSpaces:
			settings.AllowSpaces = rec.Value == "true"
		case KeyCloudModel:
			settings.CloudModel = rec.Value
		case KeyLocalModel:
			settings.LocalModel = rec.Value
		}
	}

	settings.Normalize()
	return settings
}

// Put 写入或更新一个设置项
func (r *SettingsRepository) Put(key, value string) error {
	record := SettingRecord{Key: key, Value: value}
	return r.db.Where(SettingRecord{Key: key}).
		Assign(SettingRecord{Value: value}).
		FirstOrCreate(&record).Error
}

// RecordRename 记录一次成功的重命名
func (r *SettingsRepository) RecordRename(record *RenameRecord) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Create(record).Error
}
