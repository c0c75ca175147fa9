// Package store 用 Gorm + SQLite 落盘交易流水、拒绝事件与不变式告警。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"helmsman/internal/executor"
	"helmsman/internal/position"
	"helmsman/internal/scoring"
	"helmsman/internal/store/model"
)

type Journal struct {
	db *gorm.DB
}

func NewJournal(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: sqlite 路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.TradeModel{},
		&model.RejectionModel{},
		&model.ViolationModel{},
		&model.ExecutionEventModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 少量并行给 HTTP 读, 控制锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordTrade 落盘一条已平仓交易。重复 PositionID 直接忽略。
func (j *Journal) RecordTrade(ctx context.Context, pos *position.Position) error {
	if pos == nil || pos.State != position.StateClosed {
		return fmt.Errorf("journal: 只记录已平仓持仓")
	}
	planJSON, err := json.Marshal(pos.Plan)
	if err != nil {
		return fmt.Errorf("journal: 序列化 plan 失败: %w", err)
	}
	pnl := pos.UnrealizedPnL(pos.ExitPrice)
	rec := model.TradeModel{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        string(pos.Side),
		EntryPrice:  pos.EntryPrice.InexactFloat64(),
		ExitPrice:   pos.ExitPrice.InexactFloat64(),
		Size:        pos.Size.InexactFloat64(),
		Leverage:    pos.Leverage,
		RealizedPnL: pnl.InexactFloat64(),
		ExitKind:    pos.ExitKind,
		PlanJSON:    datatypes.JSON(planJSON),
		OpenedAt:    pos.OpenedAt.UnixMilli(),
		ClosedAt:    pos.ClosedAt.UnixMilli(),
	}
	return j.db.WithContext(ctx).
		Where(model.TradeModel{PositionID: pos.ID}).
		FirstOrCreate(&rec).Error
}

func (j *Journal) ListRecentTrades(ctx context.Context, limit int) ([]model.TradeModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.TradeModel
	err := j.db.WithContext(ctx).Order("closed_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (j *Journal) RecordRejection(ctx context.Context, ev scoring.RejectionEvent) error {
	scoreJSON, err := json.Marshal(ev.Score)
	if err != nil {
		return fmt.Errorf("journal: 序列化 score 失败: %w", err)
	}
	rec := model.RejectionModel{
		Symbol:     ev.Symbol,
		Reason:     ev.Reason,
		ScoreJSON:  datatypes.JSON(scoreJSON),
		OccurredAt: ev.OccurredAt.UnixMilli(),
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

func (j *Journal) ListRecentRejections(ctx context.Context, limit int) ([]model.RejectionModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.RejectionModel
	err := j.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (j *Journal) RecordViolation(ctx context.Context, v position.InvariantViolation) error {
	rec := model.ViolationModel{
		ViolationID: v.ID,
		Symbol:      v.Symbol,
		Description: v.Description,
		OccurredAt:  v.At.UnixMilli(),
	}
	return j.db.WithContext(ctx).
		Where(model.ViolationModel{ViolationID: v.ID}).
		FirstOrCreate(&rec).Error
}

func (j *Journal) ListViolations(ctx context.Context, limit int) ([]model.ViolationModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.ViolationModel
	err := j.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (j *Journal) RecordExecution(ctx context.Context, ev executor.Event) error {
	intentJSON, err := json.Marshal(ev.Intent)
	if err != nil {
		return fmt.Errorf("journal: 序列化 intent 失败: %w", err)
	}
	rec := model.ExecutionEventModel{
		Kind:       string(ev.Kind),
		IntentID:   ev.Intent.ID,
		Symbol:     ev.Intent.Symbol,
		IntentJSON: datatypes.JSON(intentJSON),
		Error:      ev.Error,
		OccurredAt: ev.At.UnixMilli(),
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

func (j *Journal) ListRecentExecutions(ctx context.Context, limit int) ([]model.ExecutionEventModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.ExecutionEventModel
	err := j.db.WithContext(ctx).Order("occurred_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
