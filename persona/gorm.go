package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/paneltalk/types"
)

// =============================================================================
// 🗄️ SQLite 档案库
// =============================================================================

// personaRow 是档案的存储行。Keywords 以 JSON 数组存储。
type personaRow struct {
	Name         string `gorm:"primaryKey;size:128"`
	DisplayName  string `gorm:"size:256"`
	Role         string `gorm:"size:32"`
	Instructions string
	Keywords     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 指定表名
func (personaRow) TableName() string { return "personas" }

// GormStore 基于 SQLite 的档案库，纯 Go 驱动，无 cgo 依赖。
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLite 打开 SQLite 档案库并自动建表。dsn 可以是文件路径或 ":memory:"。
func OpenSQLite(dsn string, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	if err := db.AutoMigrate(&personaRow{}); err != nil {
		return nil, fmt.Errorf("migrate personas table: %w", err)
	}

	logger.Info("persona store opened", zap.String("dsn", dsn))
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "persona_gorm_store")),
	}, nil
}

// Close 关闭底层连接。
func (gs *GormStore) Close() error {
	sqlDB, err := gs.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Stats 返回底层连接池状态，供指标采样。
func (gs *GormStore) Stats() (open, idle int) {
	sqlDB, err := gs.db.DB()
	if err != nil {
		return 0, 0
	}
	s := sqlDB.Stats()
	return s.OpenConnections, s.Idle
}

// =============================================================================
// 🎯 Store 实现
// =============================================================================

// Get 按名称取档案。
func (gs *GormStore) Get(ctx context.Context, name string) (*types.Speaker, error) {
	var row personaRow
	err := gs.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("query persona %q: %w", name, err)
	}
	return rowToSpeaker(&row)
}

// List 返回全部档案，按名称字典序。
func (gs *GormStore) List(ctx context.Context) ([]*types.Speaker, error) {
	var rows []personaRow
	if err := gs.db.WithContext(ctx).Order("name asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}

	out := make([]*types.Speaker, 0, len(rows))
	for i := range rows {
		sp, err := rowToSpeaker(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}

// Put 新建或整体覆盖档案（按主键 upsert）。
func (gs *GormStore) Put(ctx context.Context, sp *types.Speaker) error {
	if err := Validate(sp); err != nil {
		return err
	}

	row, err := speakerToRow(sp)
	if err != nil {
		return err
	}

	err = gs.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "role", "instructions", "keywords", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("put persona %q: %w", sp.Name, err)
	}
	return nil
}

// Delete 删除档案。
func (gs *GormStore) Delete(ctx context.Context, name string) error {
	res := gs.db.WithContext(ctx).Delete(&personaRow{}, "name = ?", name)
	if res.Error != nil {
		return fmt.Errorf("delete persona %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(name)
	}
	return nil
}

var _ Store = (*GormStore)(nil)

// =============================================================================
// 🔄 行与领域类型互转
// =============================================================================

func speakerToRow(sp *types.Speaker) (*personaRow, error) {
	keywords, err := json.Marshal(sp.Keywords)
	if err != nil {
		return nil, fmt.Errorf("encode keywords: %w", err)
	}
	return &personaRow{
		Name:         sp.Name,
		DisplayName:  sp.DisplayName,
		Role:         string(sp.Role),
		Instructions: sp.Instructions,
		Keywords:     string(keywords),
	}, nil
}

func rowToSpeaker(row *personaRow) (*types.Speaker, error) {
	sp := &types.Speaker{
		Name:         row.Name,
		DisplayName:  row.DisplayName,
		Role:         types.Role(row.Role),
		Instructions: row.Instructions,
	}
	if row.Keywords != "" {
		if err := json.Unmarshal([]byte(row.Keywords), &sp.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords for %q: %w", row.Name, err)
		}
	}
	return sp, nil
}
