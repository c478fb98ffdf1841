package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/mirrorbot/types"
)

type Database struct {
	db *gorm.DB
}

// Models

// MirrorTrade is one executed (or simulated) mirror action.
type MirrorTrade struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	Mode      string          `gorm:"index"` // "dry-run" or "live"
	Side      string          `gorm:"index"`
	Asset     string          `gorm:"index"`
	Title     string
	Price     decimal.Decimal `gorm:"type:decimal(10,6)"`
	Shares    decimal.Decimal `gorm:"type:decimal(20,6)"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnL       decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt time.Time
}

// SessionSnapshot is a periodic account-state record for history charts.
type SessionSnapshot struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	Mode      string          `gorm:"index"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,6)"`
	TotalPnL  decimal.Decimal `gorm:"type:decimal(20,6)"`
	Positions int
	CreatedAt time.Time
}

// New opens the audit database: PostgreSQL when given a connection
// string, SQLite otherwise.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&MirrorTrade{}, &SessionSnapshot{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Trade operations

func (d *Database) LogTrade(rec types.TradeRecord, mode string) error {
	return d.db.Create(&MirrorTrade{
		Mode:   mode,
		Side:   string(rec.Side),
		Asset:  rec.Asset,
		Title:  rec.Title,
		Price:  rec.Price,
		Shares: rec.Shares,
		Amount: rec.Amount,
		PnL:    rec.PnL,
	}).Error
}

func (d *Database) RecentTrades(limit int) ([]MirrorTrade, error) {
	var trades []MirrorTrade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

func (d *Database) TotalPnL(mode string) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := d.db.Model(&MirrorTrade{}).
		Where("mode = ?", mode).
		Select("COALESCE(SUM(pn_l), 0) as total").
		Scan(&result).Error
	return result.Total, err
}

// Snapshot operations

func (d *Database) SaveSnapshot(mode string, balance, totalPnL decimal.Decimal, positions int) error {
	return d.db.Create(&SessionSnapshot{
		Mode:      mode,
		Balance:   balance,
		TotalPnL:  totalPnL,
		Positions: positions,
	}).Error
}

// Stats operations

func (d *Database) GetStats(mode string) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var tradeCount int64
	if err := d.db.Model(&MirrorTrade{}).Where("mode = ?", mode).Count(&tradeCount).Error; err != nil {
		return nil, err
	}
	stats["trades"] = tradeCount

	var sides []struct {
		Side  string
		Count int64
	}
	if err := d.db.Model(&MirrorTrade{}).
		Where("mode = ?", mode).
		Select("side, COUNT(*) as count").
		Group("side").
		Scan(&sides).Error; err != nil {
		return nil, err
	}
	for _, s := range sides {
		stats["trades_"+strings.ToLower(s.Side)] = s.Count
	}

	pnl, err := d.TotalPnL(mode)
	if err != nil {
		return nil, err
	}
	stats["total_pnl"] = pnl

	return stats, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
