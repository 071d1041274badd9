package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"perpbot/internal/gateway/exchange"
	"perpbot/internal/risk"
	"perpbot/internal/strategy"
	"perpbot/internal/trader"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var errClosed = errors.New("journal 未初始化")

// Journal 把交易与风控熔断事件追加写入 sqlite，仅用于审计。
type Journal struct {
	db *gorm.DB
}

var (
	_ trader.Journal   = (*Journal)(nil)
	_ risk.HaltJournal = (*Journal)(nil)
)

// Open creates (or reuses) the sqlite file at path.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: 路径不能为空")
	}
	if path != ":memory:" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradeRecord{}, &haltRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
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

// SaveTrade upserts the trade row keyed by trade id.
func (j *Journal) SaveTrade(ctx context.Context, t trader.Trade) error {
	if j == nil || j.db == nil {
		return errClosed
	}
	rec, err := newTradeRecord(t)
	if err != nil {
		return err
	}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}

func (j *Journal) SaveHalt(ctx context.Context, h risk.Halt) error {
	if j == nil || j.db == nil {
		return errClosed
	}
	rec := haltRecord{
		Type:    string(h.Type),
		Message: h.Message,
		Value:   h.Value,
		Limit:   h.Limit,
		At:      h.At.UnixMilli(),
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// ListTrades returns journaled trades, newest entry first. state filters when non-empty.
func (j *Journal) ListTrades(ctx context.Context, state trader.State, limit int) ([]trader.Trade, error) {
	if j == nil || j.db == nil {
		return nil, errClosed
	}
	q := j.db.WithContext(ctx).Order("entry_time DESC")
	if state != "" {
		q = q.Where("state = ?", string(state))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []tradeRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]trader.Trade, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.trade())
	}
	return out, nil
}

func (j *Journal) ListHalts(ctx context.Context, limit int) ([]risk.Halt, error) {
	if j == nil || j.db == nil {
		return nil, errClosed
	}
	q := j.db.WithContext(ctx).Order("at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []haltRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]risk.Halt, 0, len(recs))
	for _, rec := range recs {
		out = append(out, risk.Halt{
			Type:    risk.HaltType(rec.Type),
			Message: rec.Message,
			Value:   rec.Value,
			Limit:   rec.Limit,
			At:      time.UnixMilli(rec.At),
		})
	}
	return out, nil
}

type tradeRecord struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	Symbol             string         `gorm:"column:symbol;index"`
	Action             string         `gorm:"column:action"`
	PositionSide       string         `gorm:"column:position_side"`
	OrderSide          string         `gorm:"column:order_side"`
	EntryPrice         float64        `gorm:"column:entry_price"`
	Quantity           float64        `gorm:"column:quantity"`
	Leverage           int            `gorm:"column:leverage"`
	TakeProfit         float64        `gorm:"column:take_profit"`
	StopLoss           float64        `gorm:"column:stop_loss"`
	TakeProfitPct      float64        `gorm:"column:take_profit_pct"`
	StopLossPct        float64        `gorm:"column:stop_loss_pct"`
	EntryTime          int64          `gorm:"column:entry_time;index"`
	Mode               string         `gorm:"column:mode"`
	RealTrade          bool           `gorm:"column:real_trade"`
	Protected          bool           `gorm:"column:protected"`
	Reasons            datatypes.JSON `gorm:"column:reasons"`
	State              string         `gorm:"column:state;index"`
	ExitPrice          float64        `gorm:"column:exit_price"`
	ExitTime           int64          `gorm:"column:exit_time"`
	ExitReason         string         `gorm:"column:exit_reason"`
	ProfitPct          float64        `gorm:"column:profit_pct"`
	LeveragedProfitPct float64        `gorm:"column:leveraged_profit_pct"`
	ProfitUSDT         float64        `gorm:"column:profit_usdt"`
	EntryOrderID       int64          `gorm:"column:entry_order_id"`
	TPOrderID          int64          `gorm:"column:tp_order_id"`
	SLOrderID          int64          `gorm:"column:sl_order_id"`
	UpdatedAtUnix      int64          `gorm:"column:updated_at"`
}

func (tradeRecord) TableName() string { return "trade_records" }

type haltRecord struct {
	ID      int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Type    string  `gorm:"column:type"`
	Message string  `gorm:"column:message"`
	Value   float64 `gorm:"column:value"`
	Limit   float64 `gorm:"column:limit_value"`
	At      int64   `gorm:"column:at;index"`
}

func (haltRecord) TableName() string { return "halt_records" }

func newTradeRecord(t trader.Trade) (tradeRecord, error) {
	reasons := t.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	raw, err := json.Marshal(reasons)
	if err != nil {
		return tradeRecord{}, err
	}
	return tradeRecord{
		ID:                 t.ID,
		Symbol:             t.Symbol,
		Action:             string(t.Action),
		PositionSide:       string(t.PositionSide),
		OrderSide:          string(t.OrderSide),
		EntryPrice:         t.EntryPrice,
		Quantity:           t.Quantity,
		Leverage:           t.Leverage,
		TakeProfit:         t.TakeProfit,
		StopLoss:           t.StopLoss,
		TakeProfitPct:      t.TakeProfitPct,
		StopLossPct:        t.StopLossPct,
		EntryTime:          unixMilli(t.EntryTime),
		Mode:               t.Mode,
		RealTrade:          t.RealTrade,
		Protected:          t.Protected,
		Reasons:            datatypes.JSON(raw),
		State:              string(t.State),
		ExitPrice:          t.ExitPrice,
		ExitTime:           unixMilli(t.ExitTime),
		ExitReason:         string(t.ExitReason),
		ProfitPct:          t.ProfitPct,
		LeveragedProfitPct: t.LeveragedProfitPct,
		ProfitUSDT:         t.ProfitUSDT,
		EntryOrderID:       t.EntryOrderID,
		TPOrderID:          t.TPOrderID,
		SLOrderID:          t.SLOrderID,
		UpdatedAtUnix:      time.Now().Unix(),
	}, nil
}

func (r tradeRecord) trade() trader.Trade {
	var reasons []string
	if len(r.Reasons) > 0 {
		_ = json.Unmarshal(r.Reasons, &reasons)
	}
	t := trader.Trade{
		ID:                 r.ID,
		Symbol:             r.Symbol,
		Action:             strategy.Action(r.Action),
		PositionSide:       exchange.PositionSide(r.PositionSide),
		OrderSide:          exchange.Side(r.OrderSide),
		EntryPrice:         r.EntryPrice,
		Quantity:           r.Quantity,
		Leverage:           r.Leverage,
		TakeProfit:         r.TakeProfit,
		StopLoss:           r.StopLoss,
		TakeProfitPct:      r.TakeProfitPct,
		StopLossPct:        r.StopLossPct,
		EntryTime:          fromUnixMilli(r.EntryTime),
		Mode:               r.Mode,
		RealTrade:          r.RealTrade,
		Protected:          r.Protected,
		Reasons:            reasons,
		State:              trader.State(r.State),
		ExitPrice:          r.ExitPrice,
		ExitTime:           fromUnixMilli(r.ExitTime),
		ExitReason:         trader.ExitReason(r.ExitReason),
		ProfitPct:          r.ProfitPct,
		LeveragedProfitPct: r.LeveragedProfitPct,
		ProfitUSDT:         r.ProfitUSDT,
		EntryOrderID:       r.EntryOrderID,
		TPOrderID:          r.TPOrderID,
		SLOrderID:          r.SLOrderID,
	}
	return t
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
