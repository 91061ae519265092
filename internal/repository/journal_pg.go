package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoPolymarket/polyclob/internal/order"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SignedOrderRecord is one row per order posted to the exchange.
type SignedOrderRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Salt          string    `gorm:"column:salt;type:varchar(80);uniqueIndex;not null" json:"salt"`
	Maker         string    `gorm:"column:maker;type:varchar(42);index;not null" json:"maker"`
	Signer        string    `gorm:"column:signer;type:varchar(42);not null" json:"signer"`
	Taker         string    `gorm:"column:taker;type:varchar(42)" json:"taker"`
	TokenID       string    `gorm:"column:token_id;type:varchar(80);index;not null" json:"token_id"`
	MakerAmount   string    `gorm:"column:maker_amount;type:varchar(40)" json:"maker_amount"`
	TakerAmount   string    `gorm:"column:taker_amount;type:varchar(40)" json:"taker_amount"`
	Expiration    string    `gorm:"column:expiration;type:varchar(20)" json:"expiration"`
	Nonce         string    `gorm:"column:nonce;type:varchar(80)" json:"nonce"`
	FeeRateBps    string    `gorm:"column:fee_rate_bps;type:varchar(10)" json:"fee_rate_bps"`
	Side          string    `gorm:"column:side;type:varchar(4)" json:"side"`
	SignatureType int       `gorm:"column:signature_type" json:"signature_type"`
	Signature     string    `gorm:"column:signature;type:varchar(132)" json:"signature"`
	OrderType     string    `gorm:"column:order_type;type:varchar(4)" json:"order_type"`
	Status        string    `gorm:"column:status;type:varchar(20);default:'SUBMITTED'" json:"status"`
	Response      string    `gorm:"column:response;type:text" json:"response"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (SignedOrderRecord) TableName() string { return "signed_orders" }

// FromSigned maps an order to its journal row.
func FromSigned(o *order.SignedOrder, orderType order.OrderType, status string, response []byte) SignedOrderRecord {
	return SignedOrderRecord{
		Salt:          o.Salt,
		Maker:         o.Maker,
		Signer:        o.Signer,
		Taker:         o.Taker,
		TokenID:       o.TokenID,
		MakerAmount:   o.MakerAmount,
		TakerAmount:   o.TakerAmount,
		Expiration:    o.Expiration,
		Nonce:         o.Nonce,
		FeeRateBps:    o.FeeRateBps,
		Side:          o.Side.String(),
		SignatureType: int(o.SignatureType),
		Signature:     o.Signature,
		OrderType:     string(orderType),
		Status:        status,
		Response:      compactJSON(response),
	}
}

func compactJSON(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// OrderJournal stores posted orders in postgres.
type OrderJournal struct {
	db *gorm.DB
}

func OpenOrderJournal(dsn string) (*OrderJournal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewOrderJournal(db)
}

func NewOrderJournal(db *gorm.DB) (*OrderJournal, error) {
	if err := db.AutoMigrate(&SignedOrderRecord{}); err != nil {
		return nil, fmt.Errorf("migrate signed_orders: %w", err)
	}
	return &OrderJournal{db: db}, nil
}

func (j *OrderJournal) Record(ctx context.Context, o *order.SignedOrder, orderType order.OrderType, status string, response []byte) error {
	rec := FromSigned(o, orderType, status, response)
	return j.db.WithContext(ctx).Create(&rec).Error
}

func (j *OrderJournal) Recent(ctx context.Context, limit int) ([]SignedOrderRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []SignedOrderRecord
	err := j.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

func (j *OrderJournal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
