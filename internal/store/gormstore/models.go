package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Code represents the qr_codes table.
type Code struct {
	CodeID      string    `gorm:"type:uuid;primaryKey"`
	ShopDomain  string    `gorm:"not null;index:idx_qr_codes_shop_domain"`
	Title       string    `gorm:"not null"`
	ProductRef  string    `gorm:""`
	DiscountRef string    `gorm:""`
	Destination string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Code) TableName() string { return "qr_codes" }

func (code *Code) BeforeCreate(tx *gorm.DB) error {
	if code.CodeID == "" {
		code.CodeID = uuid.NewString()
	}
	return nil
}

// PointBalance mirrors the qr_code_points table. At most one row per code.
type PointBalance struct {
	CodeID    string    `gorm:"type:uuid;primaryKey"`
	Balance   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (PointBalance) TableName() string { return "qr_code_points" }
