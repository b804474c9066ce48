package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/junolabs/qrpoints/pkg/qrcode"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorOperationStore  = "store"
	errorSubjectCode     = "code"
	errorSubjectBalance  = "balance"
	errorCodeCreate      = "create"
	errorCodeDelete      = "delete"
	errorCodeGet         = "get"
	errorCodeInvalid     = "invalid"
	errorCodeList        = "list"
	errorCodeUpdate      = "update"
	errorCodeUpsert      = "upsert"
)

// Store implements qrcode.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore qrcode.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateCode(ctx context.Context, shopDomain qrcode.ShopDomain, input qrcode.CodeInput, createdUnixUTC int64) (qrcode.CodeRecord, error) {
	row := Code{
		ShopDomain:  shopDomain.String(),
		Title:       input.Title.String(),
		ProductRef:  input.ProductReference,
		DiscountRef: input.DiscountReference,
		Destination: input.Destination.String(),
		CreatedAt:   time.Unix(createdUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeCreate, storageFailure(err))
	}
	record, err := mapCode(row)
	if err != nil {
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	return record, nil
}

func (store *Store) GetCode(ctx context.Context, id qrcode.CodeID) (qrcode.CodeRecord, error) {
	var row Code
	err := store.db.WithContext(ctx).
		Where("code_id = ?", id.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeGet, fmt.Errorf("%w: %s", qrcode.ErrCodeNotFound, id.String()))
		}
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeGet, storageFailure(err))
	}
	record, err := mapCode(row)
	if err != nil {
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	return record, nil
}

func (store *Store) ListCodes(ctx context.Context, shopDomain qrcode.ShopDomain) ([]qrcode.CodeRecord, error) {
	var rows []Code
	err := store.db.WithContext(ctx).
		Where("shop_domain = ?", shopDomain.String()).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCode, errorCodeList, storageFailure(err))
	}
	records := make([]qrcode.CodeRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapCode(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) UpdateCode(ctx context.Context, id qrcode.CodeID, patch qrcode.CodePatch) (qrcode.CodeRecord, error) {
	assignments := patchAssignments(patch)
	if len(assignments) > 0 {
		result := store.db.WithContext(ctx).
			Model(&Code{}).
			Where("code_id = ?", id.String()).
			Updates(assignments)
		if result.Error != nil {
			return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeUpdate, storageFailure(result.Error))
		}
		if result.RowsAffected == 0 {
			return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeUpdate, fmt.Errorf("%w: %s", qrcode.ErrCodeNotFound, id.String()))
		}
	}
	return store.GetCode(ctx, id)
}

func (store *Store) DeleteCode(ctx context.Context, id qrcode.CodeID) error {
	result := store.db.WithContext(ctx).
		Where("code_id = ?", id.String()).
		Delete(&Code{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCode, errorCodeDelete, storageFailure(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCode, errorCodeDelete, fmt.Errorf("%w: %s", qrcode.ErrCodeNotFound, id.String()))
	}
	return nil
}

func (store *Store) UpsertBalance(ctx context.Context, codeID qrcode.CodeID, balance qrcode.PointBalance) error {
	row := PointBalance{
		CodeID:    codeID.String(),
		Balance:   balance.Int64(),
		UpdatedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpsert, storageFailure(err))
	}
	return nil
}

func (store *Store) GetBalance(ctx context.Context, codeID qrcode.CodeID) (qrcode.PointBalance, error) {
	var row PointBalance
	err := store.db.WithContext(ctx).
		Where("code_id = ?", codeID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeGet, storageFailure(err))
	}
	parsed, err := qrcode.NewPointBalance(row.Balance)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return parsed, nil
}

func (store *Store) ListBalances(ctx context.Context, shopDomain qrcode.ShopDomain) ([]qrcode.PointRow, error) {
	var rows []PointBalance
	err := store.db.WithContext(ctx).
		Model(&PointBalance{}).
		Joins("join qr_codes on qr_codes.code_id = qr_code_points.code_id").
		Where("qr_codes.shop_domain = ?", shopDomain.String()).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeList, storageFailure(err))
	}
	balances := make([]qrcode.PointRow, 0, len(rows))
	for _, row := range rows {
		pointRow, err := mapPointRow(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		balances = append(balances, pointRow)
	}
	return balances, nil
}

func (store *Store) DeleteBalance(ctx context.Context, codeID qrcode.CodeID) error {
	// Absence is not an error; the delete stays idempotent.
	err := store.db.WithContext(ctx).
		Where("code_id = ?", codeID.String()).
		Delete(&PointBalance{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeDelete, storageFailure(err))
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return qrcode.WrapError(errorOperationStore, subject, code, err)
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %v", qrcode.ErrStorage, err)
}

func patchAssignments(patch qrcode.CodePatch) map[string]interface{} {
	assignments := map[string]interface{}{}
	if patch.Title != nil {
		assignments["title"] = patch.Title.String()
	}
	if patch.ProductReference != nil {
		assignments["product_ref"] = *patch.ProductReference
	}
	if patch.DiscountReference != nil {
		assignments["discount_ref"] = *patch.DiscountReference
	}
	if patch.Destination != nil {
		assignments["destination"] = patch.Destination.String()
	}
	return assignments
}

func mapCode(row Code) (qrcode.CodeRecord, error) {
	codeID, err := qrcode.NewCodeID(row.CodeID)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	shopDomain, err := qrcode.NewShopDomain(row.ShopDomain)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	title, err := qrcode.NewCodeTitle(row.Title)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	destination, err := qrcode.ParseDestination(row.Destination)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	return qrcode.CodeRecord{
		ID:                codeID,
		ShopDomain:        shopDomain,
		Title:             title,
		ProductReference:  row.ProductRef,
		DiscountReference: row.DiscountRef,
		Destination:       destination,
		CreatedUnixUTC:    row.CreatedAt.Unix(),
	}, nil
}

func mapPointRow(row PointBalance) (qrcode.PointRow, error) {
	codeID, err := qrcode.NewCodeID(row.CodeID)
	if err != nil {
		return qrcode.PointRow{}, err
	}
	balance, err := qrcode.NewPointBalance(row.Balance)
	if err != nil {
		return qrcode.PointRow{}, err
	}
	return qrcode.PointRow{CodeID: codeID, Balance: balance}, nil
}
