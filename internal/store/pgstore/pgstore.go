package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/junolabs/qrpoints/pkg/qrcode"
)

const (
	errorOperationStore     = "store"
	errorSubjectCode        = "code"
	errorSubjectBalance     = "balance"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDelete         = "delete"
	errorCodeGet            = "get"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeUpdate         = "update"
	errorCodeUpsert         = "upsert"

	sqlInsertCode = `
		insert into qr_codes(code_id, shop_domain, title, product_ref, discount_ref, destination, created_at)
		values(gen_random_uuid(), $1, $2, $3, $4, $5, to_timestamp($6))
		returning code_id::text
	`

	sqlSelectCode = `
		select code_id::text, shop_domain, title, coalesce(product_ref,''), coalesce(discount_ref,''), destination,
			extract(epoch from created_at)::bigint
		from qr_codes
		where code_id = $1
	`

	sqlListCodes = `
		select code_id::text, shop_domain, title, coalesce(product_ref,''), coalesce(discount_ref,''), destination,
			extract(epoch from created_at)::bigint
		from qr_codes
		where shop_domain = $1
		order by created_at
	`

	sqlUpdateCode = `
		update qr_codes
		set title = coalesce($2, title),
			product_ref = coalesce($3, product_ref),
			discount_ref = coalesce($4, discount_ref),
			destination = coalesce($5, destination)
		where code_id = $1
	`

	sqlDeleteCode = `
		delete from qr_codes where code_id = $1
	`

	sqlUpsertBalance = `
		insert into qr_code_points(code_id, balance, updated_at)
		values($1, $2, now())
		on conflict (code_id) do update set balance = excluded.balance, updated_at = now()
	`

	sqlSelectBalance = `
		select balance from qr_code_points where code_id = $1
	`

	sqlListBalances = `
		select qr_code_points.code_id::text, qr_code_points.balance
		from qr_code_points
		join qr_codes on qr_codes.code_id = qr_code_points.code_id
		where qr_codes.shop_domain = $1
	`

	sqlDeleteBalance = `
		delete from qr_code_points where code_id = $1
	`
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements qrcode.Store using a pgx connection pool (autocommit
// outside WithTx).
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore qrcode.Store) error) error {
	if store.pool == nil {
		// Already inside a transaction; reuse it.
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, storageFailure(err))
	}
	transactionStore := &Store{db: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, storageFailure(err))
	}
	return nil
}

func (store *Store) CreateCode(ctx context.Context, shopDomain qrcode.ShopDomain, input qrcode.CodeInput, createdUnixUTC int64) (qrcode.CodeRecord, error) {
	var codeIDValue string
	err := store.db.QueryRow(ctx, sqlInsertCode,
		shopDomain.String(),
		input.Title.String(),
		input.ProductReference,
		input.DiscountReference,
		input.Destination.String(),
		createdUnixUTC,
	).Scan(&codeIDValue)
	if err != nil {
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeCreate, storageFailure(err))
	}
	codeID, err := qrcode.NewCodeID(codeIDValue)
	if err != nil {
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	return store.GetCode(ctx, codeID)
}

func (store *Store) GetCode(ctx context.Context, id qrcode.CodeID) (qrcode.CodeRecord, error) {
	record, err := scanCode(store.db.QueryRow(ctx, sqlSelectCode, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeGet, fmt.Errorf("%w: %s", qrcode.ErrCodeNotFound, id.String()))
		}
		return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeGet, storageFailure(err))
	}
	return record, nil
}

func (store *Store) ListCodes(ctx context.Context, shopDomain qrcode.ShopDomain) ([]qrcode.CodeRecord, error) {
	rows, err := store.db.Query(ctx, sqlListCodes, shopDomain.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectCode, errorCodeList, storageFailure(err))
	}
	defer rows.Close()
	records := []qrcode.CodeRecord{}
	for rows.Next() {
		record, err := scanCode(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectCode, errorCodeList, storageFailure(err))
	}
	return records, nil
}

func (store *Store) UpdateCode(ctx context.Context, id qrcode.CodeID, patch qrcode.CodePatch) (qrcode.CodeRecord, error) {
	if !patch.IsEmpty() {
		var (
			title       *string
			destination *string
		)
		if patch.Title != nil {
			value := patch.Title.String()
			title = &value
		}
		if patch.Destination != nil {
			value := patch.Destination.String()
			destination = &value
		}
		tag, err := store.db.Exec(ctx, sqlUpdateCode,
			id.String(),
			title,
			patch.ProductReference,
			patch.DiscountReference,
			destination,
		)
		if err != nil {
			return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeUpdate, storageFailure(err))
		}
		if tag.RowsAffected() == 0 {
			return qrcode.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeUpdate, fmt.Errorf("%w: %s", qrcode.ErrCodeNotFound, id.String()))
		}
	}
	return store.GetCode(ctx, id)
}

func (store *Store) DeleteCode(ctx context.Context, id qrcode.CodeID) error {
	tag, err := store.db.Exec(ctx, sqlDeleteCode, id.String())
	if err != nil {
		return wrapStoreError(errorSubjectCode, errorCodeDelete, storageFailure(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectCode, errorCodeDelete, fmt.Errorf("%w: %s", qrcode.ErrCodeNotFound, id.String()))
	}
	return nil
}

func (store *Store) UpsertBalance(ctx context.Context, codeID qrcode.CodeID, balance qrcode.PointBalance) error {
	_, err := store.db.Exec(ctx, sqlUpsertBalance, codeID.String(), balance.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpsert, storageFailure(err))
	}
	return nil
}

func (store *Store) GetBalance(ctx context.Context, codeID qrcode.CodeID) (qrcode.PointBalance, error) {
	var balanceValue int64
	err := store.db.QueryRow(ctx, sqlSelectBalance, codeID.String()).Scan(&balanceValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeGet, storageFailure(err))
	}
	balance, err := qrcode.NewPointBalance(balanceValue)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return balance, nil
}

func (store *Store) ListBalances(ctx context.Context, shopDomain qrcode.ShopDomain) ([]qrcode.PointRow, error) {
	rows, err := store.db.Query(ctx, sqlListBalances, shopDomain.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeList, storageFailure(err))
	}
	defer rows.Close()
	balances := []qrcode.PointRow{}
	for rows.Next() {
		var (
			codeIDValue  string
			balanceValue int64
		)
		if err := rows.Scan(&codeIDValue, &balanceValue); err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeList, storageFailure(err))
		}
		codeID, err := qrcode.NewCodeID(codeIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		balance, err := qrcode.NewPointBalance(balanceValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		balances = append(balances, qrcode.PointRow{CodeID: codeID, Balance: balance})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeList, storageFailure(err))
	}
	return balances, nil
}

func (store *Store) DeleteBalance(ctx context.Context, codeID qrcode.CodeID) error {
	// Missing rows leave RowsAffected at zero; the delete stays idempotent.
	_, err := store.db.Exec(ctx, sqlDeleteBalance, codeID.String())
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

func scanCode(row pgx.Row) (qrcode.CodeRecord, error) {
	var (
		codeIDValue      string
		shopDomainValue  string
		titleValue       string
		productRefValue  string
		discountRefValue string
		destinationValue string
		createdUnixUTC   int64
	)
	err := row.Scan(
		&codeIDValue,
		&shopDomainValue,
		&titleValue,
		&productRefValue,
		&discountRefValue,
		&destinationValue,
		&createdUnixUTC,
	)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	codeID, err := qrcode.NewCodeID(codeIDValue)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	shopDomain, err := qrcode.NewShopDomain(shopDomainValue)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	title, err := qrcode.NewCodeTitle(titleValue)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	destination, err := qrcode.ParseDestination(destinationValue)
	if err != nil {
		return qrcode.CodeRecord{}, err
	}
	return qrcode.CodeRecord{
		ID:                codeID,
		ShopDomain:        shopDomain,
		Title:             title,
		ProductReference:  productRefValue,
		DiscountReference: discountRefValue,
		Destination:       destination,
		CreatedUnixUTC:    createdUnixUTC,
	}, nil
}
