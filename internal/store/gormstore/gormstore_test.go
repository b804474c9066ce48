package gormstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/junolabs/qrpoints/internal/store/gormstore"
	"github.com/junolabs/qrpoints/pkg/qrcode"
	"gorm.io/gorm"
)

func openTestStore(test *testing.T) *gormstore.Store {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/qrpoints.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	if err := database.AutoMigrate(&gormstore.Code{}, &gormstore.PointBalance{}); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	return gormstore.New(database)
}

func mustShopDomain(test *testing.T, raw string) qrcode.ShopDomain {
	test.Helper()
	shopDomain, err := qrcode.NewShopDomain(raw)
	if err != nil {
		test.Fatalf("shop domain %q: %v", raw, err)
	}
	return shopDomain
}

func mustTitle(test *testing.T, raw string) qrcode.CodeTitle {
	test.Helper()
	title, err := qrcode.NewCodeTitle(raw)
	if err != nil {
		test.Fatalf("title %q: %v", raw, err)
	}
	return title
}

func mustBalance(test *testing.T, raw int64) qrcode.PointBalance {
	test.Helper()
	balance, err := qrcode.NewPointBalance(raw)
	if err != nil {
		test.Fatalf("balance %d: %v", raw, err)
	}
	return balance
}

func mustCreateCode(test *testing.T, store *gormstore.Store, shopDomain qrcode.ShopDomain, title string) qrcode.CodeRecord {
	test.Helper()
	record, err := store.CreateCode(context.Background(), shopDomain, qrcode.CodeInput{
		Title:            mustTitle(test, title),
		ProductReference: "gid://catalog/Product/11",
		Destination:      qrcode.DestinationProduct,
	}, 1700000000)
	if err != nil {
		test.Fatalf("create code: %v", err)
	}
	return record
}

func TestCreateCodeAssignsIdentifier(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")

	record := mustCreateCode(test, store, shopDomain, "Aisle QR")
	if record.ID.String() == "" {
		test.Fatalf("expected generated code id")
	}
	if record.CreatedUnixUTC != 1700000000 {
		test.Fatalf("expected injected timestamp, got %d", record.CreatedUnixUTC)
	}

	fetched, err := store.GetCode(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("get code: %v", err)
	}
	if fetched.Title.String() != "Aisle QR" || fetched.ShopDomain != shopDomain {
		test.Fatalf("stored record mismatch: %+v", fetched)
	}
}

func TestGetCodeUnknownIdentifier(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)

	missing, err := qrcode.NewCodeID("3eab8d0e-0000-0000-0000-000000000000")
	if err != nil {
		test.Fatalf("code id: %v", err)
	}
	if _, err := store.GetCode(context.Background(), missing); !errors.Is(err, qrcode.ErrCodeNotFound) {
		test.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestListCodesScopedByShopDomain(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopA := mustShopDomain(test, "shop-a.example.com")
	shopB := mustShopDomain(test, "shop-b.example.com")

	mustCreateCode(test, store, shopA, "A1")
	mustCreateCode(test, store, shopA, "A2")
	mustCreateCode(test, store, shopB, "B1")

	records, err := store.ListCodes(context.Background(), shopA)
	if err != nil {
		test.Fatalf("list codes: %v", err)
	}
	if len(records) != 2 {
		test.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, record := range records {
		if record.ShopDomain != shopA {
			test.Fatalf("foreign record in listing: %+v", record)
		}
	}
}

func TestUpdateCodeRetainsUnpatchedFields(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")
	record := mustCreateCode(test, store, shopDomain, "Before")

	newTitle := mustTitle(test, "After")
	checkout := qrcode.DestinationCheckout
	updated, err := store.UpdateCode(context.Background(), record.ID, qrcode.CodePatch{
		Title:       &newTitle,
		Destination: &checkout,
	})
	if err != nil {
		test.Fatalf("update code: %v", err)
	}
	if updated.Title.String() != "After" || updated.Destination != qrcode.DestinationCheckout {
		test.Fatalf("patched fields did not apply: %+v", updated)
	}
	if updated.ProductReference != record.ProductReference {
		test.Fatalf("unpatched field changed: %q", updated.ProductReference)
	}
	if updated.ShopDomain != shopDomain {
		test.Fatalf("shop domain must never change: %q", updated.ShopDomain.String())
	}
}

func TestUpdateCodeUnknownIdentifier(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)

	missing, err := qrcode.NewCodeID("3eab8d0e-0000-0000-0000-000000000001")
	if err != nil {
		test.Fatalf("code id: %v", err)
	}
	newTitle := mustTitle(test, "After")
	if _, err := store.UpdateCode(context.Background(), missing, qrcode.CodePatch{Title: &newTitle}); !errors.Is(err, qrcode.ErrCodeNotFound) {
		test.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestDeleteCodeRemovesRecord(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")
	record := mustCreateCode(test, store, shopDomain, "Aisle QR")

	if err := store.DeleteCode(context.Background(), record.ID); err != nil {
		test.Fatalf("delete code: %v", err)
	}
	if _, err := store.GetCode(context.Background(), record.ID); !errors.Is(err, qrcode.ErrCodeNotFound) {
		test.Fatalf("expected record gone, got %v", err)
	}
	if err := store.DeleteCode(context.Background(), record.ID); !errors.Is(err, qrcode.ErrCodeNotFound) {
		test.Fatalf("expected ErrCodeNotFound on second delete, got %v", err)
	}
}

func TestUpsertBalanceOverwrites(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")
	record := mustCreateCode(test, store, shopDomain, "Aisle QR")

	if err := store.UpsertBalance(context.Background(), record.ID, mustBalance(test, 5)); err != nil {
		test.Fatalf("first upsert: %v", err)
	}
	if err := store.UpsertBalance(context.Background(), record.ID, mustBalance(test, 8)); err != nil {
		test.Fatalf("second upsert: %v", err)
	}

	balance, err := store.GetBalance(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if balance.Int64() != 8 {
		test.Fatalf("expected overwritten balance 8, got %d", balance.Int64())
	}

	rows, err := store.ListBalances(context.Background(), shopDomain)
	if err != nil {
		test.Fatalf("list balances: %v", err)
	}
	if len(rows) != 1 {
		test.Fatalf("expected a single ledger row, got %d", len(rows))
	}
}

func TestGetBalanceMissingRowReadsZero(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")
	record := mustCreateCode(test, store, shopDomain, "Aisle QR")

	balance, err := store.GetBalance(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if balance.Int64() != 0 {
		test.Fatalf("expected zero for absent row, got %d", balance.Int64())
	}
}

func TestListBalancesScopedByShopDomain(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopA := mustShopDomain(test, "shop-a.example.com")
	shopB := mustShopDomain(test, "shop-b.example.com")
	codeA := mustCreateCode(test, store, shopA, "A1")
	codeB := mustCreateCode(test, store, shopB, "B1")

	if err := store.UpsertBalance(context.Background(), codeA.ID, mustBalance(test, 4)); err != nil {
		test.Fatalf("upsert a: %v", err)
	}
	if err := store.UpsertBalance(context.Background(), codeB.ID, mustBalance(test, 9)); err != nil {
		test.Fatalf("upsert b: %v", err)
	}

	rows, err := store.ListBalances(context.Background(), shopA)
	if err != nil {
		test.Fatalf("list balances: %v", err)
	}
	if len(rows) != 1 {
		test.Fatalf("expected 1 row for shop-a, got %d", len(rows))
	}
	if rows[0].CodeID != codeA.ID || rows[0].Balance.Int64() != 4 {
		test.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestDeleteBalanceIdempotent(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")
	record := mustCreateCode(test, store, shopDomain, "Aisle QR")

	if err := store.DeleteBalance(context.Background(), record.ID); err != nil {
		test.Fatalf("delete on absent row: %v", err)
	}
	if err := store.UpsertBalance(context.Background(), record.ID, mustBalance(test, 5)); err != nil {
		test.Fatalf("upsert: %v", err)
	}
	if err := store.DeleteBalance(context.Background(), record.ID); err != nil {
		test.Fatalf("delete: %v", err)
	}
	balance, err := store.GetBalance(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if balance.Int64() != 0 {
		test.Fatalf("expected zero after delete, got %d", balance.Int64())
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	shopDomain := mustShopDomain(test, "shop-a.example.com")
	record := mustCreateCode(test, store, shopDomain, "Aisle QR")

	sentinel := errors.New("abort")
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore qrcode.Store) error {
		if err := txStore.UpsertBalance(ctx, record.ID, mustBalance(test, 5)); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		test.Fatalf("expected sentinel error, got %v", err)
	}

	balance, err := store.GetBalance(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("get balance: %v", err)
	}
	if balance.Int64() != 0 {
		test.Fatalf("rolled back write leaked, balance %d", balance.Int64())
	}
}
