package qrcode

import (
	"context"
	"fmt"
	"testing"
)

// stubStore is an in-memory Store used by the service tests.
type stubStore struct {
	codes    map[string]CodeRecord
	balances map[string]PointBalance
	nextID   int
	failWith error
}

func newStubStore() *stubStore {
	return &stubStore{
		codes:    map[string]CodeRecord{},
		balances: map[string]PointBalance{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateCode(_ context.Context, shopDomain ShopDomain, input CodeInput, createdUnixUTC int64) (CodeRecord, error) {
	if store.failWith != nil {
		return CodeRecord{}, store.failWith
	}
	store.nextID++
	id, err := NewCodeID(fmt.Sprintf("code-%d", store.nextID))
	if err != nil {
		return CodeRecord{}, err
	}
	record := CodeRecord{
		ID:                id,
		ShopDomain:        shopDomain,
		Title:             input.Title,
		ProductReference:  input.ProductReference,
		DiscountReference: input.DiscountReference,
		Destination:       input.Destination,
		CreatedUnixUTC:    createdUnixUTC,
	}
	store.codes[id.String()] = record
	return record, nil
}

func (store *stubStore) GetCode(_ context.Context, id CodeID) (CodeRecord, error) {
	if store.failWith != nil {
		return CodeRecord{}, store.failWith
	}
	record, ok := store.codes[id.String()]
	if !ok {
		return CodeRecord{}, fmt.Errorf("%w: %s", ErrCodeNotFound, id.String())
	}
	return record, nil
}

func (store *stubStore) ListCodes(_ context.Context, shopDomain ShopDomain) ([]CodeRecord, error) {
	if store.failWith != nil {
		return nil, store.failWith
	}
	records := []CodeRecord{}
	for _, record := range store.codes {
		if record.ShopDomain == shopDomain {
			records = append(records, record)
		}
	}
	return records, nil
}

func (store *stubStore) UpdateCode(_ context.Context, id CodeID, patch CodePatch) (CodeRecord, error) {
	record, ok := store.codes[id.String()]
	if !ok {
		return CodeRecord{}, fmt.Errorf("%w: %s", ErrCodeNotFound, id.String())
	}
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.ProductReference != nil {
		record.ProductReference = *patch.ProductReference
	}
	if patch.DiscountReference != nil {
		record.DiscountReference = *patch.DiscountReference
	}
	if patch.Destination != nil {
		record.Destination = *patch.Destination
	}
	store.codes[id.String()] = record
	return record, nil
}

func (store *stubStore) DeleteCode(_ context.Context, id CodeID) error {
	if _, ok := store.codes[id.String()]; !ok {
		return fmt.Errorf("%w: %s", ErrCodeNotFound, id.String())
	}
	delete(store.codes, id.String())
	return nil
}

func (store *stubStore) UpsertBalance(_ context.Context, codeID CodeID, balance PointBalance) error {
	if store.failWith != nil {
		return store.failWith
	}
	store.balances[codeID.String()] = balance
	return nil
}

func (store *stubStore) GetBalance(_ context.Context, codeID CodeID) (PointBalance, error) {
	return store.balances[codeID.String()], nil
}

func (store *stubStore) ListBalances(_ context.Context, shopDomain ShopDomain) ([]PointRow, error) {
	rows := []PointRow{}
	for idValue, balance := range store.balances {
		record, ok := store.codes[idValue]
		if !ok || record.ShopDomain != shopDomain {
			continue
		}
		rows = append(rows, PointRow{CodeID: record.ID, Balance: balance})
	}
	return rows, nil
}

func (store *stubStore) DeleteBalance(_ context.Context, codeID CodeID) error {
	delete(store.balances, codeID.String())
	return nil
}

// stubEnricher marks records so tests can tell enrichment ran.
type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, record CodeRecord) EnrichedRecord {
	return EnrichedRecord{
		CodeRecord:     record,
		DisplayTitle:   "enriched " + record.Title.String(),
		DestinationURL: "https://" + record.ShopDomain.String() + "/enriched",
	}
}

func mustShopDomain(test *testing.T, raw string) ShopDomain {
	test.Helper()
	shopDomain, err := NewShopDomain(raw)
	if err != nil {
		test.Fatalf("shop domain %q: %v", raw, err)
	}
	return shopDomain
}

func mustCodeID(test *testing.T, raw string) CodeID {
	test.Helper()
	codeID, err := NewCodeID(raw)
	if err != nil {
		test.Fatalf("code id %q: %v", raw, err)
	}
	return codeID
}

func mustTitle(test *testing.T, raw string) CodeTitle {
	test.Helper()
	title, err := NewCodeTitle(raw)
	if err != nil {
		test.Fatalf("title %q: %v", raw, err)
	}
	return title
}

func mustBalance(test *testing.T, raw int64) PointBalance {
	test.Helper()
	balance, err := NewPointBalance(raw)
	if err != nil {
		test.Fatalf("balance %d: %v", raw, err)
	}
	return balance
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, stubEnricher{}, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustCreate(test *testing.T, service *Service, shopDomain ShopDomain, title string) EnrichedRecord {
	test.Helper()
	record, err := service.CreateCode(context.Background(), shopDomain, CodeInput{
		Title:            mustTitle(test, title),
		ProductReference: "p1",
		Destination:      DestinationProduct,
	})
	if err != nil {
		test.Fatalf("create code: %v", err)
	}
	return record
}
