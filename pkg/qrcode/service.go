package qrcode

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the domain logic over a Store and an Enricher.
type Service struct {
	store    Store
	enricher Enricher
	nowFn    func() int64
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, enricher Enricher, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if enricher == nil {
		return nil, fmt.Errorf("%w: enricher dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, enricher: enricher, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// CreateCode persists a new code record owned by the calling shop and
// returns it merged with live catalog data.
func (service *Service) CreateCode(ctx context.Context, shopDomain ShopDomain, input CodeInput) (EnrichedRecord, error) {
	record, operationError := service.store.CreateCode(ctx, shopDomain, input, service.nowFn())
	service.logOperation(ctx, OperationLog{
		Operation:  operationCreateCode,
		ShopDomain: shopDomain,
		CodeID:     record.ID,
		Error:      operationError,
	})
	if operationError != nil {
		return EnrichedRecord{}, operationError
	}
	return service.enricher.Enrich(ctx, record), nil
}

// GetCode returns a shop-scoped record merged with live catalog data.
// Records owned by another shop behave as not found.
func (service *Service) GetCode(ctx context.Context, shopDomain ShopDomain, id CodeID) (EnrichedRecord, error) {
	record, err := service.guardedCode(ctx, service.store, shopDomain, id)
	if err != nil {
		return EnrichedRecord{}, err
	}
	return service.enricher.Enrich(ctx, record), nil
}

// ListCodes returns every record owned by the shop, each merged with live
// catalog data.
func (service *Service) ListCodes(ctx context.Context, shopDomain ShopDomain) ([]EnrichedRecord, error) {
	records, err := service.store.ListCodes(ctx, shopDomain)
	if err != nil {
		return nil, err
	}
	enriched := make([]EnrichedRecord, 0, len(records))
	for _, record := range records {
		enriched = append(enriched, service.enricher.Enrich(ctx, record))
	}
	return enriched, nil
}

// UpdateCode merges a partial patch into a shop-scoped record; id and shop
// domain are never updatable.
func (service *Service) UpdateCode(ctx context.Context, shopDomain ShopDomain, id CodeID, patch CodePatch) (EnrichedRecord, error) {
	if patch.IsEmpty() {
		return EnrichedRecord{}, fmt.Errorf("%w: %s", ErrEmptyPatch, id.String())
	}
	var updated CodeRecord
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := service.guardedCode(ctx, transactionStore, shopDomain, id); err != nil {
			return err
		}
		record, err := transactionStore.UpdateCode(ctx, id, patch)
		if err != nil {
			return err
		}
		updated = record
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationUpdateCode,
		ShopDomain: shopDomain,
		CodeID:     id,
		Error:      operationError,
	})
	if operationError != nil {
		return EnrichedRecord{}, operationError
	}
	return service.enricher.Enrich(ctx, updated), nil
}

// DeleteCode removes a shop-scoped record together with its ledger row.
func (service *Service) DeleteCode(ctx context.Context, shopDomain ShopDomain, id CodeID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := service.guardedCode(ctx, transactionStore, shopDomain, id); err != nil {
			return err
		}
		if err := transactionStore.DeleteBalance(ctx, id); err != nil {
			return err
		}
		return transactionStore.DeleteCode(ctx, id)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationDeleteCode,
		ShopDomain: shopDomain,
		CodeID:     id,
		Error:      operationError,
	})
	return operationError
}

// SavePoints stores an absolute loyalty point balance for a shop-owned
// code, creating the ledger row on first save and overwriting it after.
// Increment semantics stay with the caller.
func (service *Service) SavePoints(ctx context.Context, shopDomain ShopDomain, codeID CodeID, balance PointBalance) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := service.guardedCode(ctx, transactionStore, shopDomain, codeID); err != nil {
			return err
		}
		return transactionStore.UpsertBalance(ctx, codeID, balance)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationSavePoints,
		ShopDomain: shopDomain,
		CodeID:     codeID,
		Balance:    balance,
		Error:      operationError,
	})
	return operationError
}

// PointsForCode returns the accrued balance for a shop-owned code. A
// missing ledger row reads as zero, not an error.
func (service *Service) PointsForCode(ctx context.Context, shopDomain ShopDomain, codeID CodeID) (PointBalance, error) {
	if _, err := service.guardedCode(ctx, service.store, shopDomain, codeID); err != nil {
		return 0, err
	}
	return service.store.GetBalance(ctx, codeID)
}

// ListPoints returns every ledger row belonging to the shop's codes.
func (service *Service) ListPoints(ctx context.Context, shopDomain ShopDomain) ([]PointRow, error) {
	return service.store.ListBalances(ctx, shopDomain)
}

// RemovePoints deletes the ledger row for a code. Unknown ids and ids
// owned by another shop are a no-op, keeping the operation idempotent and
// leak-free.
func (service *Service) RemovePoints(ctx context.Context, shopDomain ShopDomain, codeID CodeID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := service.guardedCode(ctx, transactionStore, shopDomain, codeID); err != nil {
			if errors.Is(err, ErrCodeNotFound) {
				return nil
			}
			return err
		}
		return transactionStore.DeleteBalance(ctx, codeID)
	})
	service.logOperation(ctx, OperationLog{
		Operation:  operationRemovePoints,
		ShopDomain: shopDomain,
		CodeID:     codeID,
		Error:      operationError,
	})
	return operationError
}

// guardedCode is the single scoped lookup used by every by-id operation:
// a record owned by another shop is indistinguishable from an absent one.
func (service *Service) guardedCode(ctx context.Context, store Store, shopDomain ShopDomain, id CodeID) (CodeRecord, error) {
	record, err := store.GetCode(ctx, id)
	if err != nil {
		return CodeRecord{}, err
	}
	if record.ShopDomain != shopDomain {
		return CodeRecord{}, fmt.Errorf("%w: %s", ErrCodeNotFound, id.String())
	}
	return record, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
