package qrcode

import (
	"context"
	"fmt"
	"strings"
)

// ShopDomain is the tenant boundary every code record belongs to.
type ShopDomain struct {
	value string
}

// CodeID identifies a stored code record.
type CodeID struct {
	value string
}

// CodeTitle is the merchant-facing label of a code.
type CodeTitle struct {
	value string
}

// PointBalance is a non-negative loyalty point counter.
type PointBalance int64

// Destination governs how the resolvable URL is built for a code.
type Destination string

const (
	DestinationProduct  Destination = "product"
	DestinationCheckout Destination = "checkout"
)

// NewShopDomain validates and normalizes a shop domain.
func NewShopDomain(raw string) (ShopDomain, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ShopDomain{}, fmt.Errorf("%w: empty value", ErrInvalidShopDomain)
	}
	return ShopDomain{value: trimmed}, nil
}

// String returns the normalized domain.
func (domain ShopDomain) String() string {
	return domain.value
}

// NewCodeID validates and normalizes a code identifier.
func NewCodeID(raw string) (CodeID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CodeID{}, fmt.Errorf("%w: empty value", ErrInvalidCodeID)
	}
	return CodeID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CodeID) String() string {
	return id.value
}

// NewCodeTitle validates and normalizes a code title.
func NewCodeTitle(raw string) (CodeTitle, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CodeTitle{}, fmt.Errorf("%w: empty value", ErrInvalidTitle)
	}
	return CodeTitle{value: trimmed}, nil
}

// String returns the normalized title.
func (title CodeTitle) String() string {
	return title.value
}

// ParseDestination validates a destination value.
func ParseDestination(raw string) (Destination, error) {
	switch Destination(strings.TrimSpace(raw)) {
	case DestinationProduct:
		return DestinationProduct, nil
	case DestinationCheckout:
		return DestinationCheckout, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, raw)
	}
}

// String returns the destination value.
func (destination Destination) String() string {
	return string(destination)
}

// NewPointBalance validates an accrual counter value.
func NewPointBalance(raw int64) (PointBalance, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidPointBalance)
	}
	return PointBalance(raw), nil
}

// Int64 returns the raw counter value.
func (balance PointBalance) Int64() int64 {
	return int64(balance)
}

// CodeRecord is a stored scannable code owned by exactly one shop.
type CodeRecord struct {
	ID                CodeID
	ShopDomain        ShopDomain
	Title             CodeTitle
	ProductReference  string
	DiscountReference string
	Destination       Destination
	CreatedUnixUTC    int64
}

// CodeInput carries the client-supplied fields of a new code record.
type CodeInput struct {
	Title             CodeTitle
	ProductReference  string
	DiscountReference string
	Destination       Destination
}

// CodePatch carries a partial update; nil fields retain prior values.
type CodePatch struct {
	Title             *CodeTitle
	ProductReference  *string
	DiscountReference *string
	Destination       *Destination
}

// IsEmpty reports whether the patch updates nothing.
func (patch CodePatch) IsEmpty() bool {
	return patch.Title == nil && patch.ProductReference == nil && patch.DiscountReference == nil && patch.Destination == nil
}

// PointRow is one ledger row: the accrued balance for a code.
type PointRow struct {
	CodeID  CodeID
	Balance PointBalance
}

// EnrichedRecord is a code record merged with live catalog data.
type EnrichedRecord struct {
	CodeRecord
	DisplayTitle   string
	DestinationURL string
}

// Enricher merges live catalog data into a stored record. It never fails;
// lookup errors degrade to the stored title and a fallback URL.
type Enricher interface {
	Enrich(ctx context.Context, record CodeRecord) EnrichedRecord
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateCode(ctx context.Context, shopDomain ShopDomain, input CodeInput, createdUnixUTC int64) (CodeRecord, error)
	GetCode(ctx context.Context, id CodeID) (CodeRecord, error)
	ListCodes(ctx context.Context, shopDomain ShopDomain) ([]CodeRecord, error)
	UpdateCode(ctx context.Context, id CodeID, patch CodePatch) (CodeRecord, error)
	DeleteCode(ctx context.Context, id CodeID) error
	UpsertBalance(ctx context.Context, codeID CodeID, balance PointBalance) error
	GetBalance(ctx context.Context, codeID CodeID) (PointBalance, error)
	ListBalances(ctx context.Context, shopDomain ShopDomain) ([]PointRow, error)
	DeleteBalance(ctx context.Context, codeID CodeID) error
}
