// Package codesapi holds the JSON contracts shared by the HTTP handlers
// and their clients.
package codesapi

// CodePayload mirrors one code record merged with live catalog data.
type CodePayload struct {
	ID                string `json:"id"`
	ShopDomain        string `json:"shopDomain"`
	Title             string `json:"title"`
	ProductReference  string `json:"productReference,omitempty"`
	DiscountReference string `json:"discountReference,omitempty"`
	Destination       string `json:"destination"`
	DestinationURL    string `json:"destinationUrl"`
	CreatedUnixUTC    int64  `json:"createdUnixUTC"`
}

// BalancePayload is one ledger row.
type BalancePayload struct {
	CodeID  string `json:"codeID"`
	Balance int64  `json:"balance"`
}

// CodeListEnvelope hydrates the code table together with its balances.
type CodeListEnvelope struct {
	Codes    []CodePayload    `json:"codes"`
	Balances []BalancePayload `json:"balances"`
}

// PointsListEnvelope lists every balance owned by the calling shop.
type PointsListEnvelope struct {
	Success  bool             `json:"success"`
	Balances []BalancePayload `json:"balances"`
}

// PointsConfirmation acknowledges a balance write or delete.
type PointsConfirmation struct {
	Success bool   `json:"success"`
	CodeID  string `json:"codeID"`
	Balance int64  `json:"balance,omitempty"`
}

// CreateCodeRequest carries the client-supplied fields of a new code.
type CreateCodeRequest struct {
	Title             string `json:"title"`
	Destination       string `json:"destination"`
	ProductReference  string `json:"productReference"`
	DiscountReference string `json:"discountReference"`
}

// UpdateCodeRequest is a partial update; absent fields retain prior values.
type UpdateCodeRequest struct {
	Title             *string `json:"title"`
	Destination       *string `json:"destination"`
	ProductReference  *string `json:"productReference"`
	DiscountReference *string `json:"discountReference"`
}

// StorePointsRequest stores the first balance for a code.
type StorePointsRequest struct {
	CodeID         string `json:"codeID"`
	CustomerPoints int64  `json:"customerPoints"`
}

// UpdatePointsRequest overwrites the balance for the code in the path.
type UpdatePointsRequest struct {
	CustomerPoints int64 `json:"customerPoints"`
}

// ErrorEnvelope encodes API errors.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload contains the code and message for user-visible errors.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
