// Package catalog merges live product and discount data into stored code
// records. Lookups are best effort: any failure degrades to the stored
// title and the storefront root, never to a request failure.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/junolabs/qrpoints/pkg/qrcode"
	"go.uber.org/zap"
)

const (
	defaultLookupTimeout = 3 * time.Second

	pathProductLookup  = "/products"
	pathDiscountLookup = "/discounts"
	pathShopData       = "/shop-data"
)

// Client queries the external catalog service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every catalog lookup.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// New returns a Client for the catalog service at baseURL.
func New(baseURL string, logger *zap.Logger, options ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		timeout:    defaultLookupTimeout,
		logger:     logger,
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client
}

type productLookup struct {
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

type discountLookup struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

// ShopData is the storefront metadata proxied to the code form.
type ShopData struct {
	URL       string         `json:"url"`
	Discounts []ShopDiscount `json:"discounts"`
}

// ShopDiscount is one discount code available for new code records.
type ShopDiscount struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Enrich implements qrcode.Enricher.
func (client *Client) Enrich(ctx context.Context, record qrcode.CodeRecord) qrcode.EnrichedRecord {
	enriched := qrcode.EnrichedRecord{
		CodeRecord:     record,
		DisplayTitle:   record.Title.String(),
		DestinationURL: storefrontRoot(record.ShopDomain),
	}
	switch record.Destination {
	case qrcode.DestinationProduct:
		if record.ProductReference == "" {
			return enriched
		}
		lookup, err := client.lookupProduct(ctx, record.ShopDomain, record.ProductReference)
		if err != nil {
			client.logger.Warn("product lookup degraded",
				zap.String("code_id", record.ID.String()),
				zap.String("product_ref", record.ProductReference),
				zap.Error(err))
			return enriched
		}
		if lookup.Title != "" {
			enriched.DisplayTitle = lookup.Title
		}
		if lookup.Handle != "" {
			enriched.DestinationURL = fmt.Sprintf("%s/products/%s", storefrontRoot(record.ShopDomain), url.PathEscape(lookup.Handle))
		}
	case qrcode.DestinationCheckout:
		if record.DiscountReference == "" {
			return enriched
		}
		lookup, err := client.lookupDiscount(ctx, record.ShopDomain, record.DiscountReference)
		if err != nil {
			client.logger.Warn("discount lookup degraded",
				zap.String("code_id", record.ID.String()),
				zap.String("discount_ref", record.DiscountReference),
				zap.Error(err))
			return enriched
		}
		if lookup.Title != "" {
			enriched.DisplayTitle = lookup.Title
		}
		if lookup.Code != "" {
			enriched.DestinationURL = fmt.Sprintf("%s/discount/%s?redirect=%s", storefrontRoot(record.ShopDomain), url.PathEscape(lookup.Code), url.QueryEscape("/checkout"))
		}
	}
	return enriched
}

// FetchShopData returns the storefront URL and available discounts for the
// code form. Unlike Enrich this is a direct proxy and may fail.
func (client *Client) FetchShopData(ctx context.Context, shopDomain qrcode.ShopDomain) (ShopData, error) {
	var data ShopData
	if err := client.getJSON(ctx, pathShopData, shopDomain, "", &data); err != nil {
		return ShopData{}, err
	}
	if data.URL == "" {
		data.URL = storefrontRoot(shopDomain)
	}
	return data, nil
}

func (client *Client) lookupProduct(ctx context.Context, shopDomain qrcode.ShopDomain, reference string) (productLookup, error) {
	var lookup productLookup
	err := client.getJSON(ctx, pathProductLookup, shopDomain, reference, &lookup)
	return lookup, err
}

func (client *Client) lookupDiscount(ctx context.Context, shopDomain qrcode.ShopDomain, reference string) (discountLookup, error) {
	var lookup discountLookup
	err := client.getJSON(ctx, pathDiscountLookup, shopDomain, reference, &lookup)
	return lookup, err
}

func (client *Client) getJSON(ctx context.Context, path string, shopDomain qrcode.ShopDomain, reference string, target any) error {
	requestCtx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("shop", shopDomain.String())
	if reference != "" {
		query.Set("ref", reference)
	}
	requestURL := fmt.Sprintf("%s%s?%s", client.baseURL, path, query.Encode())

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog responded %d", response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

func storefrontRoot(shopDomain qrcode.ShopDomain) string {
	return "https://" + shopDomain.String()
}
