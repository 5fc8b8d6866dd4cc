package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"itemwatch/internal/config"
)

// Client fetches the current lowest listing price for one item from the
// market price-overview endpoint. The endpoint localizes prices by country
// and currency code, so the response carries a display string, not a number.
type Client struct {
	http     *http.Client
	baseURL  string
	country  string
	currency string
}

func NewClient(httpClient *http.Client, cfg config.SourceConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "?"),
		country:  cfg.Country,
		currency: cfg.Currency,
	}
}

type priceOverview struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	MedianPrice string `json:"median_price"`
	Volume      string `json:"volume"`
}

func (c *Client) FetchPrice(ctx context.Context, itemName string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("country", c.country)
	q.Set("currency", c.currency)
	q.Set("appid", "730")
	q.Set("market_hash_name", itemName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price overview: unexpected status %d", resp.StatusCode)
	}

	var body priceOverview
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("price overview: decode: %w", err)
	}
	if !body.Success {
		return decimal.Zero, fmt.Errorf("price overview: source reported failure")
	}
	if strings.TrimSpace(body.LowestPrice) == "" {
		return decimal.Zero, fmt.Errorf("price overview: no listing price")
	}

	price, err := ParsePrice(body.LowestPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price overview: %w", err)
	}
	return price, nil
}

// ParsePrice turns a localized listing price ("1 234,56 руб.", "$12.34",
// "12,34€") into a decimal. The last separator in the string is taken as the
// decimal point; everything else is a thousands separator.
func ParsePrice(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return decimal.Zero, fmt.Errorf("parse price %q: no digits", raw)
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		s = strings.ReplaceAll(s, ".", "")
		cut := strings.LastIndex(s, ",")
		s = strings.ReplaceAll(s[:cut], ",", "") + "." + s[cut+1:]
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("parse price %q: negative", raw)
	}
	return price, nil
}

// CurrencyName maps the source currency code to the ISO code persisted with
// each price point. Unknown codes fall back to the code itself.
func CurrencyName(code string) string {
	switch code {
	case "1":
		return "USD"
	case "2":
		return "GBP"
	case "3":
		return "EUR"
	case "5":
		return "RUB"
	case "23":
		return "CNY"
	default:
		return code
	}
}
