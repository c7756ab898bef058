package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tryon-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
)

const defaultBaseURL = "https://api.paddle.com"

var errAPIKeyRequired = errors.New("paddle api key is required")

// Client calls the Paddle Billing API.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	productID string
	logger    *logger.Logger
}

// NewClient validates the credentials and builds a client.
func NewClient(ctx context.Context, cfg config.PaddleConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse paddle base url: %w", err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if logg != nil {
		logg.Info(ctx, "paddle client initialized")
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		apiKey:    apiKey,
		productID: strings.TrimSpace(cfg.OverageProductID),
		logger:    logg,
	}, nil
}

// Charge is a one-off amount billed against an existing subscription.
type Charge struct {
	Description string
	UnitPrice   decimal.Decimal
	Currency    string
	Quantity    int
}

type chargeRequest struct {
	EffectiveFrom string       `json:"effective_from"`
	Items         []chargeItem `json:"items"`
}

type chargeItem struct {
	Quantity int         `json:"quantity"`
	Price    chargePrice `json:"price"`
}

type chargePrice struct {
	Description string      `json:"description"`
	ProductID   string      `json:"product_id,omitempty"`
	UnitPrice   chargeMoney `json:"unit_price"`
}

type chargeMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type apiErrorBody struct {
	Error struct {
		Type   string `json:"type"`
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"error"`
}

// ChargeSubscription bills a one-time charge on the subscription's next
// immediate invoice.
func (c *Client) ChargeSubscription(ctx context.Context, subscriptionID string, charge Charge) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	if !charge.UnitPrice.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge price must be positive")
	}
	quantity := charge.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	currency := strings.ToUpper(strings.TrimSpace(charge.Currency))
	if currency == "" {
		currency = "USD"
	}

	payload := chargeRequest{
		EffectiveFrom: "immediately",
		Items: []chargeItem{{
			Quantity: quantity,
			Price: chargePrice{
				Description: charge.Description,
				ProductID:   c.productID,
				UnitPrice: chargeMoney{
					Amount:       minorUnits(charge.UnitPrice),
					CurrencyCode: currency,
				},
			},
		}},
	}

	c.log(ctx, "request", "charge_subscription", map[string]any{
		"subscription_id": subscriptionID,
		"amount":          payload.Items[0].Price.UnitPrice.Amount,
		"currency":        currency,
	})
	endpoint := fmt.Sprintf("%s/subscriptions/%s/charge", c.baseURL, url.PathEscape(subscriptionID))
	if err := c.do(ctx, http.MethodPost, endpoint, payload); err != nil {
		c.log(ctx, "error", "charge_subscription", map[string]any{"error": err.Error()})
		return err
	}
	c.log(ctx, "response", "charge_subscription", map[string]any{"subscription_id": subscriptionID})
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paddle request")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(buf))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paddle request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paddle request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return mapPaddleError(resp)
}

func mapPaddleError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body apiErrorBody
	detail := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		detail = fmt.Sprintf("%s: %s", body.Error.Code, body.Error.Detail)
	}
	cause := fmt.Errorf("paddle status %d: %s", resp.StatusCode, detail)

	code := pkgerrors.CodeDependency
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = pkgerrors.CodeValidation
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	}
	return pkgerrors.Wrap(code, cause, "paddle charge rejected")
}

// minorUnits renders a major-unit price as an integer string of minor units.
func minorUnits(price decimal.Decimal) string {
	return price.Shift(2).Round(0).StringFixed(0)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paddle %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paddle %s", phase))
	}
}
