package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

const (
	tradierLiveURL    = "https://api.tradier.com"
	tradierSandboxURL = "https://sandbox.tradier.com"
)

// TradierAdapter routes option orders through Tradier's REST API.
// Submissions are form-encoded and acknowledged asynchronously, so fills
// always arrive through polling.
type TradierAdapter struct {
	apiKey    string
	accountID string
	baseURL   string
	client    *http.Client
}

// NewTradierAdapter builds an adapter against the sandbox or live host.
func NewTradierAdapter(apiKey, accountID string, sandbox bool, timeout time.Duration) *TradierAdapter {
	baseURL := tradierLiveURL
	if sandbox {
		baseURL = tradierSandboxURL
	}
	return &TradierAdapter{
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (t *TradierAdapter) IsConfigured() bool {
	return t.apiKey != "" && t.accountID != ""
}

func (t *TradierAdapter) Capabilities() Capabilities {
	return Capabilities{Name: "tradier", SupportsOptions: true, RequiresPolling: true}
}

func (t *TradierAdapter) SubmitOrder(ctx context.Context, req OrderRequest, _ float64) (*OrderResult, *types.Trade, error) {
	decoded, err := types.DecodeOCC(req.Symbol)
	if err != nil {
		return &OrderResult{Success: false, Status: types.OrderRejected, RejectionReason: err.Error()}, nil, nil
	}

	form := url.Values{}
	form.Set("class", "option")
	form.Set("symbol", decoded.Underlying)
	form.Set("option_symbol", strings.ReplaceAll(req.Symbol, " ", ""))
	form.Set("side", tradierSide(req.Side))
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("type", strings.ToLower(string(req.OrderType)))
	form.Set("duration", strings.ToLower(string(req.TIF)))
	if req.OrderType == types.OrderLimit || req.OrderType == types.OrderStopLimit {
		form.Set("price", fmt.Sprintf("%.2f", req.LimitPrice))
	}
	if req.OrderType == types.OrderStop || req.OrderType == types.OrderStopLimit {
		form.Set("stop", fmt.Sprintf("%.2f", req.StopPrice))
	}

	body, err := t.doForm(ctx, http.MethodPost, fmt.Sprintf("/v1/accounts/%s/orders", t.accountID), form)
	if err != nil {
		return &OrderResult{Success: false, Status: types.OrderRejected, RejectionReason: err.Error()}, nil, err
	}

	var resp struct {
		Order struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("tradier: parse submit response: %w", err)
	}

	return &OrderResult{
		Success:             true,
		BrokerOrderID:       resp.Order.ID.String(),
		Status:              tradierStatus(resp.Order.Status),
		EstimatedFillTimeMs: 2_000,
	}, nil, nil
}

func (t *TradierAdapter) CancelOrder(ctx context.Context, _, brokerOrderID string) (bool, error) {
	_, err := t.doForm(ctx, http.MethodDelete, fmt.Sprintf("/v1/accounts/%s/orders/%s", t.accountID, brokerOrderID), nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *TradierAdapter) GetOrderStatus(ctx context.Context, _, brokerOrderID string) (*OrderStatusResponse, error) {
	body, err := t.doForm(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/orders/%s", t.accountID, brokerOrderID), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Order struct {
			ID           json.Number `json:"id"`
			Status       string      `json:"status"`
			ExecQuantity float64     `json:"exec_quantity"`
			AvgFillPrice float64     `json:"avg_fill_price"`
		} `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tradier: parse status response: %w", err)
	}

	return &OrderStatusResponse{
		BrokerOrderID:  resp.Order.ID.String(),
		Status:         tradierStatus(resp.Order.Status),
		FilledQuantity: int(resp.Order.ExecQuantity),
		AvgFillPrice:   resp.Order.AvgFillPrice,
		UpdatedAt:      time.Now(),
	}, nil
}

func (t *TradierAdapter) GetOrderFills(ctx context.Context, orderID, brokerOrderID string) ([]TradeFill, error) {
	status, err := t.GetOrderStatus(ctx, orderID, brokerOrderID)
	if err != nil {
		return nil, err
	}
	if status.FilledQuantity == 0 {
		return nil, nil
	}
	// Tradier reports aggregate execution on the order itself; synthesize
	// one fill from it.
	return []TradeFill{{
		BrokerTradeID:  brokerOrderID + "-1",
		ExecutionPrice: status.AvgFillPrice,
		Quantity:       status.FilledQuantity,
		ExecutedAt:     status.UpdatedAt,
	}}, nil
}

func (t *TradierAdapter) doForm(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("tradier: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tradier: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tradier: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		logger.Warnf("tradier: %s %s returned %d: %s", method, path, resp.StatusCode, string(body))
		return nil, fmt.Errorf("tradier: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func tradierSide(side types.OrderSide) string {
	switch side {
	case types.SideBuy:
		return "buy_to_open"
	case types.SideSellToOpen:
		return "sell_to_open"
	case types.SideClose:
		return "sell_to_close"
	default:
		return "buy_to_open"
	}
}

func tradierStatus(s string) types.OrderStatus {
	switch strings.ToLower(s) {
	case "ok", "pending", "open", "submitted":
		return types.OrderSubmitted
	case "accepted":
		return types.OrderAccepted
	case "partially_filled":
		return types.OrderPartialFill
	case "filled":
		return types.OrderFilled
	case "canceled", "cancelled":
		return types.OrderCancelled
	case "rejected", "error":
		return types.OrderRejected
	case "expired":
		return types.OrderExpired
	default:
		return types.OrderSubmitted
	}
}
