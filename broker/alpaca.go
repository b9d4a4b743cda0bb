package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

const (
	alpacaLiveURL  = "https://api.alpaca.markets"
	alpacaPaperURL = "https://paper-api.alpaca.markets"
)

// AlpacaAdapter routes option orders through Alpaca's JSON REST API.
type AlpacaAdapter struct {
	apiKey    string
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewAlpacaAdapter builds an adapter against the paper or live host.
func NewAlpacaAdapter(apiKey, secretKey string, paper bool, timeout time.Duration) *AlpacaAdapter {
	baseURL := alpacaLiveURL
	if paper {
		baseURL = alpacaPaperURL
	}
	return &AlpacaAdapter{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (a *AlpacaAdapter) IsConfigured() bool {
	return a.apiKey != "" && a.secretKey != ""
}

func (a *AlpacaAdapter) Capabilities() Capabilities {
	return Capabilities{Name: "alpaca", SupportsOptions: true, RequiresPolling: true}
}

// alpacaOrder is the subset of Alpaca's order resource we consume.
type alpacaOrder struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	UpdatedAt      string `json:"updated_at"`
}

func (a *AlpacaAdapter) SubmitOrder(ctx context.Context, req OrderRequest, _ float64) (*OrderResult, *types.Trade, error) {
	payload := map[string]interface{}{
		"symbol":        strings.ReplaceAll(req.Symbol, " ", ""),
		"qty":           strconv.Itoa(req.Quantity),
		"side":          alpacaSide(req.Side),
		"type":          strings.ToLower(string(req.OrderType)),
		"time_in_force": strings.ToLower(string(req.TIF)),
	}
	if req.OrderType == types.OrderLimit || req.OrderType == types.OrderStopLimit {
		payload["limit_price"] = fmt.Sprintf("%.2f", req.LimitPrice)
	}
	if req.OrderType == types.OrderStop || req.OrderType == types.OrderStopLimit {
		payload["stop_price"] = fmt.Sprintf("%.2f", req.StopPrice)
	}

	body, err := a.doJSON(ctx, http.MethodPost, "/v2/orders", payload)
	if err != nil {
		return &OrderResult{Success: false, Status: types.OrderRejected, RejectionReason: err.Error()}, nil, err
	}

	var order alpacaOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, nil, fmt.Errorf("alpaca: parse submit response: %w", err)
	}

	return &OrderResult{
		Success:             true,
		BrokerOrderID:       order.ID,
		Status:              alpacaStatus(order.Status),
		EstimatedFillTimeMs: 1_000,
	}, nil, nil
}

func (a *AlpacaAdapter) CancelOrder(ctx context.Context, _, brokerOrderID string) (bool, error) {
	_, err := a.doJSON(ctx, http.MethodDelete, "/v2/orders/"+brokerOrderID, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *AlpacaAdapter) GetOrderStatus(ctx context.Context, _, brokerOrderID string) (*OrderStatusResponse, error) {
	body, err := a.doJSON(ctx, http.MethodGet, "/v2/orders/"+brokerOrderID, nil)
	if err != nil {
		return nil, err
	}

	var order alpacaOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("alpaca: parse order response: %w", err)
	}

	filledQty, _ := strconv.Atoi(order.FilledQty)
	avgPrice, _ := strconv.ParseFloat(order.FilledAvgPrice, 64)
	updatedAt, err := time.Parse(time.RFC3339, order.UpdatedAt)
	if err != nil {
		updatedAt = time.Now()
	}

	return &OrderStatusResponse{
		BrokerOrderID:  order.ID,
		Status:         alpacaStatus(order.Status),
		FilledQuantity: filledQty,
		AvgFillPrice:   avgPrice,
		UpdatedAt:      updatedAt,
	}, nil
}

func (a *AlpacaAdapter) GetOrderFills(ctx context.Context, orderID, brokerOrderID string) ([]TradeFill, error) {
	status, err := a.GetOrderStatus(ctx, orderID, brokerOrderID)
	if err != nil {
		return nil, err
	}
	if status.FilledQuantity == 0 {
		return nil, nil
	}
	return []TradeFill{{
		BrokerTradeID:  brokerOrderID + "-1",
		ExecutionPrice: status.AvgFillPrice,
		Quantity:       status.FilledQuantity,
		ExecutedAt:     status.UpdatedAt,
	}}, nil
}

func (a *AlpacaAdapter) doJSON(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("alpaca: marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("alpaca: build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpaca: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alpaca: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		logger.Warnf("alpaca: %s %s returned %d: %s", method, path, resp.StatusCode, string(body))
		return nil, fmt.Errorf("alpaca: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func alpacaSide(side types.OrderSide) string {
	switch side {
	case types.SideSellToOpen, types.SideClose:
		return "sell"
	default:
		return "buy"
	}
}

func alpacaStatus(s string) types.OrderStatus {
	switch strings.ToLower(s) {
	case "new", "pending_new", "accepted_for_bidding":
		return types.OrderSubmitted
	case "accepted":
		return types.OrderAccepted
	case "partially_filled":
		return types.OrderPartialFill
	case "filled":
		return types.OrderFilled
	case "canceled", "cancelled", "done_for_day":
		return types.OrderCancelled
	case "rejected", "stopped", "suspended":
		return types.OrderRejected
	case "expired":
		return types.OrderExpired
	default:
		return types.OrderSubmitted
	}
}
