// Package futures implements the exchange Gateway contract against Binance
// USDT-M perpetual futures.
package futures

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client handles Binance USDT-M futures.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	timeSync   *common.TimeSync
	budget     *common.Budget
	log        *zap.Logger
}

// NewClient creates a USDT-M futures client. budget may be shared with other
// clients of the same user so their combined request rate is coordinated.
func NewClient(cfg Config, budget *common.Budget, log *zap.Logger) *Client {
	base := "https://fapi.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binancefuture.com"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		budget:     budget,
		log:        log.Named("binance_futures"),
	}
	c.timeSync = common.NewTimeSync(c.GetServerTime, log)
	return c
}

// StartTimeSync begins periodic clock synchronization.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

// GetCandles returns up to limit klines, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", timeframe)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doPublic(ctx, c.baseURL+"/fapi/v1/klines?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]common.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		openTime, _ := k[0].(float64)
		candles = append(candles, common.Candle{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     parseField(k[1]),
			High:     parseField(k[2]),
			Low:      parseField(k[3]),
			Close:    parseField(k[4]),
			Volume:   parseField(k[5]),
		})
	}
	return candles, nil
}

// GetPositions returns open positions for the symbol from the position risk
// endpoint. Entries with zero size are filtered out.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]common.Position, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance usdt futures: API key/secret required")
	}
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(symbol))
	}
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}

	var raw []positionRisk
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]common.Position, 0, len(raw))
	for _, p := range raw {
		amt := parseStr(p.PositionAmt)
		if amt == 0 {
			continue
		}
		side := common.PositionLong
		if amt < 0 || p.PositionSide == "SHORT" {
			side = common.PositionShort
		}
		leverage := int(parseStr(p.Leverage))
		entry := parseStr(p.EntryPrice)
		size := math.Abs(amt)

		margin := parseStr(p.IsolatedMargin)
		if margin == 0 && leverage > 0 {
			margin = size * entry / float64(leverage)
		}

		positions = append(positions, common.Position{
			Symbol:           p.Symbol,
			Side:             side,
			EntryPrice:       entry,
			MarkPrice:        parseStr(p.MarkPrice),
			Size:             size,
			Leverage:         leverage,
			MarginUsed:       margin,
			LiquidationPrice: parseStr(p.LiquidationPrice),
			UnrealizedPnL:    parseStr(p.UnrealizedProfit),
			OpenedAt:         time.UnixMilli(p.UpdateTime),
		})
	}
	return positions, nil
}

// GetBalance returns the USDT futures balance.
func (c *Client) GetBalance(ctx context.Context) (common.Balance, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.Balance{}, errors.New("binance usdt futures: API key/secret required")
	}
	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	body, err := c.doSigned(ctx, http.MethodGet, c.baseURL+"/fapi/v2/balance", params)
	if err != nil {
		return common.Balance{}, err
	}

	var raw []futuresBalance
	if err := json.Unmarshal(body, &raw); err != nil {
		return common.Balance{}, fmt.Errorf("decode balance: %w", err)
	}
	for _, b := range raw {
		if b.Asset != "USDT" {
			continue
		}
		total := parseStr(b.Balance)
		available := parseStr(b.AvailableBalance)
		return common.Balance{
			Total:      total,
			Available:  available,
			UsedMargin: total - available,
		}, nil
	}
	return common.Balance{}, errors.New("binance usdt futures: no USDT asset in balance response")
}

// SetLeverage sets leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("leverage", strconv.Itoa(leverage))
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	_, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/leverage", params)
	return err
}

// PlaceMarketOrder submits a market order and returns the exchange ack.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side common.Side, size float64, reduceOnly bool) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, errors.New("binance usdt futures: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", formatFloat(size))
	params.Set("newOrderRespType", "RESULT")
	if reduceOnly {
		params.Set("reduceOnly", "true")
	}
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	body, err := c.doSigned(ctx, http.MethodPost, c.baseURL+"/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientID:        resp.ClientOrderID,
		AvgFillPrice:    parseStr(resp.AvgPrice),
		FilledSize:      parseStr(resp.ExecutedQty),
		Status:          mapStatus(resp.Status),
	}, nil
}

// GetServerTime fetches futures server time.
func (c *Client) GetServerTime() (int64, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/fapi/v1/time")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("server time status %d: %s", resp.StatusCode, string(b))
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

func (c *Client) doPublic(ctx context.Context, fullURL string) ([]byte, error) {
	if c.budget != nil {
		// Market-data calls are skippable; back off for the rest of the
		// weight window instead of risking an IP ban.
		if c.budget.Saturated() {
			return nil, &common.APIError{HTTPStatus: http.StatusTooManyRequests, Message: "request weight budget saturated"}
		}
		if err := c.budget.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// doSigned handles signing and sending authenticated requests.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if c.budget != nil {
		if err := c.budget.Wait(ctx); err != nil {
			return nil, err
		}
	}

	sig := sign(params.Encode(), c.cfg.APISecret)
	params.Set("signature", sig)
	encoded := params.Encode()

	var (
		req *http.Request
		err error
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if c.budget != nil {
		c.budget.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))
	}

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		apiErr := &common.APIError{HTTPStatus: res.StatusCode, Message: string(body)}
		var venue struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &venue) == nil && venue.Msg != "" {
			apiErr.Code = venue.Code
			apiErr.Message = venue.Msg
		}
		return nil, apiErr
	}
	return body, nil
}

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseStr(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseField(v any) float64 {
	switch t := v.(type) {
	case string:
		return parseStr(t)
	case float64:
		return t
	}
	return 0
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "NEW":
		return common.StatusNew
	case "FILLED":
		return common.StatusFilled
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "REJECTED", "EXPIRED", "CANCELED":
		return common.StatusRejected
	}
	return common.StatusUnknown
}

type positionRisk struct {
	Symbol           string `json:"symbol"`
	PositionSide     string `json:"positionSide"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	IsolatedMargin   string `json:"isolatedMargin"`
	UpdateTime       int64  `json:"updateTime"`
}

type futuresBalance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
}
