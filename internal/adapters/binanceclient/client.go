package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.ExecutionGateway and ports.MarketDataSource on
// Binance USD-M futures.
type Client struct {
	futuresClient  *futures.Client
	logger         ports.Logger
	limiter        *rate.Limiter
	interval       string
	quoteAsset     string
	reconnectDelay time.Duration
	connected      atomic.Bool
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey            string
	SecretKey         string
	UseTestnet        bool
	BaseURL           string // overrides the production/testnet URL when set
	Logger            ports.Logger
	Interval          string        // bar interval for Bars, default "1m"
	QuoteAsset        string        // default "USDT"
	ReconnectDelay    time.Duration // pause between connect attempts
	RequestsPerSecond float64       // signed request budget, default 10
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfiguration)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		futuresClient:  client,
		logger:         cfg.Logger,
		limiter:        rate.NewLimiter(rate.Limit(rps), int(rps)),
		interval:       cfg.Interval,
		quoteAsset:     cfg.QuoteAsset,
		reconnectDelay: cfg.ReconnectDelay,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mapAPIError(apiErr.Code), err)
	}

	var mapped error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		mapped = ports.ErrTimeout
	case errors.Is(err, context.Canceled):
		mapped = ports.ErrContextCanceled
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"),
		strings.Contains(err.Error(), "no such host"):
		mapped = ports.ErrConnectivity
	default:
		mapped = ports.ErrUnknown
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
}

func mapAPIError(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp outside recvWindow
		return ports.ErrTimeout
	case -1022, -2014, -2015: // Bad signature, key format or permissions
		return ports.ErrAuthenticationFailed
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -4003, -4014:
		return ports.ErrInvalidInput
	case -2010, -2022: // Order rejected
		return ports.ErrExecutionFailure
	case -2019, -3005, -3041, -4047: // Margin, balance or position limits
		return ports.ErrInsufficientFunds
	default:
		return ports.ErrUnknown
	}
}

// Connect pings the exchange until it answers, making at most maxRetries
// attempts.
func (c *Client) Connect(ctx context.Context, timeout time.Duration, maxRetries int) error {
	op := "Connect"
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.futuresClient.NewPingService().Do(pingCtx)
		cancel()
		if err == nil {
			c.connected.Store(true)
			c.logger.Info(ctx, "Connected to Binance", map[string]interface{}{"attempt": attempt})
			return nil
		}
		lastErr = c.handleError(ctx, err, op)

		if attempt == maxRetries {
			break
		}
		c.logger.Info(ctx, op+": Connection failed, retrying...", map[string]interface{}{"attempt": attempt, "delay": c.reconnectDelay.String()})
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ports.ErrConnectivity, ctx.Err())
		case <-time.After(c.reconnectDelay):
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %w", ports.ErrConnectivity, maxRetries, lastErr)
}

// Disconnect marks the session closed. REST has no session to tear down.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.connected.Swap(false) {
		c.logger.Info(ctx, "Disconnected from Binance")
	}
	return nil
}

// Connected reports whether Connect has succeeded since the last Disconnect.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// SubmitMarketOrder places a market order for a whole-unit quantity.
func (c *Client) SubmitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity int64) (string, error) {
	op := "SubmitMarketOrder"
	if !c.Connected() {
		return "", fmt.Errorf("%w: %w", ports.ErrExecutionFailure, ports.ErrNotConnected)
	}
	if quantity <= 0 || !side.Valid() {
		return "", fmt.Errorf("%w: %w: %s %d %s", ports.ErrExecutionFailure, ports.ErrInvalidInput, side, quantity, symbol)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrExecutionFailure, c.handleError(ctx, err, op))
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatInt(quantity, 10)).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrExecutionFailure, c.handleError(ctx, err, op))
	}

	orderID := strconv.FormatInt(order.OrderID, 10)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": orderID, "avgPrice": order.AvgPrice})
	return orderID, nil
}

// PortfolioSnapshot reads the futures account and open positions.
func (c *Client) PortfolioSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	op := "PortfolioSnapshot"
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.PortfolioSnapshot{}, c.handleError(ctx, err, op)
	}
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, c.handleError(ctx, err, op)
	}
	positions, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, c.handleError(ctx, err, op)
	}

	snap, err := translateAccount(account, positions, c.quoteAsset)
	if err != nil {
		return domain.PortfolioSnapshot{}, c.handleError(ctx, err, op)
	}
	snap.AsOf = time.Now()
	return snap, nil
}

// Bars returns the most recent limit bars for symbol at the configured interval.
func (c *Client) Bars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	op := "Bars"
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(c.interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := translateKline(k, symbol, c.interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// --- Translation Helpers ---

// translateAccount values the account in the quote asset. NAV is the margin
// balance, cash the balance available for new positions.
func translateAccount(account *futures.Account, positions []*futures.PositionRisk, quoteAsset string) (domain.PortfolioSnapshot, error) {
	if account == nil {
		return domain.PortfolioSnapshot{}, errors.New("received nil account")
	}
	nav, err := parseField("totalMarginBalance", account.TotalMarginBalance)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	cash, err := parseField("availableBalance", account.AvailableBalance)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	for _, a := range account.Assets {
		if a != nil && a.Asset == quoteAsset && account.AvailableBalance == "" {
			if cash, err = parseField("availableBalance", a.AvailableBalance); err != nil {
				return domain.PortfolioSnapshot{}, err
			}
		}
	}

	snap := domain.PortfolioSnapshot{
		NAV:       nav,
		Cash:      cash,
		Positions: make(map[string]domain.Holding),
	}
	for _, p := range positions {
		if p == nil {
			continue
		}
		qty, err := parseField("positionAmt", p.PositionAmt)
		if err != nil {
			return domain.PortfolioSnapshot{}, err
		}
		if qty == 0 {
			continue
		}
		mark, err := parseField("markPrice", p.MarkPrice)
		if err != nil {
			return domain.PortfolioSnapshot{}, err
		}
		h := snap.Positions[p.Symbol]
		h.Quantity += qty
		h.Value += qty * mark
		snap.Positions[p.Symbol] = h
	}
	return snap, nil
}

func translateKline(bk *futures.Kline, symbol, interval string) (domain.Bar, error) {
	if bk == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	var (
		vals [5]float64
		err  error
	)
	for i, f := range []struct{ name, raw string }{
		{"open", bk.Open}, {"high", bk.High}, {"low", bk.Low}, {"close", bk.Close}, {"volume", bk.Volume},
	} {
		if vals[i], err = parseField(f.name, f.raw); err != nil {
			return domain.Bar{}, err
		}
	}

	return domain.Bar{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// parseField parses a decimal string; empty means zero.
func parseField(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s '%s': %w", name, raw, err)
	}
	return v, nil
}
