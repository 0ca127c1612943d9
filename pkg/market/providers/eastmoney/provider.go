package eastmoney

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketpulse-api/pkg/market"
)

const defaultProviderTimeout = 30 * time.Second

// Provider adapts the Eastmoney client to the market.Provider contract.
type Provider struct {
	client     *Client
	timeout    time.Duration
	providerID string
}

type providerConfig struct {
	timeout       time.Duration
	clientOptions []Option
}

// ProviderOption customises the Eastmoney provider.
type ProviderOption func(*providerConfig)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithClientOptions passes options to the underlying client.
func WithClientOptions(options ...Option) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.clientOptions = append(cfg.clientOptions, options...)
	}
}

// NewProvider constructs an Eastmoney market provider.
func NewProvider(opts ...ProviderOption) *Provider {
	cfg := &providerConfig{timeout: defaultProviderTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Provider{
		client:  NewClient(cfg.clientOptions...),
		timeout: cfg.timeout,
	}
}

func init() {
	market.RegisterProvider("eastmoney", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		opts := []ProviderOption{}
		clientOptions := []Option{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.BaseURL != "" {
			clientOptions = append(clientOptions, WithBaseURL(cfg.BaseURL))
		}
		if cfg.QuoteBaseURL != "" {
			clientOptions = append(clientOptions, WithQuoteBaseURL(cfg.QuoteBaseURL))
		}
		if cfg.HistoryBaseURL != "" {
			clientOptions = append(clientOptions, WithHistoryBaseURL(cfg.HistoryBaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			clientOptions = append(clientOptions, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.MaxRetries > 0 {
			clientOptions = append(clientOptions, WithMaxRetries(cfg.MaxRetries))
		}
		if cfg.RetryBackoff > 0 {
			clientOptions = append(clientOptions, WithRetryBackoff(cfg.RetryBackoff))
		}
		if cfg.UserAgent != "" {
			clientOptions = append(clientOptions, WithUserAgent(cfg.UserAgent))
		}
		if len(clientOptions) > 0 {
			opts = append(opts, WithClientOptions(clientOptions...))
		}
		provider := NewProvider(opts...)
		provider.providerID = name
		return provider, nil
	})
}

// FetchInfo implements market.Provider.
func (p *Provider) FetchInfo(ctx context.Context, code string) (*market.InstrumentInfo, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	data, err := p.client.getQuote(ctx, secidFor(code))
	if err != nil {
		return nil, p.wrap("fetch_info", code, err)
	}
	if data == nil || strings.TrimSpace(data.Code) == "" {
		return nil, market.ErrNotFound
	}
	return &market.InstrumentInfo{
		Code:     data.Code,
		Name:     data.Name,
		Market:   marketFor(code),
		Industry: data.Industry,
		Active:   true,
	}, nil
}

// FetchQuote implements market.Provider.
func (p *Provider) FetchQuote(ctx context.Context, code string) (*market.Quote, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	data, err := p.client.getQuote(ctx, secidFor(code))
	if err != nil {
		return nil, p.wrap("fetch_quote", code, err)
	}
	if data == nil || strings.TrimSpace(data.Code) == "" {
		return nil, market.ErrNotFound
	}
	quote := &market.Quote{
		Code:         data.Code,
		Name:         data.Name,
		Current:      data.Current,
		Open:         data.Open,
		High:         data.High,
		Low:          data.Low,
		PrevClose:    data.PrevClose,
		Volume:       data.Volume,
		Turnover:     data.Turnover,
		ChangeAmount: data.Current - data.PrevClose,
		At:           time.Now().UTC(),
	}
	if data.PrevClose != 0 {
		quote.ChangePercent = quote.ChangeAmount / data.PrevClose * 100
	}
	return quote, nil
}

// FetchBars implements market.Provider. Bars come back in ascending
// timestamp order, possibly fewer than requested.
func (p *Provider) FetchBars(ctx context.Context, code string, period market.Period, count int) ([]market.Bar, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if count <= 0 {
		count = 100
	}
	data, err := p.client.getKlines(ctx, secidFor(code), kltFor(period), count)
	if err != nil {
		return nil, p.wrap("fetch_bars", code, err)
	}
	if data == nil {
		return nil, market.ErrNotFound
	}

	bars := make([]market.Bar, 0, len(data.Klines))
	for _, line := range data.Klines {
		bar, ok := parseKline(code, period, line)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseKline decodes one comma-joined kline record:
// date,open,close,high,low,volume,amount,amplitude,changepct,changeamt,turnover_rate.
func parseKline(code string, period market.Period, line string) (market.Bar, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return market.Bar{}, false
	}
	ts, err := time.ParseInLocation("2006-01-02", parts[0], time.UTC)
	if err != nil {
		return market.Bar{}, false
	}
	values := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return market.Bar{}, false
		}
		values[i] = v
	}
	bar := market.Bar{
		Code:      code,
		Period:    period,
		Timestamp: ts,
		Open:      values[0],
		Close:     values[1],
		High:      values[2],
		Low:       values[3],
		Volume:    values[4],
		Turnover:  values[5],
	}
	bar.FillDerived()
	return bar, true
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Provider) wrap(op, code string, err error) error {
	if market.IsNotFound(err) {
		return err
	}
	return &market.ProviderError{Provider: p.name(), Op: op, Code: code, Err: err}
}

func (p *Provider) name() string {
	if strings.TrimSpace(p.providerID) != "" {
		return p.providerID
	}
	return "eastmoney"
}

// secidFor maps an instrument code to the Eastmoney security id.
// Shanghai listings (6xxxxx) use the "1." prefix, Shenzhen the "0.".
func secidFor(code string) string {
	if strings.HasPrefix(code, "6") {
		return "1." + code
	}
	return "0." + code
}

func marketFor(code string) string {
	if strings.HasPrefix(code, "6") {
		return "SH"
	}
	return "SZ"
}

// kltFor maps a bar period to the Eastmoney klt parameter.
func kltFor(period market.Period) string {
	switch period {
	case market.Period1w:
		return "102"
	case market.Period1M:
		return "103"
	default:
		return "101"
	}
}
