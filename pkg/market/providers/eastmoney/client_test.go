package eastmoney

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse-api/pkg/market"
)

const quoteBody = `{"data":{"f43":11.23,"f44":11.40,"f45":11.05,"f46":11.10,"f47":1523400,"f48":170345678.0,"f57":"000001","f58":"PING AN BANK","f60":11.00,"f127":"Banking"}}`

const klineBody = `{"data":{"code":"000001","name":"PING AN BANK","klines":[` +
	`"2024-01-02,11.10,11.23,11.40,11.05,1523400,170345678.0,3.15,1.17,0.13,0.85",` +
	`"2024-01-03,11.23,11.08,11.30,11.01,1377900,152801200.0,2.58,-1.34,-0.15,0.77"]}}`

func TestClientGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qt/stock/get", r.URL.Path)
		require.Equal(t, "0.000001", r.URL.Query().Get("secid"))
		w.Write([]byte(quoteBody))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	data, err := client.getQuote(context.Background(), "0.000001")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Equal(t, "000001", data.Code)
	require.InDelta(t, 11.23, data.Current, 1e-9)
	require.InDelta(t, 11.00, data.PrevClose, 1e-9)
}

func TestClientGetQuoteJSONPWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jQuery112404953340710317169_1629360000000(" + quoteBody + ");"))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	data, err := client.getQuote(context.Background(), "0.000001")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Equal(t, "PING AN BANK", data.Name)
}

func TestClientSplitHostsAndUserAgent(t *testing.T) {
	quoteServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qt/stock/get", r.URL.Path)
		require.Equal(t, "custom-agent/2.0", r.Header.Get("User-Agent"))
		w.Write([]byte(quoteBody))
	}))
	defer quoteServer.Close()
	historyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qt/stock/kline/get", r.URL.Path)
		require.Equal(t, "custom-agent/2.0", r.Header.Get("User-Agent"))
		w.Write([]byte(klineBody))
	}))
	defer historyServer.Close()

	client := NewClient(
		WithQuoteBaseURL(quoteServer.URL),
		WithHistoryBaseURL(historyServer.URL),
		WithUserAgent("custom-agent/2.0"),
	)
	quote, err := client.getQuote(context.Background(), "0.000001")
	require.NoError(t, err)
	require.Equal(t, "000001", quote.Code)

	klines, err := client.getKlines(context.Background(), "0.000001", "101", 2)
	require.NoError(t, err)
	require.Len(t, klines.Klines, 2)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(quoteBody))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMaxRetries(3), WithRetryBackoff(time.Millisecond))
	data, err := client.getQuote(context.Background(), "0.000001")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.EqualValues(t, 3, calls.Load())
}

func TestClientGivesUpAfterRetryBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithMaxRetries(1))
	_, err := client.getQuote(context.Background(), "0.000001")
	require.Error(t, err)
	require.Contains(t, err.Error(), "http status 500")
}

func TestProviderFetchQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(quoteBody))
	}))
	defer server.Close()

	provider := NewProvider(WithClientOptions(WithBaseURL(server.URL)))
	quote, err := provider.FetchQuote(context.Background(), "000001")
	require.NoError(t, err)
	require.Equal(t, "000001", quote.Code)
	require.InDelta(t, 0.23, quote.ChangeAmount, 1e-9)
	require.InDelta(t, 0.23/11.00*100, quote.ChangePercent, 1e-9)
	require.False(t, quote.At.IsZero())
}

func TestProviderFetchQuoteNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	provider := NewProvider(WithClientOptions(WithBaseURL(server.URL)))
	_, err := provider.FetchQuote(context.Background(), "999999")
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestProviderFetchBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/qt/stock/kline/get", r.URL.Path)
		require.Equal(t, "101", r.URL.Query().Get("klt"))
		w.Write([]byte(klineBody))
	}))
	defer server.Close()

	provider := NewProvider(WithClientOptions(WithBaseURL(server.URL)))
	bars, err := provider.FetchBars(context.Background(), "000001", market.Period1d, 100)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	first := bars[0]
	require.Equal(t, "000001", first.Code)
	require.Equal(t, market.Period1d, first.Period)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), first.Timestamp)
	require.InDelta(t, 11.10, first.Open, 1e-9)
	require.InDelta(t, 11.23, first.Close, 1e-9)
	require.InDelta(t, 0.13, first.ChangeAmount, 1e-9)
	require.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
}

func TestProviderFetchBarsSkipsMalformedLines(t *testing.T) {
	body := `{"data":{"code":"000001","klines":["garbage","2024-01-02,11.10,11.23,11.40,11.05,1523400,170345678.0"]}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	provider := NewProvider(WithClientOptions(WithBaseURL(server.URL)))
	bars, err := provider.FetchBars(context.Background(), "000001", market.Period1d, 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
}

func TestProviderWrapsTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewProvider(WithClientOptions(WithBaseURL(server.URL), WithMaxRetries(0)))
	_, err := provider.FetchInfo(context.Background(), "000001")
	require.Error(t, err)

	var provErr *market.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, "fetch_info", provErr.Op)
	require.Equal(t, "000001", provErr.Code)
}

func TestSecidFor(t *testing.T) {
	require.Equal(t, "1.600036", secidFor("600036"))
	require.Equal(t, "0.000001", secidFor("000001"))
	require.Equal(t, "0.300750", secidFor("300750"))
}
