package eastmoney

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	"marketpulse-api/pkg/market"
)

// This test uses go-vcr to record/replay a real Eastmoney quote call.
// It skips by default if cassette is absent and RECORD_CASSETTES != 1.
func TestProvider_FetchQuote_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "eastmoney_quote.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		// Ensure parent directory exists for recording
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	httpClient := &http.Client{Transport: r}
	provider := NewProvider(WithClientOptions(WithHTTPClient(httpClient)))
	ctx := context.Background()
	quote, err := provider.FetchQuote(ctx, "000001")
	assert.NoError(t, err, "FetchQuote should not error")
	assert.NotNil(t, quote, "quote should not be nil")
	assert.Equal(t, "000001", quote.Code, "code should round-trip")
	assert.Greater(t, quote.Current, 0.0, "current price should be positive")
}

// Replays a recorded daily-kline request and checks bar ordering.
func TestProvider_FetchBars_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "eastmoney_klines.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	defer func() { _ = r.Stop() }()

	httpClient := &http.Client{Transport: r}
	provider := NewProvider(WithClientOptions(WithHTTPClient(httpClient)))
	bars, err := provider.FetchBars(context.Background(), "000001", market.Period1d, 30)
	assert.NoError(t, err, "FetchBars should not error")
	assert.NotEmpty(t, bars, "bars should not be empty")
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i-1].Timestamp.Before(bars[i].Timestamp), "bars should be ascending by timestamp")
	}
}
