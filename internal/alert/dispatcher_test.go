package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-churn/internal/config"
	"retail-churn/internal/retail"
)

func testConfig(webhookURL string) config.Config {
	return config.Config{
		WebhookURL:   webhookURL,
		AlertTimeout: 2 * time.Second,
		Policy:       config.DefaultPolicy(),
	}
}

func TestShouldAlertIsConjunction(t *testing.T) {
	d := NewDispatcher(testConfig("http://example.invalid"))

	cases := []struct {
		name        string
		probability float64
		monetary    float64
		want        bool
	}{
		{"both thresholds exceeded", 0.80, 5000.0, true},
		{"low probability", 0.20, 5000.0, false},
		{"low monetary", 0.80, 500.50, false},
		{"both low", 0.20, 500.50, false},
		{"probability at threshold", 0.75, 5000.0, false},
		{"monetary at threshold", 0.80, 1000.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := retail.ScoringInput{Recency: 5, Frequency: 20, Monetary: tc.monetary}
			assert.Equal(t, tc.want, d.ShouldAlert(tc.probability, in))
		})
	}
}

func TestDispatchPostsFormattedMessage(t *testing.T) {
	var calls int
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(testConfig(srv.URL))
	d.Dispatch(0.80, retail.ScoringInput{Recency: 5, Frequency: 20, Monetary: 5000.0})

	assert.Equal(t, 1, calls)
	msg := payload["text"]
	assert.Contains(t, msg, "High-Risk VIP Customer Alert!")
	assert.Contains(t, msg, "*80.00%*")
	assert.Contains(t, msg, "Recency: 5 days")
	assert.Contains(t, msg, "Frequency: 20 purchases")
	assert.Contains(t, msg, "$5,000.00")
}

func TestDispatchAbsorbsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable endpoint

	d := NewDispatcher(testConfig(srv.URL))
	// Must not panic or block; failure is logged only.
	d.Dispatch(0.90, retail.ScoringInput{Recency: 5, Frequency: 20, Monetary: 5000.0})
}

func TestDispatchAbsorbsNon2xxResponse(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDispatcher(testConfig(srv.URL))
	d.Dispatch(0.90, retail.ScoringInput{Recency: 5, Frequency: 20, Monetary: 5000.0})

	// One attempt, no retry.
	assert.Equal(t, 1, calls)
}
