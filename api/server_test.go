package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-churn/internal/alert"
	"retail-churn/internal/config"
	"retail-churn/internal/retail"
)

type stubScorer struct {
	probability float64
	err         error
	calls       int
}

func (s *stubScorer) Predict(in retail.ScoringInput) (float64, error) {
	s.calls++
	return s.probability, s.err
}

type stubAlerter struct {
	policy     config.Policy
	dispatched []retail.ScoringInput
}

func (a *stubAlerter) ShouldAlert(probability float64, in retail.ScoringInput) bool {
	return probability > a.policy.AlertProbabilityMin && in.Monetary > a.policy.AlertMonetaryMin
}

func (a *stubAlerter) Dispatch(probability float64, in retail.ScoringInput) {
	a.dispatched = append(a.dispatched, in)
}

func newTestServer(scorer Scorer, alerter Alerter) *httptest.Server {
	return httptest.NewServer(NewServer(scorer, alerter, nil).Handler())
}

func postPredict(t *testing.T, url, body string) (*http.Response, map[string]float64) {
	t.Helper()
	resp, err := http.Post(url+"/predict_churn", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]float64
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp, payload
}

func TestPredictChurnLowRiskNoAlert(t *testing.T) {
	scorer := &stubScorer{probability: 0.20}
	alerter := &stubAlerter{policy: config.DefaultPolicy()}
	srv := newTestServer(scorer, alerter)
	defer srv.Close()

	resp, payload := postPredict(t, srv.URL, `{"recency": 10, "frequency": 5, "monetary": 500.50}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.2, payload["churn_probability"])
	assert.Empty(t, alerter.dispatched)
	assert.Equal(t, 1, scorer.calls)
}

func TestPredictChurnHighRiskDispatchesOnce(t *testing.T) {
	scorer := &stubScorer{probability: 0.80}
	alerter := &stubAlerter{policy: config.DefaultPolicy()}
	srv := newTestServer(scorer, alerter)
	defer srv.Close()

	resp, payload := postPredict(t, srv.URL, `{"recency": 5, "frequency": 20, "monetary": 5000.0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.8, payload["churn_probability"])
	require.Len(t, alerter.dispatched, 1)
	assert.Equal(t, 5000.0, alerter.dispatched[0].Monetary)
}

func TestPredictChurnRoundsToFourDecimals(t *testing.T) {
	scorer := &stubScorer{probability: 0.123456789}
	srv := newTestServer(scorer, nil)
	defer srv.Close()

	resp, payload := postPredict(t, srv.URL, `{"recency": 1, "frequency": 1, "monetary": 1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.1235, payload["churn_probability"])
}

func TestPredictChurnMalformedBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"non-numeric monetary", `{"recency": 10, "frequency": 5, "monetary": "lots"}`},
		{"non-integer recency", `{"recency": 10.5, "frequency": 5, "monetary": 100}`},
		{"missing field", `{"recency": 10, "frequency": 5}`},
		{"negative monetary", `{"recency": 10, "frequency": 5, "monetary": -1}`},
		{"unknown field", `{"recency": 10, "frequency": 5, "monetary": 100, "extra": 1}`},
		{"not json", `recency=10`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scorer := &stubScorer{probability: 0.5}
			srv := newTestServer(scorer, nil)
			defer srv.Close()

			resp, _ := postPredict(t, srv.URL, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Zero(t, scorer.calls, "scorer must not run on invalid input")
		})
	}
}

func TestPredictChurnScorerError(t *testing.T) {
	scorer := &stubScorer{err: fmt.Errorf("model exploded")}
	srv := newTestServer(scorer, nil)
	defer srv.Close()

	resp, _ := postPredict(t, srv.URL, `{"recency": 10, "frequency": 5, "monetary": 100}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPredictChurnSurvivesUnreachableWebhook(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	dispatcher := alert.NewDispatcher(config.Config{
		WebhookURL:   dead.URL,
		AlertTimeout: time.Second,
		Policy:       config.DefaultPolicy(),
	})
	scorer := &stubScorer{probability: 0.80}
	srv := newTestServer(scorer, dispatcher)
	defer srv.Close()

	resp, payload := postPredict(t, srv.URL, `{"recency": 5, "frequency": 20, "monetary": 5000.0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.8, payload["churn_probability"])
}

func TestRootEndpoint(t *testing.T) {
	srv := newTestServer(&stubScorer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "Welcome to the Customer Churn Prediction API", payload["message"])
}

func TestUnknownPathReturns404(t *testing.T) {
	srv := newTestServer(&stubScorer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPredictChurnRejectsGet(t *testing.T) {
	srv := newTestServer(&stubScorer{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/predict_churn")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
