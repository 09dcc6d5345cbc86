// Package alert delivers best-effort webhook notifications for high-value
// at-risk customers.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"retail-churn/internal/config"
	"retail-churn/internal/retail"
)

// Dispatcher evaluates the alert policy and posts notifications to the
// configured webhook. Delivery is best-effort: every failure is logged and
// absorbed, never surfaced to the scoring path.
type Dispatcher struct {
	webhookURL string
	policy     config.Policy
	client     *http.Client
	printer    *message.Printer
}

// NewDispatcher builds a dispatcher from serving configuration.
func NewDispatcher(cfg config.Config) *Dispatcher {
	return &Dispatcher{
		webhookURL: cfg.WebhookURL,
		policy:     cfg.Policy,
		client:     &http.Client{Timeout: cfg.AlertTimeout},
		printer:    message.NewPrinter(language.English),
	}
}

// ShouldAlert reports whether the prediction crosses both alert thresholds.
func (d *Dispatcher) ShouldAlert(probability float64, in retail.ScoringInput) bool {
	return probability > d.policy.AlertProbabilityMin && in.Monetary > d.policy.AlertMonetaryMin
}

// Dispatch posts the alert message to the webhook. No retry, no error
// return: a failed delivery is logged and dropped.
func (d *Dispatcher) Dispatch(probability float64, in retail.ScoringInput) {
	msg := d.formatMessage(probability, in)

	body, err := json.Marshal(map[string]string{"text": msg})
	if err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("Failed to encode alert payload")
		return
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.WithFields(log.Fields{"err": err, "webhook": d.webhookURL}).Warn("Failed to deliver alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{"status": resp.StatusCode, "webhook": d.webhookURL}).Warn("Alert webhook rejected delivery")
		return
	}

	log.WithFields(log.Fields{"probability": probability}).Info("Alert dispatched for high-risk customer")
}

func (d *Dispatcher) formatMessage(probability float64, in retail.ScoringInput) string {
	return fmt.Sprintf(
		"High-Risk VIP Customer Alert!\n"+
			"Churn Probability: *%.2f%%*\n"+
			"Recency: %d days\n"+
			"Frequency: %d purchases\n"+
			"Monetary Value: $%s",
		probability*100,
		in.Recency,
		in.Frequency,
		d.printer.Sprintf("%.2f", in.Monetary),
	)
}
