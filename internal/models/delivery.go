package models

import "github.com/google/uuid"

// DeliveryStatus is the outcome of one in-game command
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// Delivery sources
const (
	SourceProduct = "product"
	SourcePromo   = "promo"
)

// PlayerContext identifies the in-game recipient of a command
type PlayerContext struct {
	PlayerName string `json:"playerName"`
	UUID       string `json:"uuid"`
	Username   string `json:"username"`
}

// CommandResult records the delivery of a single command
type CommandResult struct {
	Source   string         `json:"source"`
	SourceID string         `json:"sourceId"`
	Command  string         `json:"command"`
	Status   DeliveryStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
}

// DeliveryReport collects per-command outcomes of a fulfillment or redemption
type DeliveryReport struct {
	OrderID *uuid.UUID      `json:"orderId,omitempty"`
	Player  PlayerContext   `json:"player"`
	Results []CommandResult `json:"results"`
	Sent    int             `json:"sent"`
	Failed  int             `json:"failed"`
	Skipped int             `json:"skipped"`
}

// Add appends a result and updates the tallies
func (r *DeliveryReport) Add(res CommandResult) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case DeliverySent:
		r.Sent++
	case DeliveryFailed:
		r.Failed++
	case DeliverySkipped:
		r.Skipped++
	}
}

// HasFailures reports whether any command failed
func (r *DeliveryReport) HasFailures() bool {
	return r.Failed > 0
}

// FailedResults returns the results that failed
func (r *DeliveryReport) FailedResults() []CommandResult {
	var out []CommandResult
	for _, res := range r.Results {
		if res.Status == DeliveryFailed {
			out = append(out, res)
		}
	}
	return out
}
