package service

import (
	"context"
	"strings"

	"github.com/Spolkip/AtlasCoreSite/internal/delivery"
	"github.com/Spolkip/AtlasCoreSite/internal/models"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"go.uber.org/zap"
)

const reasonNoLinkedAccount = "no linked minecraft account"

// commandRunner renders command templates for a user and dispatches them,
// recording every outcome in a delivery report. Failures never abort the loop.
type commandRunner struct {
	dispatcher CommandDispatcher
	logger     *zap.Logger
}

func newReport(user *models.User) *models.DeliveryReport {
	report := &models.DeliveryReport{Results: []models.CommandResult{}}
	if user != nil {
		report.Player = delivery.PlayerContextFor(user)
	}
	return report
}

func (r commandRunner) run(ctx context.Context, report *models.DeliveryReport, user *models.User, source, sourceID string, templates []string) {
	for _, tmpl := range templates {
		result := models.CommandResult{Source: source, SourceID: sourceID, Command: tmpl}

		switch {
		case strings.TrimSpace(tmpl) == "":
			result.Status = models.DeliverySkipped
			result.Error = "empty command"
		case user == nil || !user.HasLinkedAccount():
			result.Status = models.DeliverySkipped
			result.Error = reasonNoLinkedAccount
		default:
			result.Command = delivery.RenderCommand(tmpl, user)
			if err := r.dispatcher.ExecuteCommand(ctx, result.Command, report.Player); err != nil {
				result.Status = models.DeliveryFailed
				result.Error = err.Error()
				r.logger.Error("Failed to dispatch command",
					zap.String("source", source),
					zap.String("source_id", sourceID),
					zap.String("command", result.Command),
					zap.String("player", report.Player.PlayerName),
					zap.Error(err))
			} else {
				result.Status = models.DeliverySent
			}
		}

		util.DeliveryCommandsTotal.WithLabelValues(string(result.Status)).Inc()
		report.Add(result)
	}
}

// publishFailures emits one retry event per failed command
func publishFailures(ctx context.Context, events EventPublisher, logger *zap.Logger, report *models.DeliveryReport) {
	for _, res := range report.FailedResults() {
		event := &models.DeliveryFailedEvent{
			BaseEvent: models.NewBaseEvent(models.EventTypeDeliveryFailed),
			OrderID:   report.OrderID,
			Source:    res.Source,
			Command:   res.Command,
			Player:    report.Player,
			Attempt:   1,
		}
		if err := events.PublishDeliveryFailed(ctx, event); err != nil {
			logger.Error("Failed to publish DeliveryFailed event", zap.Error(err))
		}
	}
}
