package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/mileage-service/internal/config"
	"github.com/spec-kit/mileage-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventMemberRegistered, n.handleMemberRegistered)
	n.dispatcher.Subscribe(events.EventMemberDeleted, n.handleMemberDeleted)
	n.dispatcher.Subscribe(events.EventMileageAccrued, n.handleMileageChanged)
	n.dispatcher.Subscribe(events.EventMileageRedeemed, n.handleMileageChanged)
	n.dispatcher.Subscribe(events.EventTierChanged, n.handleTierChanged)
}

func (n *NotificationService) handleMemberRegistered(ctx context.Context, event events.Event) error {
	n.logger.Info("MemberRegistered", zap.Int64("member_id", event.MemberID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMemberDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("MemberDeleted", zap.Int64("member_id", event.MemberID))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMileageChanged(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.Int64("member_id", event.MemberID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// handleTierChanged is the notification that matters to members: a tier
// upgrade earns a congratulation mail, a downgrade never happens because the
// lifetime total only grows.
func (n *NotificationService) handleTierChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TierChanged", zap.Int64("member_id", event.MemberID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("member_id", event.MemberID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.Int64("member_id", event.MemberID),
		zap.String("event_type", string(event.Type)))
}
