package notifier

import (
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-servicing/internal/config"
	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/service"
)

// NewSenders builds the channel senders from configuration. Channels without
// settings stay nil and the dispatcher reports them as not configured. With
// NOTIFICATION_LOG_ONLY every channel is logged instead of sent.
func NewSenders(cfg config.NotificationConfig, logger logrus.FieldLogger) service.Senders {
	if cfg.DevelopmentSender {
		logger.Warn("Notification senders are log-only, no reminder leaves this process")
		return service.Senders{
			Email:    NewLogEmailSender(logger),
			WhatsApp: NewLogMessageSender(domain.ChannelWhatsApp, logger),
			SMS:      NewLogMessageSender(domain.ChannelSMS, logger),
		}
	}

	var senders service.Senders
	if cfg.SMTPHost != "" {
		senders.Email = NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SMTPTimeout,
		})
	}
	if cfg.WhatsAppURL != "" {
		senders.WhatsApp = NewGatewaySender(domain.ChannelWhatsApp, cfg.WhatsAppURL, cfg.WhatsAppToken, cfg.GatewayTimeout)
	}
	if cfg.SMSURL != "" {
		senders.SMS = NewGatewaySender(domain.ChannelSMS, cfg.SMSURL, cfg.SMSToken, cfg.GatewayTimeout)
	}

	configured := map[domain.Channel]bool{
		domain.ChannelEmail:    senders.Email != nil,
		domain.ChannelWhatsApp: senders.WhatsApp != nil,
		domain.ChannelSMS:      senders.SMS != nil,
	}
	for _, channel := range domain.Channels {
		if !configured[channel] {
			logger.WithField("channel", channel).Warn("Notification channel not configured")
		}
	}
	return senders
}
