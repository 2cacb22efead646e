package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"xfercache/internal/domain"
	"xfercache/internal/service"
)

// Consumer принимает результаты внешнего сканера из scanner_output и
// записывает их на аккаунт пользователя. Доставка at-least-once:
// подтверждение уходит только после успешной обработки, поэтому повторная
// доставка безопасна — запись значений идемпотентна.
type Consumer struct {
	users    service.UserCatalog
	volumes  service.VolumeCatalog
	notifier service.Notifier
	logger   zerolog.Logger
	url      string

	now func() time.Time
}

func NewConsumer(users service.UserCatalog, volumes service.VolumeCatalog, notifier service.Notifier, url string, logger zerolog.Logger) *Consumer {
	return &Consumer{
		users:    users,
		volumes:  volumes,
		notifier: notifier,
		logger:   logger.With().Str("component", "consumer").Logger(),
		url:      url,
		now:      time.Now,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(ResultQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, ResultQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", ResultQueue).Msg("waiting for scan results")

	for delivery := range deliveries {
		var result ScanResult
		if err := json.Unmarshal(delivery.Body, &result); err != nil {
			// Непарсимое сообщение не станет лучше от повторной доставки
			c.logger.Error().Err(err).Msg("invalid scan result, dropping")
			delivery.Nack(false, false)
			continue
		}

		if err := c.process(ctx, result); err != nil {
			c.logger.Error().Err(err).Str("user", result.Username).Msg("could not process scan result")
			delivery.Nack(false, true)
			continue
		}

		delivery.Ack(false)
	}

	c.logger.Info().Msg("consumer shutting down")

	return nil
}

func (c *Consumer) process(ctx context.Context, result ScanResult) error {
	if result.Username == "" {
		return fmt.Errorf("scan result without username")
	}

	user, err := c.users.GetByName(ctx, result.Username)
	if err != nil {
		return err
	}

	oldTotal := user.TotalUsed

	if err := c.users.UpdateUsage(ctx, user.ID, result.TemporalQuotaBytes, result.HardQuotaBytes); err != nil {
		return err
	}
	if err := c.users.TouchLastScanned(ctx, user.ID, c.now().UTC()); err != nil {
		return err
	}

	// Агрегат тома ведётся дельтами и здесь тоже
	if delta := result.HardQuotaBytes - oldTotal; delta != 0 {
		if err := c.volumes.ApplyUsedDelta(ctx, user.VolumeID, delta); err != nil {
			return err
		}
	}

	c.logger.Info().
		Str("user", user.Name).
		Int64("total_used", result.HardQuotaBytes).
		Int64("quota_used", result.TemporalQuotaBytes).
		Msg("scan result applied")

	if result.TemporalQuotaBytes > user.QuotaSize {
		c.notifyOverQuota(ctx, user, result)
	}

	return nil
}

func (c *Consumer) notifyOverQuota(ctx context.Context, user *domain.User, result ScanResult) {
	if !user.Notify || user.Email == "" {
		return
	}

	subject := "[XFC] - Notification of quota exceeded"
	body := fmt.Sprintf("You have exceeded your quota of %s. You have used %s, as of %s UTC\n",
		domain.FormatBytes(user.QuotaSize),
		domain.FormatBytes(result.TemporalQuotaBytes),
		c.now().UTC().Format("02 Jan 2006 15:04"))

	if err := c.notifier.Send(ctx, user.Email, subject, body); err != nil {
		c.logger.Error().Err(err).Str("user", user.Name).Msg("could not send notification")
	}
}
