package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"xfercache/internal/domain"
	"xfercache/internal/service"
)

// Sweeper периодически выбирает пользователя, которого дольше всего не
// сканировали, и публикует задание на сканирование в scanner_request.
type Sweeper struct {
	users    service.UserCatalog
	volumes  service.VolumeCatalog
	url      string
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(users service.UserCatalog, volumes service.VolumeCatalog, url string, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		users:    users,
		volumes:  volumes,
		url:      url,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(RequestQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Str("queue", RequestQueue).Msg("sweeper started")

	for {
		if err := s.enqueueNextUser(ctx, ch); err != nil {
			s.logger.Error().Err(err).Msg("could not enqueue scan request")
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) enqueueNextUser(ctx context.Context, ch *amqp.Channel) error {
	user, err := s.users.GetOldestScanned(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Debug().Msg("no user selected for scan")
			return nil
		}
		return err
	}

	volume, err := s.volumes.GetByID(ctx, user.VolumeID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ScanRequest{
		Username: user.Name,
		WorkDir:  user.CacheDir(volume),
	})
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", RequestQueue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: uuid.NewString(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish scan request: %w", err)
	}

	s.logger.Info().Str("user", user.Name).Msg("scan request published")

	return nil
}
