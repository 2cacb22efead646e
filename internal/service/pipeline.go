package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"xfercache/internal/config"
	"xfercache/internal/domain"
)

// StageFunc — одна стадия конвейера для одного пользователя, выполняется под
// блокировкой.
type StageFunc func(ctx context.Context, user *domain.User) error

// Pipeline прогоняет стадию по всем пользователям с дисциплиной per-user
// блокировки: захватить → отработать → снять, снятие гарантировано на всех
// путях выхода. Захват не ждёт: занятый пользователь пропускается до
// следующего прохода, пользователи независимы друг от друга.
type Pipeline struct {
	users  UserCatalog
	locks  *LockManager
	logger zerolog.Logger
}

func NewPipeline(users UserCatalog, locks *LockManager, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		users:  users,
		locks:  locks,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// RunPass выполняет один проход стадии по всем пользователям. Ошибка одного
// пользователя логируется и не прерывает проход по остальным.
func (p *Pipeline) RunPass(ctx context.Context, stage string, fn StageFunc) error {
	users, err := p.users.List(ctx)
	if err != nil {
		return err
	}

	for i := range users {
		if err := ctx.Err(); err != nil {
			return err
		}

		user := &users[i]

		acquired, err := p.locks.TryLock(ctx, user)
		if err != nil {
			p.logger.Error().Err(err).Str("stage", stage).Str("user", user.Name).Msg("lock error")
			continue
		}
		if !acquired {
			// Контеншен — не ошибка: пользователь достанется следующему проходу
			p.logger.Debug().Str("stage", stage).Str("user", user.Name).Msg("user already locked, skipping")
			continue
		}

		stageErr := fn(ctx, user)

		if err := p.locks.Unlock(ctx, user); err != nil {
			p.logger.Error().Err(err).Str("stage", stage).Str("user", user.Name).Msg("unlock error")
		}

		if stageErr != nil {
			p.logger.Error().Err(stageErr).Str("stage", stage).Str("user", user.Name).Msg("stage failed")
		}
	}

	return nil
}

// Run выполняет стадию в режиме one-shot (один проход) или loop (проход каждые
// RunEveryHours). В режиме loop остановка кооперативная: текущая критическая
// секция дорабатывает, новая итерация после отмены не начинается.
func (p *Pipeline) Run(ctx context.Context, stage string, daemon config.DaemonConfig, fn StageFunc) error {
	p.logger.Info().Str("stage", stage).Str("mode", daemon.Mode).Msg("starting pass")

	if err := p.RunPass(ctx, stage, fn); err != nil {
		return err
	}

	if daemon.Mode != config.ModeLoop {
		return nil
	}

	ticker := time.NewTicker(daemon.RunInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Str("stage", stage).Msg("shutting down")
			return nil
		case <-ticker.C:
			if err := p.RunPass(ctx, stage, fn); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error().Err(err).Str("stage", stage).Msg("pass failed")
			}
		}
	}
}
