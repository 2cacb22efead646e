package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"xfercache/internal/domain"
)

// Scanner сверяет записи каталога с реальной файловой системой пользователя.
// Сверка идемпотентна: повторный запуск без изменений на диске не порождает
// мутаций каталога, поэтому redelivery при at-least-once доставке безопасен.
type Scanner struct {
	files   FileCatalog
	volumes VolumeCatalog
	logger  zerolog.Logger

	now func() time.Time
}

func NewScanner(files FileCatalog, volumes VolumeCatalog, logger zerolog.Logger) *Scanner {
	return &Scanner{
		files:   files,
		volumes: volumes,
		logger:  logger.With().Str("component", "scanner").Logger(),
		now:     time.Now,
	}
}

// Scan рекурсивно обходит поддерево пользователя (симлинки раскрываются),
// создаёт записи для новых файлов, обновляет размер изменившихся и удаляет
// записи исчезнувших. Ошибки stat по отдельным файлам логируются и
// пропускаются — обход они не прерывают. Агрегаты здесь не считаются.
func (s *Scanner) Scan(ctx context.Context, user *domain.User) error {
	volume, err := s.volumes.GetByID(ctx, user.VolumeID)
	if err != nil {
		return err
	}

	existing, err := s.files.ListByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	byPath := make(map[string]*domain.CachedFile, len(existing))
	for i := range existing {
		byPath[existing[i].Path] = &existing[i]
	}

	root := user.CacheDir(volume)
	visited := make(map[string]struct{})

	s.walk(ctx, root, visited, func(fullPath string, info fs.FileInfo) {
		rel, err := filepath.Rel(volume.Mountpoint, fullPath)
		if err != nil {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("could not build relative path")
			return
		}

		record, ok := byPath[rel]
		if !ok {
			// Новый файл: first_seen выставляется один раз, сейчас
			file := &domain.CachedFile{
				UserID:    user.ID,
				Path:      rel,
				Size:      info.Size(),
				FirstSeen: s.now().UTC(),
			}
			if err := s.files.Create(ctx, file); err != nil {
				s.logger.Error().Err(err).Str("path", fullPath).Msg("could not create cached file record")
				return
			}
			s.logger.Info().Str("path", fullPath).Int64("size", info.Size()).Msg("added file")
			return
		}

		if record.Size != info.Size() {
			if err := s.files.UpdateSize(ctx, record.ID, info.Size()); err != nil {
				s.logger.Error().Err(err).Str("path", fullPath).Msg("could not update cached file size")
				return
			}
			s.logger.Info().Str("path", fullPath).Int64("size", info.Size()).Msg("file size changed")
		}
	})

	// Записи без файла на диске — рассинхрон каталога, чинится удалением записи
	for i := range existing {
		fullPath := existing[i].FullPath(volume)
		_, err := os.Stat(fullPath)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("could not stat file")
			continue
		}
		if err := s.files.Delete(ctx, existing[i].ID); err != nil {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("could not delete stale record")
			continue
		}
		s.logger.Info().Str("path", fullPath).Msg("removed stale record")
	}

	return nil
}

// walk обходит dir, раскрывая симлинки как os.walk(followlinks=True).
// visited хранит уже пройденные реальные пути — защита от циклов симлинков.
func (s *Scanner) walk(ctx context.Context, dir string, visited map[string]struct{}, fn func(path string, info fs.FileInfo)) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", dir).Msg("could not resolve directory")
		return
	}
	if _, ok := visited[real]; ok {
		return
	}
	visited[real] = struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", dir).Msg("could not read directory")
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		p := filepath.Join(dir, entry.Name())
		info, err := os.Stat(p)
		if err != nil {
			s.logger.Error().Err(err).Str("path", p).Msg("could not stat file")
			continue
		}

		switch {
		case info.IsDir():
			s.walk(ctx, p, visited, fn)
		case info.Mode().IsRegular():
			fn(p, info)
		}
	}
}
