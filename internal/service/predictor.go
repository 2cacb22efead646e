package service

import (
	"context"
	"time"

	"xfercache/internal/domain"
)

// Predictor — чистая read-only проекция следующего удаления. Ничего не
// мутирует и вызывается вне блокировки пользователя, только для отчётности.
type Predictor struct {
	files   FileCatalog
	volumes VolumeCatalog

	gracePeriod time.Duration

	now func() time.Time
}

func NewPredictor(files FileCatalog, volumes VolumeCatalog, gracePeriod time.Duration) *Predictor {
	return &Predictor{
		files:       files,
		volumes:     volumes,
		gracePeriod: gracePeriod,
		now:         time.Now,
	}
}

// Predict прогнозирует момент исчерпания временной квоты и список жертв.
// В отличие от планировщика жадный обход здесь учитывает только временную
// квоту: hard limit и max persistence намеренно не рассматриваются.
// При total_used == 0 возвращается пустая проекция без даты — деление не
// выполняется.
func (p *Predictor) Predict(ctx context.Context, user *domain.User) (*domain.Projection, error) {
	volume, err := p.volumes.GetByID(ctx, user.VolumeID)
	if err != nil {
		return nil, err
	}

	projection := &domain.Projection{
		Name:       user.Name,
		Mountpoint: volume.Mountpoint,
		Files:      []string{},
	}

	if user.TotalUsed == 0 {
		return projection, nil
	}

	now := p.now().UTC()
	daysLeft := floorDiv(user.QuotaSize-user.QuotaUsed, user.TotalUsed) + 1
	timePredict := now.Add(time.Duration(daysLeft) * p.gracePeriod)
	overQuota := daysLeft*user.TotalUsed + user.QuotaUsed - user.QuotaSize

	projection.TimePredict = &timePredict
	projection.OverQuota = overQuota

	files, err := p.files.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var quotaDelete int64
	for i := range files {
		if quotaDelete > overQuota {
			break
		}
		quotaDelete += files[i].TemporalWeight(now)
		projection.Files = append(projection.Files, files[i].Path)
	}

	return projection, nil
}

// floorDiv — целочисленное деление с округлением вниз (а не к нулю).
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
