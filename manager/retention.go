package manager

import (
	"context"

	"github.com/barmanhq/barman/catalog"
	"github.com/barmanhq/barman/internal/logger"
	"github.com/barmanhq/barman/retention"
)

// CronRetention evaluates the retention policy and deletes every backup it
// classifies OBSOLETE. It is a no-op unless RetentionAuto is set — manual
// policies only ever report classification, they never delete on their
// own.
func (m *Manager) CronRetention(ctx context.Context) error {
	if !m.RetentionAuto || m.Policy == nil {
		return nil
	}

	backups := m.Catalog.Available(catalog.AnyStatus())
	result := m.Policy.Evaluate(backups, m.now())

	for _, b := range backups {
		if result.Classification[b.ID] != retention.Obsolete {
			continue
		}
		logger.Log.Info("manager: retention sweep deleting obsolete backup {id}", b.ID)
		if err := m.Delete(ctx, b.ID); err != nil {
			logger.Log.Warn("manager: retention sweep could not delete {id}: {error}", b.ID, err)
		}
	}
	return nil
}
