package service

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zstream/internal/domain"
	"github.com/zzenonn/zstream/internal/selector"
)

// QualityRepository persists estimator snapshots per area.
type QualityRepository interface {
	SaveSnapshot(ctx context.Context, snapshot domain.QualitySnapshot) error
	LoadSnapshot(ctx context.Context, area string) (domain.QualitySnapshot, bool, error)
}

// Snapshot captures the learned state of the retrieval path.
func (s *RetrievalService) Snapshot(area string) domain.QualitySnapshot {
	snapshot := domain.QualitySnapshot{
		Area:    area,
		Policy:  string(s.selector.Policy()),
		Round:   s.round.Load(),
		Servers: s.estimator.Snapshot(),
	}
	if holder, ok := s.selector.(selector.BacklogHolder); ok {
		snapshot.Backlog = holder.Backlog()
	}
	return snapshot
}

// Restore seeds the estimator, round counter and backlog from a snapshot.
// Snapshots taken under another policy are ignored because the two policies
// learn different quantities. It reports whether the snapshot was applied.
func (s *RetrievalService) Restore(snapshot domain.QualitySnapshot) bool {
	policy := string(s.selector.Policy())
	if snapshot.Policy != policy {
		log.WithFields(log.Fields{
			"area":     snapshot.Area,
			"stored":   snapshot.Policy,
			"selected": policy,
		}).Warn("Ignoring quality snapshot taken under a different policy")
		return false
	}

	for _, st := range snapshot.Servers {
		s.estimator.Seed(st.Server, st.Quality, st.Selections)
	}
	s.round.Store(snapshot.Round)
	if holder, ok := s.selector.(selector.BacklogHolder); ok {
		holder.SetBacklog(snapshot.Backlog)
	}

	log.WithFields(log.Fields{
		"area":    snapshot.Area,
		"round":   snapshot.Round,
		"servers": len(snapshot.Servers),
	}).Info("Restored server quality")
	return true
}

// LoadQuality restores the area's snapshot from repo, if one exists.
func (s *RetrievalService) LoadQuality(ctx context.Context, repo QualityRepository, area string) error {
	snapshot, found, err := repo.LoadSnapshot(ctx, area)
	if err != nil {
		return err
	}
	if found {
		s.Restore(snapshot)
	}
	return nil
}

// SaveQuality stores the current learned state under area.
func (s *RetrievalService) SaveQuality(ctx context.Context, repo QualityRepository, area string) error {
	return repo.SaveSnapshot(ctx, s.Snapshot(area))
}
