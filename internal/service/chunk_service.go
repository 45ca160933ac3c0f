// Package service provides the core operations of zstream: storing chunks as
// erasure-coded fragments spread over the server pool, and retrieving them
// with adaptive server selection.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/zstream/internal/domain"
	"github.com/zzenonn/zstream/internal/erasure"
	zerrors "github.com/zzenonn/zstream/internal/errors"
	"github.com/zzenonn/zstream/internal/placement"
	"github.com/zzenonn/zstream/internal/repository/objectstore"
)

// MetadataRepository stores chunk layouts.
type MetadataRepository interface {
	CreateMetadata(ctx context.Context, metadata domain.ChunkMetadata) (domain.ChunkMetadata, error)
	GetMetadata(ctx context.Context, chunkID string) (domain.ChunkMetadata, error)
	ListMetadata(ctx context.Context) ([]domain.ChunkMetadata, error)
	DeleteMetadata(ctx context.Context, chunkID string) error
}

// ChunkService encodes chunks and places their fragments on servers.
type ChunkService struct {
	placer       placement.Placer
	metadataRepo MetadataRepository
}

// NewChunkService creates a new ChunkService instance
func NewChunkService(placer placement.Placer, metadataRepo MetadataRepository) *ChunkService {
	return &ChunkService{
		placer:       placer,
		metadataRepo: metadataRepo,
	}
}

// PutChunk encodes the payload into dataShards+parityShards fragments, uploads
// fragment i to the server chosen by the placer and records the layout. An
// empty chunkID gets a generated one.
func (s *ChunkService) PutChunk(ctx context.Context, chunkID string, r io.Reader, dataShards, parityShards int, quiet bool) (domain.ChunkMetadata, error) {
	if chunkID == "" {
		chunkID = uuid.NewString()
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return domain.ChunkMetadata{}, fmt.Errorf("reading chunk %s: %w", chunkID, err)
	}
	if len(data) == 0 {
		return domain.ChunkMetadata{}, fmt.Errorf("%w: %s", zerrors.ErrEmptyChunk, chunkID)
	}

	fragments, padding, err := erasure.Encode(data, dataShards, parityShards)
	if err != nil {
		return domain.ChunkMetadata{}, err
	}

	meta := domain.ChunkMetadata{
		ChunkID:      chunkID,
		OriginalSize: int64(len(data)),
		PaddingSize:  padding,
		FragmentSize: int64(len(fragments[0])),
		DataShards:   dataShards,
		ParityShards: parityShards,
		Fragments:    make([]domain.FragmentLocation, len(fragments)),
	}

	repos := make([]objectstore.FragmentRepository, len(fragments))
	for i, fragment := range fragments {
		server, repo, err := s.placer.Place(i)
		if err != nil {
			return domain.ChunkMetadata{}, err
		}
		repos[i] = repo
		meta.Fragments[i] = domain.FragmentLocation{
			Index:  i,
			Role:   domain.RoleForIndex(i, dataShards),
			Hash:   erasure.FragmentHash(fragment),
			Server: server,
			Key:    objectstore.FragmentKey(chunkID, i),
		}
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.Default(int64(len(fragments)), "uploading "+chunkID)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, fragment := range fragments {
		fragment := fragment
		loc, repo := meta.Fragments[i], repos[i]
		g.Go(func() error {
			if _, err := repo.Upload(gctx, loc.Key, bytes.NewReader(fragment), true); err != nil {
				return fmt.Errorf("uploading fragment %d to %s: %w", loc.Index, loc.Server, err)
			}
			fragmentsUploadedTotal.WithLabelValues(loc.Server).Inc()
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.removeFragments(context.WithoutCancel(ctx), meta)
		return domain.ChunkMetadata{}, err
	}

	if _, err := s.metadataRepo.CreateMetadata(ctx, meta); err != nil {
		s.removeFragments(context.WithoutCancel(ctx), meta)
		return domain.ChunkMetadata{}, err
	}

	log.WithFields(log.Fields{
		"chunk":         chunkID,
		"size":          meta.OriginalSize,
		"k":             dataShards,
		"m":             parityShards,
		"fragment_size": meta.FragmentSize,
	}).Info("Stored chunk")
	return meta, nil
}

// GetLayout returns the stored layout of a chunk.
func (s *ChunkService) GetLayout(ctx context.Context, chunkID string) (domain.ChunkMetadata, error) {
	return s.metadataRepo.GetMetadata(ctx, chunkID)
}

// ListChunks returns every stored chunk layout.
func (s *ChunkService) ListChunks(ctx context.Context) ([]domain.ChunkMetadata, error) {
	return s.metadataRepo.ListMetadata(ctx)
}

// DeleteChunk removes a chunk's fragments from every server and then its
// metadata. Fragments already gone are ignored.
func (s *ChunkService) DeleteChunk(ctx context.Context, chunkID string) error {
	meta, err := s.metadataRepo.GetMetadata(ctx, chunkID)
	if err != nil {
		return err
	}

	if err := s.deleteFragments(ctx, meta); err != nil {
		return err
	}

	if err := s.metadataRepo.DeleteMetadata(ctx, chunkID); err != nil {
		return err
	}

	log.WithField("chunk", chunkID).Info("Deleted chunk")
	return nil
}

func (s *ChunkService) deleteFragments(ctx context.Context, meta domain.ChunkMetadata) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range meta.Fragments {
		loc := loc
		repo, err := s.placer.GetRepositoryForServer(loc.Server)
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := repo.Delete(gctx, loc.Key)
			if err != nil && !errors.Is(err, zerrors.ErrFragmentNotFound) {
				return fmt.Errorf("deleting fragment %d from %s: %w", loc.Index, loc.Server, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// removeFragments is the best-effort cleanup after a failed put.
func (s *ChunkService) removeFragments(ctx context.Context, meta domain.ChunkMetadata) {
	if err := s.deleteFragments(ctx, meta); err != nil {
		log.WithError(err).WithField("chunk", meta.ChunkID).Warn("Cleanup after failed put left fragments behind")
	}
}
