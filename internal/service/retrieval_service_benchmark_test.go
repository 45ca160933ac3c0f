package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/zzenonn/zstream/internal/estimator"
	"github.com/zzenonn/zstream/internal/placement"
	"github.com/zzenonn/zstream/internal/repository/objectstore"
	"github.com/zzenonn/zstream/internal/selector"
)

func benchmarkSetup(b *testing.B, size int) (*ChunkService, *RetrievalService) {
	b.Helper()
	placer := placement.NewRoundRobinPlacer()
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("s%d", i)
		if err := placer.RegisterServer(name, objectstore.NewMemoryFragmentRepository(name)); err != nil {
			b.Fatal(err)
		}
	}
	metadata := newMemMetadata()
	chunks := NewChunkService(placer, metadata)

	data := make([]byte, size)
	rand.Read(data)
	if _, err := chunks.PutChunk(context.Background(), "bench", bytes.NewReader(data), 4, 2, true); err != nil {
		b.Fatalf("PutChunk failed: %v", err)
	}

	est := estimator.New()
	sel, err := selector.NewDeadlineSelector(placer, est, selector.Params{Fragments: 4, Threshold: 5, Weight: 100})
	if err != nil {
		b.Fatal(err)
	}
	return chunks, NewRetrievalService(metadata, placer, sel, est, time.Second)
}

var benchmarkSizes = []struct {
	name string
	size int
}{
	{"1KB", 1024},
	{"100KB", 100 * 1024},
	{"1MB", 1024 * 1024},
}

func BenchmarkChunkService_PutChunk(b *testing.B) {
	for _, size := range benchmarkSizes {
		b.Run(size.name, func(b *testing.B) {
			chunks, _ := benchmarkSetup(b, 1)
			data := make([]byte, size.size)
			rand.Read(data)

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := chunks.PutChunk(context.Background(), "put", bytes.NewReader(data), 4, 2, true); err != nil {
					b.Fatalf("PutChunk failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkRetrievalService_FetchChunk(b *testing.B) {
	for _, size := range benchmarkSizes {
		b.Run(size.name, func(b *testing.B) {
			_, retrieval := benchmarkSetup(b, size.size)

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := retrieval.FetchChunk(context.Background(), "bench"); err != nil {
					b.Fatalf("FetchChunk failed: %v", err)
				}
			}
		})
	}
}
