// Package placement keeps the registry of fragment servers and decides which
// server holds each erasure-coded fragment of a chunk.
//
// The registry is the server universe the selectors draw from: every server a
// chunk's metadata refers to must be registered here before it can be fetched.
// Fragments are spread round-robin at encode time, so fragment i of a chunk
// lands on server i mod N. A server may therefore hold several fragments of a
// chunk when N < n.
//
// Example:
//
//	placer := NewRoundRobinPlacer()
//	placer.RegisterServer("edge-a", s3Repo)
//	placer.RegisterServer("edge-b", httpRepo)
//
//	// Encode: ChunkService calls Place(fragmentIndex)
//	server, repo, _ := placer.Place(0) // edge-a
//	server, repo, _ = placer.Place(1)  // edge-b
//
//	// Retrieval: RetrievalService resolves servers named in metadata
//	repo, _ = placer.GetRepositoryForServer("edge-a")
package placement

import (
	"github.com/zzenonn/zstream/internal/repository/objectstore"
)

// Placer manages fragment placement across the registered servers.
//
// Implementations must be safe for concurrent use and deterministic for a
// fixed registration order.
type Placer interface {
	// GetRepositoryForServer returns the repository behind a server id.
	// Used during retrieval when the server is known from metadata.
	GetRepositoryForServer(server string) (objectstore.FragmentRepository, error)

	// Place selects the server for a fragment index.
	Place(fragmentIndex int) (string, objectstore.FragmentRepository, error)

	// RegisterServer adds a server to the universe.
	RegisterServer(server string, repo objectstore.FragmentRepository) error

	// ListServers returns all registered server ids in registration order.
	ListServers() []string
}
