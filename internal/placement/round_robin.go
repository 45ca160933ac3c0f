package placement

import (
	"fmt"
	"sync"

	zerrors "github.com/zzenonn/zstream/internal/errors"
	"github.com/zzenonn/zstream/internal/repository/objectstore"
)

// RoundRobinPlacer implements round-robin fragment placement
type RoundRobinPlacer struct {
	mu           sync.RWMutex
	repositories map[string]objectstore.FragmentRepository
	servers      []string
}

// NewRoundRobinPlacer creates a new round-robin placer
func NewRoundRobinPlacer() *RoundRobinPlacer {
	return &RoundRobinPlacer{
		repositories: make(map[string]objectstore.FragmentRepository),
		servers:      make([]string, 0),
	}
}

// RegisterServer adds a server and its repository
func (p *RoundRobinPlacer) RegisterServer(server string, repo objectstore.FragmentRepository) error {
	if server == "" {
		return fmt.Errorf("%w: empty server id", zerrors.ErrInvalidParameters)
	}
	if repo == nil {
		return fmt.Errorf("%w: nil repository for server %s", zerrors.ErrInvalidParameters, server)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.repositories[server]; exists {
		return fmt.Errorf("server %s already registered", server)
	}

	p.repositories[server] = repo
	p.servers = append(p.servers, server)
	return nil
}

// GetRepositoryForServer returns the repository for a specific server
func (p *RoundRobinPlacer) GetRepositoryForServer(server string) (objectstore.FragmentRepository, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	repo, exists := p.repositories[server]
	if !exists {
		return nil, fmt.Errorf("%w: %s", zerrors.ErrUnknownServer, server)
	}
	return repo, nil
}

// Place selects a server using round-robin strategy
func (p *RoundRobinPlacer) Place(fragmentIndex int) (string, objectstore.FragmentRepository, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.servers) == 0 {
		return "", nil, fmt.Errorf("%w: no servers registered", zerrors.ErrInsufficientServers)
	}
	if fragmentIndex < 0 {
		return "", nil, fmt.Errorf("%w: negative fragment index %d", zerrors.ErrInvalidParameters, fragmentIndex)
	}

	server := p.servers[fragmentIndex%len(p.servers)]
	return server, p.repositories[server], nil
}

// ListServers returns all registered server ids
func (p *RoundRobinPlacer) ListServers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	servers := make([]string, len(p.servers))
	copy(servers, p.servers)
	return servers
}
