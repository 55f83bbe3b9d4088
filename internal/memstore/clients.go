// Package memstore holds in-memory client, user and secured resource
// directories for tests and single-node deployments.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"go.pilab.hu/authcore/domain"
	serrors "go.pilab.hu/authcore/errors"
)

// ClientDirectory is an in-memory domain.ClientDirectory.
type ClientDirectory struct {
	mu      sync.RWMutex
	clients map[string]*domain.Client
}

var _ domain.ClientDirectory = (*ClientDirectory)(nil)

func NewClientDirectory(clients ...*domain.Client) *ClientDirectory {
	d := &ClientDirectory{clients: make(map[string]*domain.Client, len(clients))}
	for _, c := range clients {
		d.PutClient(c)
	}

	return d
}

// PutClient adds or replaces a client.
func (d *ClientDirectory) PutClient(c *domain.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clients[c.ID] = cloneClient(c)
}

func (d *ClientDirectory) FindClient(_ context.Context, clientID string) (*domain.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.clients[clientID]
	if !ok {
		return nil, serrors.ErrNotFound
	}

	return cloneClient(c), nil
}

func cloneClient(c *domain.Client) *domain.Client {
	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	cp.AllowedGrantTypes = slices.Clone(c.AllowedGrantTypes)
	cp.AllowedScopes = slices.Clone(c.AllowedScopes)
	cp.Claims = maps.Clone(c.Claims)

	return &cp
}
