package solana

import (
	"sync"

	"github.com/NikhilRaikwar/Nexis/internal/chain"
)

// Dialer hands out one client per chain descriptor, mirroring the EVM side.
type Dialer struct {
	mu      sync.Mutex
	factory func(desc chain.Descriptor) (*Client, error)
	clients map[string]*Client
}

// NewDialer creates a dialer backed by live RPC clients.
func NewDialer() *Dialer {
	return &Dialer{factory: NewClient, clients: make(map[string]*Client)}
}

// NewDialerWithFactory creates a dialer with a custom client factory.
func NewDialerWithFactory(factory func(desc chain.Descriptor) (*Client, error)) *Dialer {
	return &Dialer{factory: factory, clients: make(map[string]*Client)}
}

// Client returns a (cached) client for the descriptor.
func (d *Dialer) Client(desc chain.Descriptor) (*Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[desc.Key]; ok {
		return client, nil
	}
	client, err := d.factory(desc)
	if err != nil {
		return nil, err
	}
	d.clients[desc.Key] = client
	return client, nil
}
