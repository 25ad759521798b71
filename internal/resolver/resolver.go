// Package resolver is the hostname-resolution collaborator spec.md
// treats as external: turning a peer's configured hostname into
// candidate IP addresses, re-resolved on liveness failure.
package resolver

import (
	"context"
	"net"
)

// Resolver resolves a hostname to its candidate addresses, in the
// order the underlying stack returns them.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) ([]net.IP, error)
}

// Default wraps net.Resolver, the stdlib DNS client the teacher itself
// never needed (vkvm's peers are always literal addresses) but that
// is the natural implementation for spec.md's hostname-based peer
// entries.
type Default struct {
	r *net.Resolver
}

// NewDefault creates a Resolver backed by the system resolver.
func NewDefault() *Default {
	return &Default{r: net.DefaultResolver}
}

func (d *Default) Resolve(ctx context.Context, hostname string) ([]net.IP, error) {
	addrs, err := d.r.LookupIP(ctx, "ip", hostname)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}
