// Package chain answers one question per network: does a given code id
// exist on-chain. It never treats "no" as an error — a storage miss, a
// malformed id or a JSON-RPC error from the node all just mean false.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/sails-verify/program-verifier/internal/domain"
)

// ErrUnsupportedNetwork is returned by a Registry when asked for a
// network it was not configured with.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// Probe answers whether codeIDHex (normalized, lower-hex, no "0x") is a
// known code id on one network.
type Probe interface {
	Exists(ctx context.Context, codeIDHex string) (bool, error)
}

// Registry holds one Probe per network the service is configured to
// check against.
type Registry struct {
	probes map[domain.Network]Probe
}

// NewRegistry builds a Registry from the given network->Probe map.
func NewRegistry(probes map[domain.Network]Probe) *Registry {
	r := &Registry{probes: make(map[domain.Network]Probe, len(probes))}
	for n, p := range probes {
		r.probes[n] = p
	}
	return r
}

// Get returns the Probe configured for network, or ErrUnsupportedNetwork.
func (r *Registry) Get(network domain.Network) (Probe, error) {
	p, ok := r.probes[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return p, nil
}

// IsEmpty reports whether no network was configured, which Bootstrap
// treats as a fatal misconfiguration.
func (r *Registry) IsEmpty() bool {
	return len(r.probes) == 0
}

// Networks returns the set of configured networks.
func (r *Registry) Networks() []domain.Network {
	out := make([]domain.Network, 0, len(r.probes))
	for n := range r.probes {
		out = append(out, n)
	}
	return out
}
