// Package domain holds the record types shared by the store, scheduler,
// builder and HTTP layers: Verification, Code and Idl, plus the small
// value types (Status, Network, ProjectSelector) that appear on them.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status is a Verification's position in the Pending -> InProgress ->
// {Verified | Failed} state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusVerified   Status = "verified"
	StatusFailed     Status = "failed"
)

// ParseStatus decodes the wire/DB string encoding of Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusVerified, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unrecognized verification status %q", s)
	}
}

// Network identifies which chain a Verification's code_id is checked
// against. The set is extensible: adding a network means adding a constant
// here and an entry in the ChainProbe registry, nothing else.
type Network string

const (
	NetworkMainnet Network = "vara_mainnet"
	NetworkTestnet Network = "vara_testnet"
)

// ErrUnsupportedNetwork is returned by ParseNetwork for a network string
// intake does not recognize at all, distinct from chain.ErrUnsupportedNetwork
// which is raised later when a recognized network has no configured probe.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// ParseNetwork decodes the wire string encoding of Network.
func ParseNetwork(s string) (Network, error) {
	switch Network(s) {
	case NetworkMainnet, NetworkTestnet:
		return Network(s), nil
	default:
		return "", fmt.Errorf("%w: %q, available: %s, %s", ErrUnsupportedNetwork, s, NetworkMainnet, NetworkTestnet)
	}
}

// ProjectKind is the tag of a ProjectSelector.
type ProjectKind int

const (
	ProjectRoot ProjectKind = iota
	ProjectPackage
	ProjectManifestPath
)

// ProjectSelector is the sum type {Root | Package(name) | ManifestPath(path)}
// submitted at intake. Package and ManifestPath are mutually exclusive; Root
// is the zero value.
type ProjectSelector struct {
	Kind         ProjectKind
	PackageName  string
	ManifestPath string
}

// Split maps a ProjectSelector to the two optional persisted fields used
// everywhere else in the system.
func (p ProjectSelector) Split() (projectName, manifestPath *string) {
	switch p.Kind {
	case ProjectPackage:
		return strPtr(p.PackageName), nil
	case ProjectManifestPath:
		return nil, strPtr(p.ManifestPath)
	default:
		return nil, nil
	}
}

func strPtr(s string) *string { return &s }

// Verification is a single reproducible-build job record.
type Verification struct {
	ID            string
	RepoLink      string
	CodeID        string
	ProjectName   *string
	ManifestPath  *string
	BasePath      *string
	BuildIDL      bool
	Version       string
	Network       Network
	Status        Status
	FailedReason  *string
	CreatedAt     time.Time
}

// Code is a successfully verified artifact record.
type Code struct {
	ID       string
	Name     string
	RepoLink string
	IdlHash  *string
}

// Idl is a content-addressed interface-definition blob.
type Idl struct {
	ID      string
	Content string
}
