// Package scheduler polls the store for pending verification jobs,
// bounds how many build concurrently, and drives each one through the
// claim -> on-chain check -> build -> decide pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sails-verify/program-verifier/internal/builder"
	"github.com/sails-verify/program-verifier/internal/chain"
	"github.com/sails-verify/program-verifier/internal/domain"
	"github.com/sails-verify/program-verifier/internal/events"
	"github.com/sails-verify/program-verifier/internal/hashutil"
	"github.com/sails-verify/program-verifier/internal/store"
)

const (
	reasonUnsupportedNetwork = "Unsupported network"
	reasonOnChainMissing     = "Code doesn't exist on chain"
	reasonCodeIDMismatch     = "Code ID mismatch"
	buildFailurePrefix       = "Failed to build project. "
)

// Scheduler owns the poll loop. Zero value is not usable; construct with
// New.
type Scheduler struct {
	store   store.Store
	builder *builder.Builder
	probes  *chain.Registry
	cfg     config
	metrics *Metrics

	inProgress atomic.Int64

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// New wires a Scheduler from its collaborators, applying opts over the
// package defaults (MaxInProgress=4, CheckInterval=5s).
func New(st store.Store, b *builder.Builder, probes *chain.Registry, opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("scheduler option: %w", err)
		}
	}

	return &Scheduler{
		store:   st,
		builder: b,
		probes:  probes,
		cfg:     cfg,
		metrics: NewMetrics(cfg.registry),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start runs the poll loop until ctx is cancelled or Stop is called. It
// blocks until every in-flight worker has returned.
//
// A ticker fires every CheckInterval; Go's time.Ticker already coalesces
// missed ticks (a burst of delay produces one catch-up tick, not a queue of
// them), which is exactly the "bursts cannot create a thundering herd"
// behavior the poll loop needs.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-s.stopCh:
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop signals Start to return after draining in-flight workers.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) tick(ctx context.Context) {
	n := int(s.inProgress.Load())
	if n >= s.cfg.maxInProgress {
		return
	}

	batch := s.cfg.maxInProgress - n
	pending, err := s.store.ListPending(ctx, batch)
	if err != nil {
		log.Printf("scheduler: list_pending: %v", err)
		return
	}

	for _, v := range pending {
		s.inProgress.Add(1)
		s.metrics.SetInFlight(int(s.inProgress.Load()))
		s.wg.Add(1)
		go func(v domain.Verification) {
			defer s.wg.Done()
			defer func() {
				s.inProgress.Add(-1)
				s.metrics.SetInFlight(int(s.inProgress.Load()))
			}()
			s.runPipeline(ctx, v)
		}(v)
	}
}

// runPipeline drives one job through Stage A-D, recording each terminal
// outcome to the store before returning. It never panics or propagates an error: a
// job-level failure is terminal state, not a scheduler crash. A store
// error during the claim is only logged, leaving the row as the failed
// write left it.
func (s *Scheduler) runPipeline(ctx context.Context, v domain.Verification) {
	claimed, err := s.claim(ctx, v)
	if err != nil {
		log.Printf("scheduler: claim %s: %v", v.ID, err)
		return
	}
	if !claimed {
		return
	}

	probe, err := s.probes.Get(v.Network)
	if err != nil {
		s.fail(ctx, v.ID, reasonUnsupportedNetwork)
		s.emit(v.ID, "failed", "unsupported network", map[string]any{"network": string(v.Network)})
		s.metrics.IncOutcome("failed")
		return
	}

	exists, err := probe.Exists(ctx, v.CodeID)
	if err != nil {
		log.Printf("scheduler: chain probe %s: %v", v.ID, err)
		exists = false
	}
	if !exists {
		s.fail(ctx, v.ID, reasonOnChainMissing)
		s.emit(v.ID, "failed", reasonOnChainMissing, nil)
		s.metrics.IncOutcome("failed")
		return
	}
	s.emit(v.ID, "on_chain_checked", "code id present on chain", nil)

	s.build(ctx, v)
}

// claim runs Stage A. The InProgress write and the duplicate check must
// run back to back with no suspension between them to keep the race
// window for "two jobs see themselves first" narrow; a late-detected
// conflict is handled by the demotion path, not by a transaction.
func (s *Scheduler) claim(ctx context.Context, v domain.Verification) (bool, error) {
	if err := s.store.UpdateStatus(ctx, v.ID, domain.StatusInProgress, nil); err != nil {
		return false, fmt.Errorf("mark in progress: %w", err)
	}

	if _, err := s.store.GetCode(ctx, v.CodeID); err == nil {
		if err := s.store.UpdateStatus(ctx, v.ID, domain.StatusVerified, nil); err != nil {
			return false, fmt.Errorf("short-circuit verified: %w", err)
		}
		s.emit(v.ID, "verified", "already verified", map[string]any{"code_id": v.CodeID})
		s.metrics.IncOutcome("verified")
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("check existing code: %w", err)
	}

	dup, err := s.store.AnyInProgressForCode(ctx, v.CodeID, v.ID)
	if err != nil {
		return false, fmt.Errorf("check duplicate in flight: %w", err)
	}
	if dup {
		if err := s.store.UpdateStatus(ctx, v.ID, domain.StatusPending, nil); err != nil {
			return false, fmt.Errorf("demote duplicate: %w", err)
		}
		s.emit(v.ID, "demoted", "duplicate in flight", map[string]any{"code_id": v.CodeID})
		s.metrics.IncOutcome("demoted")
		return false, nil
	}

	s.emit(v.ID, "claimed", "claimed for build", nil)
	return true, nil
}

// build runs Stage C and D. Cleanup always runs, on every exit path.
func (s *Scheduler) build(ctx context.Context, v domain.Verification) {
	started := time.Now()
	artifacts, buildErr := s.builder.Build(ctx, v)
	s.metrics.ObserveBuildDuration(time.Since(started))
	defer func() {
		if err := s.builder.Cleanup(ctx, v.ID, artifacts.ContainerID); err != nil {
			log.Printf("scheduler: cleanup %s: %v", v.ID, err)
		}
	}()

	if buildErr != nil {
		reason := buildFailurePrefix + buildErr.Error()
		s.fail(ctx, v.ID, reason)
		s.emit(v.ID, "failed", reason, map[string]any{"error": buildErr.Error()})
		s.metrics.IncOutcome("failed")
		return
	}
	s.emit(v.ID, "built", "artifacts collected", map[string]any{"name": artifacts.Name})

	if artifacts.CodeID != v.CodeID {
		s.fail(ctx, v.ID, reasonCodeIDMismatch)
		s.emit(v.ID, "failed", reasonCodeIDMismatch, map[string]any{
			"expected": v.CodeID, "actual": artifacts.CodeID,
		})
		s.metrics.IncOutcome("failed")
		return
	}

	var idlHash *string
	if artifacts.Idl != nil {
		h := hashutil.HashText(*artifacts.Idl)
		if err := s.store.InsertIdl(ctx, domain.Idl{ID: h, Content: *artifacts.Idl}); err != nil {
			log.Printf("scheduler: insert idl %s: %v", v.ID, err)
		} else {
			idlHash = &h
		}
	}

	code := domain.Code{ID: v.CodeID, Name: artifacts.Name, RepoLink: v.RepoLink, IdlHash: idlHash}
	if err := s.store.InsertCode(ctx, code); err != nil {
		s.fail(ctx, v.ID, buildFailurePrefix+err.Error())
		s.emit(v.ID, "failed", "insert code failed", map[string]any{"error": err.Error()})
		s.metrics.IncOutcome("failed")
		return
	}
	if err := s.store.UpdateStatus(ctx, v.ID, domain.StatusVerified, nil); err != nil {
		log.Printf("scheduler: mark verified %s: %v", v.ID, err)
		return
	}

	s.emit(v.ID, "verified", "code id matched", map[string]any{"code_id": v.CodeID})
	s.metrics.IncOutcome("verified")
}

func (s *Scheduler) fail(ctx context.Context, id, reason string) {
	if err := s.store.UpdateStatus(ctx, id, domain.StatusFailed, &reason); err != nil {
		log.Printf("scheduler: mark failed %s: %v", id, err)
	}
}

func (s *Scheduler) emit(verificationID, stage, msg string, meta map[string]any) {
	s.cfg.emitter.Emit(events.Event{VerificationID: verificationID, Stage: stage, Msg: msg, Meta: meta})
}
