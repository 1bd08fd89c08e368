package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sails-verify/program-verifier/internal/domain"
)

// MemStore is an in-memory Store, used by scheduler, intake and HTTP
// unit tests. Data does not survive process restart.
type MemStore struct {
	mu            sync.RWMutex
	verifications map[string]domain.Verification
	codes         map[string]domain.Code
	idls          map[string]domain.Idl
	order         []string // verification ids, insertion order
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		verifications: make(map[string]domain.Verification),
		codes:         make(map[string]domain.Code),
		idls:          make(map[string]domain.Idl),
	}
}

func (m *MemStore) InsertVerification(_ context.Context, v domain.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[v.ID] = v
	m.order = append(m.order, v.ID)
	return nil
}

func (m *MemStore) GetVerification(_ context.Context, id string) (domain.Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.verifications[id]
	if !ok {
		return domain.Verification{}, ErrNotFound
	}
	return v, nil
}

func (m *MemStore) UpdateStatus(_ context.Context, id string, status domain.Status, failedReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[id]
	if !ok {
		return ErrNotFound
	}
	v.Status = status
	if status == domain.StatusFailed {
		v.FailedReason = failedReason
	} else {
		v.FailedReason = nil
	}
	m.verifications[id] = v
	return nil
}

func (m *MemStore) ResetInProgress(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, v := range m.verifications {
		if v.Status == domain.StatusInProgress {
			v.Status = domain.StatusPending
			m.verifications[id] = v
			n++
		}
	}
	return n, nil
}

func (m *MemStore) AnyInProgressForCode(_ context.Context, codeID, exceptID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.verifications {
		if v.ID == exceptID {
			continue
		}
		if v.CodeID == codeID && v.Status == domain.StatusInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) ListPending(_ context.Context, limit int) ([]domain.Verification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Verification, 0, limit)
	for _, id := range m.order {
		if len(out) >= limit {
			break
		}
		v := m.verifications[id]
		if v.Status == domain.StatusPending {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *MemStore) InsertCode(_ context.Context, c domain.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.ID] = c
	return nil
}

func (m *MemStore) GetCode(_ context.Context, id string) (domain.Code, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.codes[id]
	if !ok {
		return domain.Code{}, ErrNotFound
	}
	return c, nil
}

func (m *MemStore) GetCodes(_ context.Context, limit, offset int) ([]domain.Code, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.codes))
	for id := range m.codes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]domain.Code, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, m.codes[id])
	}
	return out, nil
}

func (m *MemStore) InsertIdl(_ context.Context, i domain.Idl) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idls[i.ID] = i
	return nil
}

func (m *MemStore) GetIdl(_ context.Context, id string) (domain.Idl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.idls[id]
	if !ok {
		return domain.Idl{}, ErrNotFound
	}
	return i, nil
}

func (m *MemStore) Close() error { return nil }
