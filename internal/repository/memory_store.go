package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"rps_wager/internal/domain"
)

type versioned[T any] struct {
	val T
	ver uint64
}

// MemoryStore keeps everything in process. Units of work are optimistic:
// reads record the version they saw and commit fails with ErrConflict if any
// of them moved in the meantime.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     uint64
	matches map[string]versioned[*domain.Match]
	players map[string]versioned[*domain.Player]
	ledger  []*domain.LedgerEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]versioned[*domain.Match]),
		players: make(map[string]versioned[*domain.Player]),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		s:       s,
		reads:   make(map[string]uint64),
		matches: make(map[string]*domain.Match),
		players: make(map[string]*domain.Player),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ver := range tx.reads {
		if s.versionLocked(key) != ver {
			return ErrConflict
		}
	}

	for id, m := range tx.matches {
		if m == nil {
			delete(s.matches, id)
			continue
		}
		s.seq++
		s.matches[id] = versioned[*domain.Match]{val: m, ver: s.seq}
	}
	for id, p := range tx.players {
		s.seq++
		s.players[id] = versioned[*domain.Player]{val: p, ver: s.seq}
	}
	now := time.Now()
	for _, e := range tx.ledger {
		e.ID = int64(len(s.ledger) + 1)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		s.ledger = append(s.ledger, e)
	}
	return nil
}

func (s *MemoryStore) versionLocked(key string) uint64 {
	kind, id := key[:1], key[2:]
	if kind == "m" {
		return s.matches[id].ver
	}
	return s.players[id].ver
}

func (s *MemoryStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return v.val.Clone(), nil
}

func (s *MemoryStore) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return v.val.Clone(), nil
}

func (s *MemoryStore) ListMatches(ctx context.Context, status domain.Status) ([]*domain.Match, error) {
	s.mu.RLock()
	var res []*domain.Match
	for _, v := range s.matches {
		if v.val.Status == status {
			res = append(res, v.val.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *MemoryStore) LedgerEntries(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*domain.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0 && len(res) < limit; i-- {
		if e := s.ledger[i]; e.PlayerID == playerID {
			cp := *e
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

type memTx struct {
	s       *MemoryStore
	reads   map[string]uint64
	matches map[string]*domain.Match // nil marks a delete
	players map[string]*domain.Player
	ledger  []*domain.LedgerEntry
}

func (tx *memTx) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	if m, ok := tx.matches[id]; ok {
		if m == nil {
			return nil, domain.ErrMatchNotFound
		}
		return m.Clone(), nil
	}

	tx.s.mu.RLock()
	v, ok := tx.s.matches[id]
	tx.s.mu.RUnlock()

	key := "m:" + id
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = v.ver
	}
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return v.val.Clone(), nil
}

func (tx *memTx) PutMatch(ctx context.Context, m *domain.Match) error {
	tx.matches[m.ID] = m.Clone()
	return nil
}

func (tx *memTx) DeleteMatch(ctx context.Context, id string) error {
	tx.matches[id] = nil
	return nil
}

func (tx *memTx) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	m, err := tx.GetMatch(ctx, id)
	if err != nil {
		return false, err
	}
	if m.Status != from {
		return false, nil
	}
	m.Status = to
	tx.matches[id] = m
	return true, nil
}

func (tx *memTx) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	if p, ok := tx.players[id]; ok {
		return p.Clone(), nil
	}

	tx.s.mu.RLock()
	v, ok := tx.s.players[id]
	tx.s.mu.RUnlock()

	key := "p:" + id
	if _, seen := tx.reads[key]; !seen {
		tx.reads[key] = v.ver
	}
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return v.val.Clone(), nil
}

func (tx *memTx) PutPlayer(ctx context.Context, p *domain.Player) error {
	tx.players[p.ID] = p.Clone()
	return nil
}

// CreatePlayer depends on GetPlayer recording the missing key, so a
// concurrent creator fails commit with ErrConflict.
func (tx *memTx) CreatePlayer(ctx context.Context, p *domain.Player) (*domain.Player, error) {
	cur, err := tx.GetPlayer(ctx, p.ID)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return nil, err
	}
	tx.players[p.ID] = p.Clone()
	return p.Clone(), nil
}

func (tx *memTx) AppendLedger(ctx context.Context, e *domain.LedgerEntry) error {
	cp := *e
	tx.ledger = append(tx.ledger, &cp)
	return nil
}
