package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"rps_wager/internal/domain"
)

// RedisConfig holds connection and key layout settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// LedgerLimit caps the per-player journal list.
	LedgerLimit int64
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Prefix:      "rps",
		LedgerLimit: 1000,
	}
}

// RedisStore keeps records as JSON values. Units of work use WATCH/MULTI:
// every key read is watched and all writes go out in one EXEC.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisStore connects and verifies the server is reachable.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "rps"
	}
	if cfg.LedgerLimit <= 0 {
		cfg.LedgerLimit = 1000
	}
	return &RedisStore{client: client, cfg: cfg}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) matchKey(id string) string { return s.cfg.Prefix + ":match:" + id }
func (s *RedisStore) playerKey(id string) string { return s.cfg.Prefix + ":player:" + id }
func (s *RedisStore) ledgerKey(id string) string { return s.cfg.Prefix + ":ledger:" + id }
func (s *RedisStore) ledgerSeqKey() string { return s.cfg.Prefix + ":ledger:seq" }
func (s *RedisStore) statusKey(st domain.Status) string {
	return s.cfg.Prefix + ":matches:" + string(st)
}

var allStatuses = []domain.Status{domain.StatusWaiting, domain.StatusPlaying, domain.StatusFinished}

func (s *RedisStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{
			s:       s,
			rtx:     rtx,
			matches: make(map[string]*domain.Match),
			players: make(map[string]*domain.Player),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if tx.empty() {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return tx.flush(ctx, pipe)
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (s *RedisStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	return getJSON[domain.Match](ctx, s.client, s.matchKey(id), domain.ErrMatchNotFound)
}

func (s *RedisStore) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	return getJSON[domain.Player](ctx, s.client, s.playerKey(id), domain.ErrPlayerNotFound)
}

func (s *RedisStore) ListMatches(ctx context.Context, status domain.Status) ([]*domain.Match, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.matchKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var res []*domain.Match
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var m domain.Match
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		// index entries can lag behind a concurrent write
		if m.Status == status {
			res = append(res, &m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *RedisStore) LedgerEntries(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.client.LRange(ctx, s.ledgerKey(playerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	res := make([]*domain.LedgerEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.LedgerEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		res = append(res, &e)
	}
	return res, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c getter, key string, notFound error) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type redisTx struct {
	s       *RedisStore
	rtx     *redis.Tx
	matches map[string]*domain.Match // nil marks a delete
	players map[string]*domain.Player
	ledger  []*domain.LedgerEntry
}

func (tx *redisTx) empty() bool {
	return len(tx.matches) == 0 && len(tx.players) == 0 && len(tx.ledger) == 0
}

func (tx *redisTx) watchGet(ctx context.Context, key string) error {
	return tx.rtx.Watch(ctx, key).Err()
}

func (tx *redisTx) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	if m, ok := tx.matches[id]; ok {
		if m == nil {
			return nil, domain.ErrMatchNotFound
		}
		return m.Clone(), nil
	}
	key := tx.s.matchKey(id)
	if err := tx.watchGet(ctx, key); err != nil {
		return nil, err
	}
	return getJSON[domain.Match](ctx, tx.rtx, key, domain.ErrMatchNotFound)
}

func (tx *redisTx) PutMatch(ctx context.Context, m *domain.Match) error {
	tx.matches[m.ID] = m.Clone()
	return nil
}

func (tx *redisTx) DeleteMatch(ctx context.Context, id string) error {
	tx.matches[id] = nil
	return nil
}

func (tx *redisTx) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
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

func (tx *redisTx) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	if p, ok := tx.players[id]; ok {
		return p.Clone(), nil
	}
	key := tx.s.playerKey(id)
	if err := tx.watchGet(ctx, key); err != nil {
		return nil, err
	}
	return getJSON[domain.Player](ctx, tx.rtx, key, domain.ErrPlayerNotFound)
}

func (tx *redisTx) PutPlayer(ctx context.Context, p *domain.Player) error {
	tx.players[p.ID] = p.Clone()
	return nil
}

// CreatePlayer watches the missing key, so a concurrent creator aborts EXEC.
func (tx *redisTx) CreatePlayer(ctx context.Context, p *domain.Player) (*domain.Player, error) {
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

func (tx *redisTx) AppendLedger(ctx context.Context, e *domain.LedgerEntry) error {
	// ids come from a counter outside MULTI; gaps after an aborted EXEC are fine
	id, err := tx.rtx.Incr(ctx, tx.s.ledgerSeqKey()).Result()
	if err != nil {
		return err
	}
	cp := *e
	cp.ID = id
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	tx.ledger = append(tx.ledger, &cp)
	return nil
}

func (tx *redisTx) flush(ctx context.Context, pipe redis.Pipeliner) error {
	for id, m := range tx.matches {
		for _, st := range allStatuses {
			if m == nil || st != m.Status {
				pipe.SRem(ctx, tx.s.statusKey(st), id)
			}
		}
		if m == nil {
			pipe.Del(ctx, tx.s.matchKey(id))
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		pipe.Set(ctx, tx.s.matchKey(id), data, 0)
		pipe.SAdd(ctx, tx.s.statusKey(m.Status), id)
	}
	for id, p := range tx.players {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.Set(ctx, tx.s.playerKey(id), data, 0)
	}
	for _, e := range tx.ledger {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		key := tx.s.ledgerKey(e.PlayerID)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, tx.s.cfg.LedgerLimit-1)
	}
	return nil
}
