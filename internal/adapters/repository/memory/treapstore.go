// Package memory is the in-process Store backend: a treap-ordered leaderboard
// plus map-backed session and pointer records.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
)

const backendName = "memory"

// Treap ordering: score DESC, then player ASC. "less" means ranks earlier,
// so an in-order walk yields the leaderboard from best to worst.

type node struct {
	player string
	score  float64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore float64, aPlayer string, bScore float64, bPlayer string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aPlayer < bPlayer
}

// priority hashes the player id so the tree shape does not depend on the
// insertion order or on the score distribution.
func priority(player string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(player))
	return h.Sum64()
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, player string, score float64) *node {
	if n == nil {
		return &node{player: player, score: score, prio: priority(player), size: 1}
	}
	if less(score, player, n.score, n.player) {
		n.left = insert(n.left, player, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, player, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, player string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && player == n.player:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, player, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, player, score)
		}
	case less(score, player, n.score, n.player):
		n.left = deleteNode(n.left, player, score)
	default:
		n.right = deleteNode(n.right, player, score)
	}
	fix(n)
	return n
}

// collectTop appends up to limit entries in rank order.
func collectTop(n *node, limit int, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.Entry{Player: n.player, Score: n.score})
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

// collectBottom walks from the worst entry upward. It keeps going past limit
// while scores tie with the last collected one, because reverse order puts
// tied players in descending id order and the caller re-sorts them.
func collectBottom(n *node, limit int, out *[]types.Entry) bool {
	if n == nil {
		return true
	}
	if !collectBottom(n.right, limit, out) {
		return false
	}
	if len(*out) >= limit && n.score != (*out)[len(*out)-1].Score {
		return false
	}
	*out = append(*out, types.Entry{Player: n.player, Score: n.score})
	return collectBottom(n.left, limit, out)
}

// TreapStore implements repository.Store in memory.
type TreapStore struct {
	mu     sync.RWMutex
	root   *node
	byID   map[string]float64
	inv    map[string]shape.Inventory
	ptrs   map[string]string
	closed bool
}

var _ repository.Store = (*TreapStore)(nil)

// NewTreapStore constructs an empty in-memory store.
func NewTreapStore() *TreapStore {
	return &TreapStore{
		byID: make(map[string]float64),
		inv:  make(map[string]shape.Inventory),
		ptrs: make(map[string]string),
	}
}

// Backend implements repository.Store.
func (s *TreapStore) Backend() string { return backendName }

// Close implements repository.Store. Later calls fail as external failures.
func (s *TreapStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *TreapStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return types.External(op, err)
	}
	if s.closed {
		return types.External(op, errClosed)
	}
	return nil
}

// Submit implements repository.Leaderboard in O(log n) expected time.
func (s *TreapStore) Submit(ctx context.Context, player string, score float64) (_ bool, err error) {
	const op = "memory.submit"
	defer repository.Observe(backendName, "submit", time.Now(), &err)

	if err := repository.ValidateScore(score); err != nil {
		return false, err
	}

	s.mu.Lock()
	if err := s.check(ctx, op); err != nil {
		s.mu.Unlock()
		return false, err
	}
	old, ok := s.byID[player]
	if ok {
		if score <= old {
			s.mu.Unlock()
			return false, nil
		}
		s.root = deleteNode(s.root, player, old)
	}
	s.byID[player] = score
	s.root = insert(s.root, player, score)
	s.mu.Unlock()
	return true, nil
}

// Top implements repository.Leaderboard.
func (s *TreapStore) Top(ctx context.Context, n int) (_ []types.Entry, err error) {
	defer repository.Observe(backendName, "top", time.Now(), &err)
	if err := repository.ValidateLimit(n); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memory.top"); err != nil {
		return nil, err
	}

	out := make([]types.Entry, 0, min(n, len(s.byID)))
	collectTop(s.root, n, &out)
	types.AssignRanks(out)
	return out, nil
}

// Bottom implements repository.Leaderboard.
func (s *TreapStore) Bottom(ctx context.Context, n int) (_ []types.Entry, err error) {
	defer repository.Observe(backendName, "bottom", time.Now(), &err)
	if err := repository.ValidateLimit(n); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memory.bottom"); err != nil {
		return nil, err
	}

	out := make([]types.Entry, 0, min(n, len(s.byID)))
	collectBottom(s.root, n, &out)
	types.SortAscending(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Count implements repository.Leaderboard.
func (s *TreapStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memory.count"); err != nil {
		return 0, err
	}
	return nsize(s.root), nil
}
