package store

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/vexus/internal/engine"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
)

// growthFactor is the multiplier applied when the engine runs out of room.
const growthFactor = 1.5

// core owns one engine behind a reader/writer lock and implements the
// capacity policy shared by both store variants.
//
// Go mutexes cannot be poisoned, so core treats a panic raised while the
// lock is held as poisoning: the panicking call and every later call on the
// same store return a LockError. Other stores are unaffected.
type core struct {
	mu       sync.RWMutex
	eng      engine.Engine
	dim      int
	closed   bool
	poisoned atomic.Bool
	logger   *slog.Logger
}

func newCore(eng engine.Engine, logger *slog.Logger) *core {
	return &core{
		eng:    eng,
		dim:    eng.Dimensions(),
		logger: logger,
	}
}

// write runs fn with the engine lock held exclusively.
func (c *core) write(op string, fn func() error) (err error) {
	if c.poisoned.Load() {
		return poisonedError(op)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.recoverPanic(op, &err)

	if c.closed {
		return verrors.ClosedError()
	}
	return fn()
}

// read runs fn with the engine lock held shared.
func (c *core) read(op string, fn func() error) (err error) {
	if c.poisoned.Load() {
		return poisonedError(op)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	defer c.recoverPanic(op, &err)

	if c.closed {
		return verrors.ClosedError()
	}
	return fn()
}

func (c *core) recoverPanic(op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	c.poisoned.Store(true)
	c.logger.Error("store_lock_poisoned",
		slog.String("op", op),
		slog.Any("panic", r))
	*err = verrors.LockError(fmt.Sprintf("%s panicked while holding the store lock", op),
		fmt.Errorf("%v", r))
}

func poisonedError(op string) error {
	return verrors.LockError(fmt.Sprintf("%s: store lock is poisoned", op), nil)
}

// checkDim rejects vectors whose length differs from the store dimension.
func (c *core) checkDim(vec []float32) error {
	if len(vec) != c.dim {
		return verrors.DimensionMismatch(c.dim, len(vec))
	}
	return nil
}

// grownCapacity returns ceil(n * growthFactor).
func grownCapacity(n int) int {
	return int(math.Ceil(float64(n) * growthFactor))
}

// ensureCapacity grows the engine before incoming vectors are added, when
// size+incoming would reach capacity. Single inserts grow to 1.5x the
// current capacity; batches grow to 1.5x the post-batch size. Growth
// failures are logged and the insert proceeds so the engine's own capacity
// check decides. Callers hold the write lock.
func (c *core) ensureCapacity(incoming int) {
	size, capacity := c.eng.Size(), c.eng.Capacity()
	if size+incoming < capacity {
		return
	}

	var target int
	if incoming == 1 {
		target = max(grownCapacity(capacity), grownCapacity(size+1))
	} else {
		target = grownCapacity(size + incoming)
	}

	if err := c.eng.Reserve(target); err != nil {
		c.logger.Warn("capacity_grow_failed",
			slog.Int("size", size),
			slog.Int("capacity", capacity),
			slog.Int("target", target),
			slog.String("error", err.Error()))
		return
	}

	c.logger.Debug("capacity_grow",
		slog.Int("size", size),
		slog.Int("from", capacity),
		slog.Int("to", c.eng.Capacity()))
}

// add inserts one vector after applying the single-insert growth policy.
// Callers hold the write lock and have validated the dimension.
func (c *core) add(label uint64, vec []float32) error {
	c.ensureCapacity(1)
	if err := c.eng.Add(label, vec); err != nil {
		return verrors.EngineError("failed to add vector", err).
			WithDetail("label", fmt.Sprint(label))
	}
	return nil
}

// search runs an engine query and converts distances to scores.
// Callers hold at least the read lock.
func (c *core) search(query []float32, k int) ([]uint64, []float32, error) {
	if err := c.checkDim(query); err != nil {
		return nil, nil, err
	}
	if k <= 0 {
		return nil, nil, verrors.ValidationError(fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	labels, dists, err := c.eng.Search(query, k)
	if err != nil {
		return nil, nil, verrors.EngineError("search failed", err)
	}
	return labels, dists, nil
}

// stats reads all four values under one lock acquisition.
func (c *core) stats() (Stats, error) {
	var s Stats
	err := c.read("stats", func() error {
		s = Stats{
			Count:       c.eng.Size(),
			Dimensions:  c.dim,
			Capacity:    c.eng.Capacity(),
			MemoryUsage: c.eng.MemoryUsage(),
		}
		return nil
	})
	return s, err
}

// close releases the engine. Later calls return a closed error.
func (c *core) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.eng = nil
	return nil
}

func score(distance float32) float32 {
	return 1 - distance
}
