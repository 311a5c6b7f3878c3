package quality

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/kvstore"
)

// Error wraps quality store failures
var Error = errs.Class("quality")

// Tuning of the feedback rule. The controller is deliberately simple: it
// reacts only to the immediately preceding run and has no memory of trend,
// so alternating effective/ineffective runs make the parameter oscillate
const (
	DefaultValue = 80
	Step         = 5
	Floor        = 30
	Cap          = 95

	// compression barely helped above this ratio; very effective below the lower one
	highRatio = 0.95
	lowRatio  = 0.60
)

const (
	paramPrefix   = "param:"
	historyPrefix = "history:"
)

// Record is one audit entry of a parameter adjustment
type Record struct {
	Name       string    `json:"name"`
	Transition string    `json:"transition"`
	Ratio      float64   `json:"ratio"`
	At         time.Time `json:"at"`
}

// Model is a persistent name -> numeric parameter store with a bang-bang
// feedback rule driven by the previous run's compression ratio
type Model struct {
	logger *zap.Logger
	store  kvstore.KeyValueStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	seq   atomic.Uint64
}

// NewModel wraps a key/value store
func NewModel(logger *zap.Logger, store kvstore.KeyValueStore) *Model {
	return &Model{
		logger: logger,
		store:  store,
		locks:  make(map[string]*sync.Mutex),
	}
}

// nameLock serializes read-modify-write cycles per parameter name
func (m *Model) nameLock(name string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name] = lock
	}
	return lock
}

// Get returns the stored value for name, or DefaultValue when absent. It
// never fails: any read error falls back to the default
func (m *Model) Get(name string) int {
	return m.GetDefault(name, DefaultValue)
}

// GetDefault returns the stored value for name, or fallback when the value
// is absent or non-numeric
func (m *Model) GetDefault(name string, fallback int) int {
	value, err := m.store.Get(kvstore.Key(paramPrefix + name))
	if err != nil {
		m.logger.Warn("quality parameter read failed, using default",
			zap.String("name", name), zap.Error(err))
		return fallback
	}
	if value.IsZero() {
		return fallback
	}
	parsed, err := strconv.Atoi(string(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// Adjust applies the feedback rule to the parameter and persists the result.
// ratio > 0.95 means compression barely helped: trade quality for smaller
// output. ratio < 0.60 means compression was very effective: spend the slack
// on higher quality. In between the value is left unchanged
func (m *Model) Adjust(name string, previous int, originalSize, compressedSize int64) int {
	if originalSize <= 0 {
		return previous
	}

	lock := m.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	ratio := float64(compressedSize) / float64(originalSize)

	next := previous
	switch {
	case ratio > highRatio:
		next = previous - Step
		if next < Floor {
			next = Floor
		}
	case ratio < lowRatio:
		next = previous + Step
		if next > Cap {
			next = Cap
		}
	}

	if err := m.store.Put(kvstore.Key(paramPrefix+name), kvstore.Value(strconv.Itoa(next))); err != nil {
		m.logger.Error("quality parameter write failed",
			zap.String("name", name), zap.Error(err))
		return next
	}

	m.appendHistory(Record{
		Name:       name,
		Transition: fmt.Sprintf("%d->%d", previous, next),
		Ratio:      ratio,
		At:         time.Now().UTC(),
	})

	m.logger.Info("quality parameter adjusted",
		zap.String("name", name),
		zap.Int("previous", previous),
		zap.Int("next", next),
		zap.Float64("ratio", ratio))
	return next
}

func (m *Model) appendHistory(record Record) {
	encoded, err := json.Marshal(record)
	if err != nil {
		m.logger.Error("history encode failed", zap.Error(err))
		return
	}
	// sequence suffix keeps keys unique when adjustments land on the same nanosecond
	key := fmt.Sprintf("%s%020d-%06d", historyPrefix, record.At.UnixNano(), m.seq.Add(1))
	if err := m.store.Put(kvstore.Key(key), encoded); err != nil {
		m.logger.Error("history write failed", zap.Error(err))
	}
}

// History returns recent adjustment records, newest first
func (m *Model) History(limit int) ([]Record, error) {
	keys, err := m.store.ReverseList(kvstore.Key(historyPrefix), kvstore.Limit(limit))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		value, err := m.store.Get(key)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		var record Record
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, Error.Wrap(err)
		}
		records = append(records, record)
	}
	return records, nil
}
