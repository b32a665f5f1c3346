package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cockroachdb/pebble"

	"lingua/pkg/logger"
	"lingua/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string

	// threadMu serializes counter allocation and message writes per
	// thread. Threads are independent; no cross-thread locking exists.
	threadMuMu sync.Mutex
	threadMu   = map[string]*sync.Mutex{}
)

// ErrNotFound reports a missing key; callers translate it into the
// conflated not-found/forbidden outcome where ownership is involved.
var ErrNotFound = errors.New("store: not found")

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return err
	}
	dbPath = path
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Log.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

func notOpen() error { return fmt.Errorf("pebble not opened; call store.Open first") }

func lockThread(threadID string) *sync.Mutex {
	threadMuMu.Lock()
	defer threadMuMu.Unlock()
	mu, ok := threadMu[threadID]
	if !ok {
		mu = &sync.Mutex{}
		threadMu[threadID] = mu
	}
	return mu
}

func get(key string) ([]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

func set(key string, value []byte) error {
	if db == nil {
		return notOpen()
	}
	return db.Set([]byte(key), value, pebble.Sync)
}

// ---- threads ----

// SaveThread stores thread metadata under a reserved key.
func SaveThread(t models.Thread) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	if err := set("thread:"+t.ID+":meta", b); err != nil {
		logger.Log.Error("save_thread_failed", zap.String("thread", t.ID), zap.Error(err))
		return err
	}
	logger.Log.Info("thread_saved", zap.String("thread", t.ID))
	return nil
}

// GetThread returns the stored thread metadata for a given thread ID.
func GetThread(threadID string) (models.Thread, error) {
	var t models.Thread
	v, err := get("thread:" + threadID + ":meta")
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid thread metadata: %w", err)
	}
	return t, nil
}

// ListThreads returns all saved thread metadata values.
func ListThreads() ([]models.Thread, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	prefix := []byte("thread:")
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var t models.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

// ---- message ordering ----

type threadSeq struct {
	LastOrder uint64 `json:"last_order"`
	LastStep  uint64 `json:"last_step"`
}

func loadSeq(threadID string) (threadSeq, error) {
	var s threadSeq
	v, err := get("thread:" + threadID + ":seq")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(v, &s); err != nil {
		return s, fmt.Errorf("invalid thread seq: %w", err)
	}
	return s, nil
}

func saveSeq(threadID string, s threadSeq) error {
	b, _ := json.Marshal(s)
	return set("thread:"+threadID+":seq", b)
}

// NextTurn allocates the next turn order for a thread and resets the step
// counter. Allocation is atomic per thread; orders are never reused.
func NextTurn(threadID string) (uint64, error) {
	mu := lockThread(threadID)
	mu.Lock()
	defer mu.Unlock()
	s, err := loadSeq(threadID)
	if err != nil {
		return 0, err
	}
	s.LastOrder++
	s.LastStep = 0
	if err := saveSeq(threadID, s); err != nil {
		return 0, err
	}
	return s.LastOrder, nil
}

// NextStep allocates the next step within the given turn order. The caller
// must hold the thread's generation claim; steps of a turn are produced by
// a single job.
func NextStep(threadID string, order uint64) (uint64, error) {
	mu := lockThread(threadID)
	mu.Lock()
	defer mu.Unlock()
	s, err := loadSeq(threadID)
	if err != nil {
		return 0, err
	}
	if s.LastOrder != order {
		return 0, fmt.Errorf("step requested for stale turn %d (current %d)", order, s.LastOrder)
	}
	s.LastStep++
	if err := saveSeq(threadID, s); err != nil {
		return 0, err
	}
	return s.LastStep, nil
}

// ---- messages ----

// msgKey yields keys that sort in (order, step) creation order under the
// thread's message prefix.
func msgKey(threadID string, order, step uint64) string {
	return fmt.Sprintf("thread:%s:msg:%012d-%06d", threadID, order, step)
}

// SaveMessage writes a message under its (order, step) key and indexes it
// by id so it can be reloaded without knowing its position.
func SaveMessage(m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	key := msgKey(m.Thread, m.Order, m.Step)
	if err := set(key, data); err != nil {
		logger.Log.Error("save_message_failed", zap.String("thread", m.Thread), zap.String("key", key), zap.Error(err))
		return err
	}
	idx := fmt.Sprintf("thread:%s:msgid:%s", m.Thread, m.ID)
	if err := set(idx, []byte(key)); err != nil {
		logger.Log.Error("save_message_index_failed", zap.String("idxKey", idx), zap.Error(err))
		return err
	}
	logger.Log.Debug("message_saved", zap.String("thread", m.Thread), zap.String("msg_id", m.ID), zap.String("status", string(m.Status)))
	return nil
}

// DeleteMessage removes a message and its id index. Only backs out an
// append whose enclosing operation failed before being acknowledged to
// the caller; acknowledged ledger entries are never deleted.
func DeleteMessage(m models.Message) error {
	if db == nil {
		return notOpen()
	}
	if err := db.Delete([]byte(msgKey(m.Thread, m.Order, m.Step)), pebble.Sync); err != nil {
		return err
	}
	return db.Delete([]byte(fmt.Sprintf("thread:%s:msgid:%s", m.Thread, m.ID)), pebble.Sync)
}

// GetMessage loads a message by thread and message id.
func GetMessage(threadID, msgID string) (models.Message, error) {
	var m models.Message
	key, err := get(fmt.Sprintf("thread:%s:msgid:%s", threadID, msgID))
	if err != nil {
		return m, err
	}
	v, err := get(string(key))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// ListMessages returns up to limit messages for a thread in (order, step)
// order, starting after the opaque cursor (an "order-step" key suffix).
// It returns the cursor for the next page, empty when the page is last.
func ListMessages(threadID, cursor string, limit int) ([]models.Message, string, error) {
	if db == nil {
		return nil, "", notOpen()
	}
	prefix := []byte("thread:" + threadID + ":msg:")
	start := prefix
	if cursor != "" {
		// resume strictly after the cursor position
		start = append(append([]byte(nil), prefix...), []byte(cursor+"\x00")...)
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, "", err
	}
	defer iter.Close()
	var out []models.Message
	next := ""
	for iter.SeekGE(start); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if limit > 0 && len(out) >= limit {
			last := out[len(out)-1]
			next = fmt.Sprintf("%012d-%06d", last.Order, last.Step)
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, next, iter.Error()
}

// ListStreamingMessages returns all messages currently in streaming status
// for a thread; used by the retention sweeper.
func ListStreamingMessages(threadID string) ([]models.Message, error) {
	msgs, _, err := ListMessages(threadID, "", 0)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range msgs {
		if m.Status == models.StatusStreaming || m.Status == models.StatusPending {
			out = append(out, m)
		}
	}
	return out, nil
}

// ---- approvals ----

// SaveApproval writes an approval under its id and its per-message index.
func SaveApproval(a models.ToolCallApproval) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal approval: %w", err)
	}
	if err := set("approval:id:"+a.ID, data); err != nil {
		logger.Log.Error("save_approval_failed", zap.String("approval", a.ID), zap.Error(err))
		return err
	}
	if err := set(fmt.Sprintf("approval:msg:%s:%s", a.Message, a.ID), data); err != nil {
		return err
	}
	// invocation-id dedup index, written once at creation. Keyed by thread
	// so a model retry of the same invocation in a later step still hits it.
	invKey := fmt.Sprintf("approval:inv:%s:%s", a.Thread, a.Invocation)
	if err := set(invKey, []byte(a.ID)); err != nil {
		return err
	}
	logger.Log.Info("approval_saved", zap.String("approval", a.ID), zap.String("status", string(a.Status)))
	return nil
}

// GetApproval loads an approval by id.
func GetApproval(id string) (models.ToolCallApproval, error) {
	var a models.ToolCallApproval
	v, err := get("approval:id:" + id)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(v, &a); err != nil {
		return a, fmt.Errorf("invalid stored approval: %w", err)
	}
	return a, nil
}

// GetApprovalByInvocation resolves the approval already recorded for a
// tool invocation id, if any. This backs the at-most-once guarantee.
func GetApprovalByInvocation(threadID, invocationID string) (models.ToolCallApproval, bool, error) {
	v, err := get(fmt.Sprintf("approval:inv:%s:%s", threadID, invocationID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.ToolCallApproval{}, false, nil
		}
		return models.ToolCallApproval{}, false, err
	}
	a, err := GetApproval(string(v))
	if err != nil {
		return a, false, err
	}
	return a, true, nil
}

// ListApprovalsForMessage returns all approvals recorded under a message.
func ListApprovalsForMessage(messageID string) ([]models.ToolCallApproval, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("approval:msg:" + messageID + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.ToolCallApproval
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var a models.ToolCallApproval
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, iter.Error()
}

// ---- flashcards ----

// SaveFlashcard persists a study artifact.
func SaveFlashcard(c models.Flashcard) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal flashcard: %w", err)
	}
	if err := set(fmt.Sprintf("flashcard:%s:%s", c.Owner, c.ID), data); err != nil {
		logger.Log.Error("save_flashcard_failed", zap.String("flashcard", c.ID), zap.Error(err))
		return err
	}
	logger.Log.Info("flashcard_saved", zap.String("flashcard", c.ID), zap.String("owner", c.Owner))
	return nil
}

// ListFlashcards returns all flashcards owned by a user in creation order.
func ListFlashcards(owner string) ([]models.Flashcard, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("flashcard:" + owner + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Flashcard
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.Flashcard
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// ---- raw key/value (artifact caches) ----

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	v, err := get(key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SaveKey stores an arbitrary key/value pair. Callers should choose a safe
// namespace (e.g. "artifact:audio:").
func SaveKey(key string, value []byte) error {
	if err := set(key, value); err != nil {
		logger.Log.Error("save_key_failed", zap.String("key", key), zap.Error(err))
		return err
	}
	logger.Log.Debug("save_key_ok", zap.String("key", key), zap.Int("len", len(value)))
	return nil
}
