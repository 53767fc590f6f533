package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"paperchat/internal/logger"
	"paperchat/internal/models"
	"paperchat/internal/util"
)

var ErrClosed = errors.New("store closed")

type writeRequest struct {
	done chan error
}

// Store is the process-wide PaperStore. Reads are served from memory; every
// mutation is applied in call order and then persisted by a single writer
// goroutine, so file writes happen in the same order as the calls.
type Store struct {
	path string
	log  *logger.Logger

	mu     sync.RWMutex
	loaded bool
	data   models.PaperStore

	// enqueue orders mutation+enqueue pairs without holding mu while blocked on the queue.
	enqueue sync.Mutex

	queue     chan writeRequest
	closeOnce sync.Once
	closed    chan struct{}
	stopped   chan struct{}
	writes    atomic.Int64
}

func Open(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		path:    path,
		log:     log.With("component", "store"),
		queue:   make(chan writeRequest, 64),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.queue:
			req.done <- s.persist()
		case <-s.closed:
			for {
				select {
				case req := <-s.queue:
					req.done <- s.persist()
				default:
					return
				}
			}
		}
	}
}

func (s *Store) persist() error {
	s.mu.RLock()
	b, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := util.WriteJSONAtomic(s.path, json.RawMessage(b)); err != nil {
		s.log.Error("store write failed", "path", s.path, "error", err)
		return err
	}
	s.writes.Add(1)
	return nil
}

func (s *Store) ensureLoaded() {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.data = s.readFile()
		s.loaded = true
	}
}

func (s *Store) readFile() models.PaperStore {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("store unreadable, starting empty", "path", s.path, "error", err)
		}
		return models.NewPaperStore()
	}
	var parsed models.PaperStore
	if err := json.Unmarshal(b, &parsed); err != nil {
		s.log.Warn("store corrupt, starting empty", "path", s.path, "error", err)
		return models.NewPaperStore()
	}
	if parsed.Version != models.StoreVersion {
		s.log.Warn("store version unsupported, starting empty", "path", s.path, "version", parsed.Version)
		return models.NewPaperStore()
	}
	empty := models.NewPaperStore()
	if parsed.Papers == nil {
		parsed.Papers = empty.Papers
	}
	if parsed.Conversations == nil {
		parsed.Conversations = empty.Conversations
	}
	if parsed.Memories == nil {
		parsed.Memories = empty.Memories
	}
	if parsed.Embeddings == nil {
		parsed.Embeddings = empty.Embeddings
	}
	if parsed.TurnTotals == nil {
		parsed.TurnTotals = empty.TurnTotals
	}
	return parsed
}

// Update applies mutate to the in-memory state and waits until the resulting
// snapshot is on disk. A mutate error leaves the state untouched by convention
// and skips the write.
func (s *Store) Update(ctx context.Context, mutate func(*models.PaperStore) error) error {
	s.ensureLoaded()
	s.enqueue.Lock()
	s.mu.Lock()
	err := mutate(&s.data)
	s.mu.Unlock()
	if err != nil {
		s.enqueue.Unlock()
		return err
	}
	done, err := s.submit()
	s.enqueue.Unlock()
	if err != nil {
		return err
	}
	return wait(ctx, done)
}

// Commit resolves once every write enqueued before it is durable.
func (s *Store) Commit(ctx context.Context) error {
	s.ensureLoaded()
	s.enqueue.Lock()
	done, err := s.submit()
	s.enqueue.Unlock()
	if err != nil {
		return err
	}
	return wait(ctx, done)
}

// submit must be called with s.enqueue held.
func (s *Store) submit() (<-chan error, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}
	req := writeRequest{done: make(chan error, 1)}
	s.queue <- req
	return req.done, nil
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes and stops the writer.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.enqueue.Lock()
		close(s.closed)
		s.enqueue.Unlock()
	})
	<-s.stopped
}

// Writes reports how many snapshots have been persisted.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

// Invalidate drops the in-memory cache so the next access re-reads the file.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

func (s *Store) Paper(paperID string) (models.PaperIndex, bool) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.Papers[paperID]
	return p, ok
}

func (s *Store) PutPaper(ctx context.Context, paperID string, idx models.PaperIndex) error {
	return s.Update(ctx, func(ps *models.PaperStore) error {
		ps.Papers[paperID] = idx
		return nil
	})
}

func (s *Store) Conversation(paperID string) []models.ChatMessage {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.data.Conversations[paperID]
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// AppendMessages appends msgs and keeps only the newest maxStored messages.
// The paper's turn total keeps counting turns that trimming drops. It returns
// the conversation length after trimming.
func (s *Store) AppendMessages(ctx context.Context, paperID string, maxStored int, msgs ...models.ChatMessage) (int, error) {
	var n int
	err := s.Update(ctx, func(ps *models.PaperStore) error {
		old := ps.Conversations[paperID]
		list := append(append([]models.ChatMessage(nil), old...), msgs...)
		total, ok := ps.TurnTotals[paperID]
		if !ok {
			total = models.CountTurns(old)
		}
		ps.TurnTotals[paperID] = total + models.CountTurns(list) - models.CountTurns(old)
		if maxStored > 0 && len(list) > maxStored {
			list = list[len(list)-maxStored:]
		}
		ps.Conversations[paperID] = list
		n = len(list)
		return nil
	})
	return n, err
}

// TurnTotal returns the number of turns recorded for the paper since its
// conversation was last cleared.
func (s *Store) TurnTotal(paperID string) int {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.data.TurnTotals[paperID]; ok {
		return n
	}
	return models.CountTurns(s.data.Conversations[paperID])
}

func (s *Store) Memory(paperID string) (models.ConversationMemory, bool) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data.Memories[paperID]
	return m, ok
}

func (s *Store) PutMemory(ctx context.Context, paperID string, m models.ConversationMemory) error {
	return s.Update(ctx, func(ps *models.PaperStore) error {
		ps.Memories[paperID] = m
		return nil
	})
}

// ClearConversation removes chat history and memory but keeps index and embeddings.
func (s *Store) ClearConversation(ctx context.Context, paperID string) error {
	return s.Update(ctx, func(ps *models.PaperStore) error {
		delete(ps.Conversations, paperID)
		delete(ps.Memories, paperID)
		delete(ps.TurnTotals, paperID)
		return nil
	})
}

func (s *Store) Embeddings(paperID string) (models.PaperEmbeddings, bool) {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data.Embeddings[paperID]
	if !ok {
		return e, false
	}
	return cloneEmbeddings(e), true
}

func (s *Store) PutEmbeddings(ctx context.Context, paperID string, e models.PaperEmbeddings) error {
	e = cloneEmbeddings(e)
	return s.Update(ctx, func(ps *models.PaperStore) error {
		ps.Embeddings[paperID] = e
		return nil
	})
}

func cloneEmbeddings(e models.PaperEmbeddings) models.PaperEmbeddings {
	out := e
	out.ChunkHashes = make(map[string]string, len(e.ChunkHashes))
	for k, v := range e.ChunkHashes {
		out.ChunkHashes[k] = v
	}
	out.Vectors = make(map[string][]float32, len(e.Vectors))
	for k, v := range e.Vectors {
		out.Vectors[k] = v
	}
	return out
}

// Snapshot returns a deep-enough copy for export and diagnostics.
func (s *Store) Snapshot() (models.PaperStore, error) {
	s.ensureLoaded()
	s.mu.RLock()
	b, err := json.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return models.PaperStore{}, err
	}
	var out models.PaperStore
	if err := json.Unmarshal(b, &out); err != nil {
		return models.PaperStore{}, err
	}
	return out, nil
}
