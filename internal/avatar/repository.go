package avatar

import (
	"errors"
	"sync"
	"time"

	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/skeleton"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or ended session ids.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the concurrency-safe contract for creating, finding and
// removing avatar sessions.
type Repository interface {
	// Create registers a new session for sk with a fresh id and player.
	Create(model string, sk *skeleton.Skeleton, player *animation.Player) *Session

	// Get returns the session for id, or ErrSessionNotFound.
	Get(id SessionID) (*Session, error)

	// Delete removes a session. Deleting an unknown id returns ErrSessionNotFound.
	Delete(id SessionID) error

	// ActiveSessionCount returns the number of live sessions. Used for metrics.
	ActiveSessionCount() int
}

// InMemoryRepository is a concurrency-safe Repository backed by a Store.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store, now: time.Now}
}

// Create implements Repository.Create.
func (r *InMemoryRepository) Create(model string, sk *skeleton.Skeleton, player *animation.Player) *Session {
	sess := &Session{
		ID:        SessionID(uuid.NewString()),
		Model:     model,
		CreatedAt: r.now().UTC(),
		skeleton:  sk,
		player:    player,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.SetSession(sess)
	return sess
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete implements Repository.Delete.
func (r *InMemoryRepository) Delete(id SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.store.DeleteSession(id) {
		return ErrSessionNotFound
	}
	return nil
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.ListSessionIDs())
}
