package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"splitwise/internal/amqp"
	"splitwise/internal/core"
	"splitwise/internal/log"
	"splitwise/internal/storage"
)

// capturingPublisher records published events instead of talking to RabbitMQ.
type capturingPublisher struct {
	mu       sync.Mutex
	messages []*amqp.LedgerEventMessage
}

func (p *capturingPublisher) PublishLedgerEvent(_ context.Context, msg *amqp.LedgerEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingPublisher) published() []*amqp.LedgerEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.LedgerEventMessage(nil), p.messages...)
}

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedSpace(t *testing.T, repo *storage.SQLiteRepository, base core.Currency) (core.Space, core.User, core.User) {
	t.Helper()
	ctx := context.Background()

	alice, err := repo.GetOrCreateUserByEmail(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := repo.GetOrCreateUserByEmail(ctx, "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	space := core.Space{
		ID:           uuid.NewString(),
		Name:         "Trip",
		BaseCurrency: base,
		CreatedBy:    alice.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateSpace(ctx, space); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if _, err := repo.AddMember(ctx, bob.ID, space.ID, core.RoleEditor); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return space, alice, bob
}
