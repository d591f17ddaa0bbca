package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestMessagingSendAndReadFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationMessagingService(pool)

	sender := createTestUser(t, ctx, pool, "patient")
	recipient := createTestUser(t, ctx, pool, "clinician")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, sender.ID, recipient.ID) })

	message, err := service.Send(ctx, sender.ID, recipient.Username, nil, "How do I reschedule?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if message.ConversationID == 0 || message.IsRead {
		t.Fatalf("unexpected message: %+v", message)
	}

	// A second send reuses the same direct conversation.
	second, err := service.Send(ctx, recipient.ID, sender.Username, nil, "Use the booking page.")
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if second.ConversationID != message.ConversationID {
		t.Fatalf("expected conversation reuse, got %d and %d", message.ConversationID, second.ConversationID)
	}

	unread, err := service.UnreadTotal(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("UnreadTotal: %v", err)
	}
	if unread != 1 {
		t.Fatalf("expected 1 unread for recipient, got %d", unread)
	}

	messages, total, err := service.GetThread(ctx, recipient.ID, message.ConversationID, 1, 20)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if total != 2 || len(messages) != 2 {
		t.Fatalf("expected 2 messages, got total=%d len=%d", total, len(messages))
	}

	unread, err = service.UnreadTotal(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("UnreadTotal after read: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread after viewing thread, got %d", unread)
	}
}

func TestMessagingBlockStopsDelivery(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationMessagingService(pool)
	blockService := NewBlockService(repository.NewBlockRepository(pool), repository.NewUserRepository(pool))

	sender := createTestUser(t, ctx, pool, "patient")
	recipient := createTestUser(t, ctx, pool, "patient")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, sender.ID, recipient.ID) })

	if _, err := blockService.Block(ctx, recipient.ID, sender.Username, nil); err != nil {
		t.Fatalf("Block: %v", err)
	}

	if _, err := service.Send(ctx, sender.ID, recipient.Username, nil, "hello"); err != ErrBlocked {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	// The reverse direction stays open.
	if _, err := service.Send(ctx, recipient.ID, sender.Username, nil, "still works"); err != nil {
		t.Fatalf("reverse Send: %v", err)
	}

	if err := blockService.Unblock(ctx, recipient.ID, sender.Username); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if _, err := service.Send(ctx, sender.ID, recipient.Username, nil, "hello again"); err != nil {
		t.Fatalf("Send after unblock: %v", err)
	}
}

func TestMessagingSoftDeleteIsPerUser(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationMessagingService(pool)

	sender := createTestUser(t, ctx, pool, "patient")
	recipient := createTestUser(t, ctx, pool, "clinician")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, sender.ID, recipient.ID) })

	message, err := service.Send(ctx, sender.ID, recipient.Username, nil, "delete me on one side")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := service.SoftDelete(ctx, sender.ID, message.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	_, senderTotal, err := service.GetThread(ctx, sender.ID, message.ConversationID, 1, 20)
	if err != nil {
		t.Fatalf("GetThread sender: %v", err)
	}
	if senderTotal != 0 {
		t.Fatalf("expected deleted message hidden from sender, got %d", senderTotal)
	}

	_, recipientTotal, err := service.GetThread(ctx, recipient.ID, message.ConversationID, 1, 20)
	if err != nil {
		t.Fatalf("GetThread recipient: %v", err)
	}
	if recipientTotal != 1 {
		t.Fatalf("expected message still visible to recipient, got %d", recipientTotal)
	}
}

func TestMessagingArchiveHidesFromThreadOnly(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationMessagingService(pool)

	sender := createTestUser(t, ctx, pool, "patient")
	recipient := createTestUser(t, ctx, pool, "clinician")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, sender.ID, recipient.ID) })

	message, err := service.Send(ctx, sender.ID, recipient.Username, nil, "sleep journal entry")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := service.Archive(ctx, recipient.ID, message.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	_, recipientTotal, err := service.GetThread(ctx, recipient.ID, message.ConversationID, 1, 20)
	if err != nil {
		t.Fatalf("GetThread recipient: %v", err)
	}
	if recipientTotal != 0 {
		t.Fatalf("expected archived message hidden from archiver's thread, got %d", recipientTotal)
	}

	_, senderTotal, err := service.GetThread(ctx, sender.ID, message.ConversationID, 1, 20)
	if err != nil {
		t.Fatalf("GetThread sender: %v", err)
	}
	if senderTotal != 1 {
		t.Fatalf("expected message still visible to sender, got %d", senderTotal)
	}

	// Unlike a soft delete, the archived message still matches search.
	results, err := service.Search(ctx, recipient.ID, "sleep journal")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, result := range results {
		if result.ID == message.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected archived message to remain searchable")
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationMessagingService(pool *pgxpool.Pool) *MessagingService {
	userRepo := repository.NewUserRepository(pool)
	return NewMessagingService(
		pool,
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		userRepo,
		repository.NewBlockRepository(pool),
		repository.NewTemplateRepository(pool),
		&stubNotifier{},
	)
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string) *models.User {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	suffix := time.Now().UnixNano()
	user := &models.User{
		Username:     fmt.Sprintf("msgtest_%s_%d", role, suffix),
		Email:        fmt.Sprintf("msg-test-%s-%d@example.com", role, suffix),
		PasswordHash: "test-hash",
		Role:         role,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", role, err)
	}
	return user
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, `
		DELETE FROM conversations
		WHERE id IN (
			SELECT conversation_id FROM conversation_participants WHERE user_id = ANY($1)
		)
	`, userIDs); err != nil {
		t.Fatalf("cleanup conversations: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}
