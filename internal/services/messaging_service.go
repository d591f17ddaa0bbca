package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/repository"
)

// Bounds carried over from the product's messaging rules.
const (
	MaxMessageLength     = 10000
	MaxSubjectLength     = 255
	MaxSearchQueryLength = 200
	MinSearchQueryLength = 2

	searchResultLimit = 50
	sentListLimit     = 100
)

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type blockChecker interface {
	Exists(ctx context.Context, blockerID int64, blockedID int64) (bool, error)
}

type templateReader interface {
	GetByID(ctx context.Context, id int64) (*models.Template, error)
}

// DeliveryNotifier receives successful deliveries for push to connected
// clients. Implementations must not block the send path.
type DeliveryNotifier interface {
	NotifyMessage(message *models.Message, recipientIDs []int64)
}

type MessagingService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         userReader
	blocks           blockChecker
	templates        templateReader
	notifier         DeliveryNotifier
}

func NewMessagingService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
	blocks blockChecker,
	templates templateReader,
	notifier DeliveryNotifier,
) *MessagingService {
	return &MessagingService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		blocks:           blocks,
		templates:        templates,
		notifier:         notifier,
	}
}

// Send delivers a direct message. The recipient's block list is
// consulted first; a block rejects the send without telling the sender
// why (the handler maps ErrBlocked to a neutral response).
func (s *MessagingService) Send(
	ctx context.Context,
	senderID int64,
	recipientUsername string,
	subject *string,
	content string,
) (*models.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(trimmed) > MaxMessageLength {
		return nil, ErrInvalidInput
	}
	if subject != nil && len(*subject) > MaxSubjectLength {
		return nil, ErrInvalidInput
	}

	recipient, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(recipientUsername))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipientUnknown
		}
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, ErrSelfAction
	}

	blocked, err := s.blocks.Exists(ctx, recipient.ID, senderID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}

	var message *models.Message
	err = withRetry(ctx, func() error {
		message, err = s.deliver(ctx, senderID, recipient.ID, subject, trimmed)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyMessage(message, []int64{recipient.ID})
	return message, nil
}

// SendFromTemplate resolves the template (owner or public only) and
// sends its content verbatim; templates are static text, no variable
// interpolation.
func (s *MessagingService) SendFromTemplate(
	ctx context.Context,
	senderID int64,
	recipientUsername string,
	templateID int64,
	subject *string,
) (*models.Message, error) {
	template, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template.OwnerID != senderID && !template.IsPublic {
		return nil, ErrForbidden
	}

	return s.Send(ctx, senderID, recipientUsername, subject, template.Content)
}

// SendToConversation appends to an existing thread; used by the
// WebSocket path where the client already holds a conversation id.
func (s *MessagingService) SendToConversation(
	ctx context.Context,
	senderID int64,
	conversationID int64,
	content string,
) (*models.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(trimmed) > MaxMessageLength {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, senderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotParticipant
		}
		return nil, err
	}

	participantIDs, err := s.conversationRepo.ListParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	recipients := make([]int64, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}

	var recipientID *int64
	if !conversation.IsGroup {
		if len(recipients) != 1 {
			return nil, ErrInvalidInput
		}
		blocked, err := s.blocks.Exists(ctx, recipients[0], senderID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, ErrBlocked
		}
		recipientID = &recipients[0]
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	// Touch first: the conversation row lock serializes concurrent
	// appends to the same thread.
	if err := txConversationRepo.Touch(ctx, conversationID); err != nil {
		return nil, err
	}
	message, err := txMessageRepo.Create(ctx, repository.CreateMessageInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        trimmed,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.NotifyMessage(message, recipients)
	return message, nil
}

// CreateGroup creates a group conversation from a creator and at least
// two invitees.
func (s *MessagingService) CreateGroup(
	ctx context.Context,
	creatorID int64,
	subject string,
	memberUsernames []string,
) (*models.Conversation, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "Group Message"
	}
	if len(subject) > MaxSubjectLength {
		return nil, ErrInvalidInput
	}

	memberIDs := make([]int64, 0, len(memberUsernames))
	seen := map[int64]struct{}{creatorID: {}}
	for _, username := range memberUsernames {
		member, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrRecipientUnknown
			}
			return nil, err
		}
		if _, dup := seen[member.ID]; dup {
			continue
		}
		seen[member.ID] = struct{}{}
		memberIDs = append(memberIDs, member.ID)
	}

	if len(memberIDs) < 2 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	conversation, err := txConversationRepo.CreateGroup(ctx, creatorID, subject, memberIDs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return conversation, nil
}

func (s *MessagingService) ListInbox(
	ctx context.Context,
	userID int64,
	page int,
	limit int,
) (*models.Inbox, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	entries, err := s.conversationRepo.ListInbox(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.conversationRepo.CountInbox(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	totalUnread, err := s.messageRepo.UnreadTotal(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	return &models.Inbox{Conversations: entries, TotalUnread: totalUnread}, total, nil
}

// GetThread returns a page of the conversation and marks the returned
// window read for the viewer, in one transaction.
func (s *MessagingService) GetThread(
	ctx context.Context,
	viewerID int64,
	conversationID int64,
	page int,
	limit int,
) ([]models.Message, int, error) {
	if conversationID <= 0 || page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, viewerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotParticipant
		}
		return nil, 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, total, err := txMessageRepo.ListByConversation(
		ctx,
		conversationID,
		viewerID,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, 0, err
	}

	if err := txMessageRepo.MarkConversationRead(ctx, conversationID, viewerID); err != nil {
		return nil, 0, err
	}

	for i := range messages {
		if messages[i].SenderID != viewerID {
			messages[i].IsRead = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (s *MessagingService) MarkRead(ctx context.Context, viewerID int64, conversationID int64) error {
	if _, err := s.conversationRepo.GetByIDForParticipant(ctx, conversationID, viewerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotParticipant
		}
		return err
	}

	return s.messageRepo.MarkConversationRead(ctx, conversationID, viewerID)
}

// SoftDelete hides the message from the caller only; the other
// participants' views are untouched.
func (s *MessagingService) SoftDelete(ctx context.Context, viewerID int64, messageID int64) error {
	if _, err := s.messageRepo.GetByIDForParticipant(ctx, messageID, viewerID); err != nil {
		return err
	}

	return s.messageRepo.SoftDelete(ctx, messageID, viewerID)
}

// Archive hides the message from the caller's thread view. Unlike
// SoftDelete it leaves the message searchable, so an archived thread
// can still be found later.
func (s *MessagingService) Archive(ctx context.Context, viewerID int64, messageID int64) error {
	if _, err := s.messageRepo.GetByIDForParticipant(ctx, messageID, viewerID); err != nil {
		return err
	}

	return s.messageRepo.Archive(ctx, messageID, viewerID)
}

func (s *MessagingService) Search(ctx context.Context, viewerID int64, query string) ([]models.Message, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinSearchQueryLength || len(query) > MaxSearchQueryLength {
		return nil, ErrInvalidInput
	}

	return s.messageRepo.Search(ctx, viewerID, query, searchResultLimit)
}

func (s *MessagingService) ListSent(ctx context.Context, userID int64) ([]models.Message, error) {
	return s.messageRepo.ListSentBySender(ctx, userID, sentListLimit)
}

func (s *MessagingService) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	return s.messageRepo.UnreadTotal(ctx, userID)
}

func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

func (s *MessagingService) deliver(
	ctx context.Context,
	senderID int64,
	recipientID int64,
	subject *string,
	content string,
) (*models.Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	conversation, err := txConversationRepo.GetOrCreateDirect(ctx, senderID, recipientID, subject)
	if err != nil {
		return nil, err
	}

	message, err := txMessageRepo.Create(ctx, repository.CreateMessageInput{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		RecipientID:    &recipientID,
		Subject:        subject,
		Content:        content,
	})
	if err != nil {
		return nil, err
	}

	if err := txConversationRepo.Touch(ctx, conversation.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return message, nil
}
