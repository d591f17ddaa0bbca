package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
)

type stubUsers struct {
	users map[string]*models.User
}

func (s *stubUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

type stubBlocks struct {
	blocked       bool
	err           error
	lastBlockerID int64
	lastBlockedID int64
}

func (s *stubBlocks) Exists(_ context.Context, blockerID int64, blockedID int64) (bool, error) {
	s.lastBlockerID = blockerID
	s.lastBlockedID = blockedID
	return s.blocked, s.err
}

type stubTemplates struct {
	template *models.Template
	err      error
}

func (s *stubTemplates) GetByID(_ context.Context, _ int64) (*models.Template, error) {
	return s.template, s.err
}

type stubNotifier struct {
	messages   []*models.Message
	recipients [][]int64
	alerts     []*models.CrisisAlert
}

func (s *stubNotifier) NotifyMessage(message *models.Message, recipientIDs []int64) {
	s.messages = append(s.messages, message)
	s.recipients = append(s.recipients, recipientIDs)
}

func (s *stubNotifier) NotifyAlert(alert *models.CrisisAlert) {
	s.alerts = append(s.alerts, alert)
}

func newTestMessagingService(users *stubUsers, blocks *stubBlocks, templates *stubTemplates) *MessagingService {
	// The pool stays nil: these tests cover the validation and block
	// paths that reject before any transaction starts.
	return NewMessagingService(nil, nil, nil, users, blocks, templates, &stubNotifier{})
}

func TestSendRejectsEmptyContent(t *testing.T) {
	service := newTestMessagingService(&stubUsers{}, &stubBlocks{}, &stubTemplates{})

	_, err := service.Send(context.Background(), 1, "dana", nil, "   ")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSendRejectsOversizedContent(t *testing.T) {
	service := newTestMessagingService(&stubUsers{}, &stubBlocks{}, &stubTemplates{})

	_, err := service.Send(context.Background(), 1, "dana", nil, strings.Repeat("a", MaxMessageLength+1))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSendRejectsOversizedSubject(t *testing.T) {
	service := newTestMessagingService(&stubUsers{}, &stubBlocks{}, &stubTemplates{})

	subject := strings.Repeat("s", MaxSubjectLength+1)
	_, err := service.Send(context.Background(), 1, "dana", &subject, "hello")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSendUnknownRecipient(t *testing.T) {
	service := newTestMessagingService(&stubUsers{users: map[string]*models.User{}}, &stubBlocks{}, &stubTemplates{})

	_, err := service.Send(context.Background(), 1, "ghost", nil, "hello")
	if !errors.Is(err, ErrRecipientUnknown) {
		t.Fatalf("expected ErrRecipientUnknown, got %v", err)
	}
}

func TestSendRejectsSelf(t *testing.T) {
	users := &stubUsers{users: map[string]*models.User{
		"me": {ID: 1, Username: "me"},
	}}
	service := newTestMessagingService(users, &stubBlocks{}, &stubTemplates{})

	_, err := service.Send(context.Background(), 1, "me", nil, "hello")
	if !errors.Is(err, ErrSelfAction) {
		t.Fatalf("expected ErrSelfAction, got %v", err)
	}
}

func TestSendBlockedChecksRecipientBlockList(t *testing.T) {
	users := &stubUsers{users: map[string]*models.User{
		"dana": {ID: 2, Username: "dana"},
	}}
	blocks := &stubBlocks{blocked: true}
	service := newTestMessagingService(users, blocks, &stubTemplates{})

	_, err := service.Send(context.Background(), 1, "dana", nil, "hello")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	// The recipient is the blocker; blocking is directional.
	if blocks.lastBlockerID != 2 || blocks.lastBlockedID != 1 {
		t.Fatalf("block lookup inverted: blocker=%d blocked=%d", blocks.lastBlockerID, blocks.lastBlockedID)
	}
}

func TestSendFromTemplatePrivateForeignForbidden(t *testing.T) {
	templates := &stubTemplates{
		template: &models.Template{ID: 9, OwnerID: 7, Name: "check-in", Content: "How was your week?", IsPublic: false},
	}
	service := newTestMessagingService(&stubUsers{}, &stubBlocks{}, templates)

	_, err := service.SendFromTemplate(context.Background(), 1, "dana", 9, nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestSendFromTemplateUnknownTemplate(t *testing.T) {
	service := newTestMessagingService(&stubUsers{}, &stubBlocks{}, &stubTemplates{err: pgx.ErrNoRows})

	_, err := service.SendFromTemplate(context.Background(), 1, "dana", 9, nil)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
}

func TestSearchQueryBounds(t *testing.T) {
	service := newTestMessagingService(&stubUsers{}, &stubBlocks{}, &stubTemplates{})

	if _, err := service.Search(context.Background(), 1, "a"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short query, got %v", err)
	}
	long := strings.Repeat("q", MaxSearchQueryLength+1)
	if _, err := service.Search(context.Background(), 1, long); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long query, got %v", err)
	}
}

func TestCreateGroupRequiresTwoMembers(t *testing.T) {
	users := &stubUsers{users: map[string]*models.User{
		"dana": {ID: 2, Username: "dana"},
	}}
	service := newTestMessagingService(users, &stubBlocks{}, &stubTemplates{})

	_, err := service.CreateGroup(context.Background(), 1, "Support circle", []string{"dana"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateGroupUnknownMember(t *testing.T) {
	users := &stubUsers{users: map[string]*models.User{
		"dana": {ID: 2, Username: "dana"},
	}}
	service := newTestMessagingService(users, &stubBlocks{}, &stubTemplates{})

	_, err := service.CreateGroup(context.Background(), 1, "Support circle", []string{"dana", "ghost"})
	if !errors.Is(err, ErrRecipientUnknown) {
		t.Fatalf("expected ErrRecipientUnknown, got %v", err)
	}
}
