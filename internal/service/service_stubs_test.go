package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/calmtunes/chat-service/internal/config"
	"github.com/calmtunes/chat-service/internal/domain"
	"github.com/calmtunes/chat-service/internal/events"
	"github.com/calmtunes/chat-service/internal/repository"
)

// In-memory repository stubs mimicking the postgres implementations,
// including their pgx.ErrNoRows contract and the unique active pair
// constraint.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(r.users)+1)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	seq           int
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{conversations: make(map[string]*domain.Conversation)}
}

func (r *memConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conversations {
		if existing.Status == domain.ConversationStatusActive &&
			existing.Kind == conv.Kind &&
			existing.ParticipantLow.ID == conv.ParticipantLow.ID &&
			existing.ParticipantHigh.ID == conv.ParticipantHigh.ID {
			return repository.ErrDuplicateActiveConversation
		}
	}
	r.seq++
	conv.ID = fmt.Sprintf("conv-%d", r.seq)
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = conv.CreatedAt
	copied := *conv
	r.conversations[conv.ID] = &copied
	return nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *conv
	return &copied, nil
}

func (r *memConversationRepo) GetActiveByPair(_ context.Context, lowID, highID string, kind domain.ConversationKind) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.conversations {
		if conv.Status == domain.ConversationStatusActive &&
			conv.Kind == kind &&
			conv.ParticipantLow.ID == lowID &&
			conv.ParticipantHigh.ID == highID {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memConversationRepo) Close(_ context.Context, id, closedBy, reason string, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok || conv.Status != domain.ConversationStatusActive {
		return pgx.ErrNoRows
	}
	conv.Status = domain.ConversationStatusClosed
	conv.ClosedAt = &closedAt
	conv.ClosedBy = &closedBy
	conv.ClosureReason = &reason
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConversationRepo) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[id]
	if !ok {
		return pgx.ErrNoRows
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (r *memConversationRepo) ListActiveForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Conversation
	for _, conv := range r.conversations {
		if conv.Status != domain.ConversationStatusActive {
			continue
		}
		if conv.ParticipantLow.ID == userID || conv.ParticipantHigh.ID == userID {
			result = append(result, *conv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// racyConversationRepo simulates losing a create race: the lookup misses
// once so the caller proceeds to insert and hits the unique constraint.
type racyConversationRepo struct {
	*memConversationRepo
	hideOnce bool
}

func (r *racyConversationRepo) GetActiveByPair(ctx context.Context, lowID, highID string, kind domain.ConversationKind) (*domain.Conversation, error) {
	if r.hideOnce {
		r.hideOnce = false
		return nil, pgx.ErrNoRows
	}
	return r.memConversationRepo.GetActiveByPair(ctx, lowID, highID, kind)
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
	seq      int
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{}
}

func (r *memMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	// strictly increasing timestamps keep insertion order observable
	msg.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessageRepo) ListByConversation(_ context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			all = append(all, msg)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *memMessageRepo) Latest(_ context.Context, conversationID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ConversationID == conversationID {
			copied := r.messages[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memMessageRepo) MarkReadExcept(_ context.Context, conversationID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for i := range r.messages {
		if r.messages[i].ConversationID == conversationID &&
			r.messages[i].SenderID != readerID &&
			!r.messages[i].Read {
			r.messages[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (r *memMessageRepo) CountUnread(_ context.Context, conversationID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID && msg.SenderID != userID && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) byConversation(conversationID string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			result = append(result, msg)
		}
	}
	return result
}

type memNotificationRepo struct {
	mu            sync.Mutex
	notifications []domain.Notification
	seq           int
	failCreate    bool
	lastLimit     int
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{}
}

func (r *memNotificationRepo) Create(_ context.Context, notification *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errors.New("insert failed")
	}
	r.seq++
	notification.ID = fmt.Sprintf("notif-%d", r.seq)
	notification.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	if notification.Payload == nil {
		notification.Payload = map[string]any{}
	}
	r.notifications = append(r.notifications, *notification)
	return nil
}

func (r *memNotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var result []domain.Notification
	for i := len(r.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		if r.notifications[i].UserID == userID {
			result = append(result, r.notifications[i])
		}
	}
	return result, nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id && r.notifications[i].UserID == userID {
			r.notifications[i].IsRead = true
		}
	}
	return nil
}

func (r *memNotificationRepo) forUser(userID string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	return result
}

func (r *memNotificationRepo) ofType(userID string, typ domain.NotificationType) []domain.Notification {
	var result []domain.Notification
	for _, n := range r.forUser(userID) {
		if n.Type == typ {
			result = append(result, n)
		}
	}
	return result
}

// testEnv wires the services over in-memory repositories with the
// notification handlers subscribed, mirroring the production fanout.
type testEnv struct {
	users         *memUserRepo
	conversations repository.ConversationRepository
	rawConvs      *memConversationRepo
	messages      *memMessageRepo
	notifications *memNotificationRepo

	conversationSvc *ConversationService
	messageSvc      *MessageService
	notificationSvc *NotificationService
}

const testWelcome = "Welcome! Feel free to share what brings you here."

var (
	testPatient    = &domain.User{ID: "patient-1", Name: "Avery", Email: "avery@example.com", Role: domain.RolePatient, Approved: true, Status: domain.UserStatusActive}
	testPatient2   = &domain.User{ID: "patient-2", Name: "Blair", Email: "blair@example.com", Role: domain.RolePatient, Approved: true, Status: domain.UserStatusActive}
	testTherapist  = &domain.User{ID: "therapist-1", Name: "Dana", Email: "dana@example.com", Role: domain.RoleTherapist, Approved: true, Status: domain.UserStatusActive}
	testUnapproved = &domain.User{ID: "therapist-2", Name: "Eli", Email: "eli@example.com", Role: domain.RoleTherapist, Approved: false, Status: domain.UserStatusActive}
	testAdmin      = &domain.User{ID: "admin-1", Name: "Root", Email: "root@example.com", Role: domain.RoleAdmin, Approved: true, Status: domain.UserStatusActive}
	testChatConfig = config.ChatConfig{PageSize: 50, MaxPageSize: 200, WelcomeMessage: testWelcome}
)

func newTestEnv() *testEnv {
	rawConvs := newMemConversationRepo()
	return newTestEnvWith(rawConvs, rawConvs)
}

func newTestEnvWith(convRepo repository.ConversationRepository, rawConvs *memConversationRepo) *testEnv {
	env := &testEnv{
		users: newMemUserRepo(
			copyUser(testPatient),
			copyUser(testPatient2),
			copyUser(testTherapist),
			copyUser(testUnapproved),
			copyUser(testAdmin),
		),
		conversations: convRepo,
		rawConvs:      rawConvs,
		messages:      newMemMessageRepo(),
		notifications: newMemNotificationRepo(),
	}

	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()

	env.conversationSvc = NewConversationService(testChatConfig, ConversationDependencies{
		ConversationRepo: env.conversations,
		MessageRepo:      env.messages,
		UserRepo:         env.users,
		Dispatcher:       dispatcher,
	})
	env.messageSvc = NewMessageService(testChatConfig, MessageDependencies{
		ConversationRepo: env.conversations,
		MessageRepo:      env.messages,
		Dispatcher:       dispatcher,
	})
	env.notificationSvc = NewNotificationService(env.notifications, dispatcher, logger)
	env.notificationSvc.RegisterHandlers()
	return env
}

func copyUser(u *domain.User) *domain.User {
	copied := *u
	return &copied
}
