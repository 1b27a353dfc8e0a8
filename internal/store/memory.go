package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyverse/chat-platform/internal/model"
)

// Memory is an in-memory implementation of all store interfaces, used in
// tests and local development. All operations are atomic under one lock,
// mirroring the single-document atomicity of the Postgres implementation.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]*model.User // internal id -> user
	byExtern  map[string]string      // normalized external id -> internal id
	convs     map[string]*convRow
	pairIndex map[string]string // "low|high" -> conversation id
	messages  map[string][]*msgRow
}

type convRow struct {
	id        string
	kind      model.Kind
	low, high string
	lastMsgID *string
	lastText  *string
	lastAt    *time.Time
	createdAt time.Time
	updatedAt time.Time
}

type msgRow struct {
	id         string
	convID     string
	senderID   string
	receiverID string
	text       string
	readBy     []string
	createdAt  time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]*model.User),
		byExtern:  make(map[string]string),
		convs:     make(map[string]*convRow),
		pairIndex: make(map[string]string),
		messages:  make(map[string][]*msgRow),
	}
}

var _ ConversationStore = (*Memory)(nil)
var _ MessageStore = (*Memory)(nil)
var _ UserStore = (*Memory)(nil)

func (m *Memory) Get(ctx context.Context, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.convs[model.NormalizeID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return row.toModel(), nil
}

func (m *Memory) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := model.NormalizeID(userID)
	summaries := make([]model.ConversationSummary, 0)
	for _, row := range m.convs {
		if row.low != want && row.high != want {
			continue
		}
		summaries = append(summaries, m.summarizeLocked(row, want))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (m *Memory) FindOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, bool, error) {
	low, high := model.CanonicalPair(userA, userB)
	if low == "" || low == high {
		return nil, false, ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := low + "|" + high
	if id, ok := m.pairIndex[key]; ok {
		return m.convs[id].toModel(), false, nil
	}

	now := time.Now().UTC()
	row := &convRow{
		id:        uuid.Must(uuid.NewV7()).String(),
		kind:      model.KindDirect,
		low:       low,
		high:      high,
		createdAt: now,
		updatedAt: now,
	}
	m.convs[row.id] = row
	m.pairIndex[key] = row.id
	return row.toModel(), true, nil
}

func (m *Memory) RecordLastMessage(ctx context.Context, conversationID, messageID, text string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.convs[model.NormalizeID(conversationID)]
	if !ok {
		return ErrNotFound
	}
	row.lastMsgID = &messageID
	row.lastText = &text
	row.lastAt = &at
	row.updatedAt = at
	return nil
}

// Delete removes the conversation row only; its messages stay retrievable.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.NormalizeID(id)
	row, ok := m.convs[key]
	if !ok {
		return ErrNotFound
	}
	delete(m.convs, key)
	delete(m.pairIndex, row.low+"|"+row.high)
	return nil
}

func (m *Memory) Append(ctx context.Context, conversationID, senderID, receiverID, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.convs[model.NormalizeID(conversationID)]
	if !ok {
		return nil, ErrNotFound
	}

	receiver := model.NormalizeID(receiverID)
	if receiver != conv.low && receiver != conv.high {
		return nil, ErrValidation
	}

	sender := model.NormalizeID(senderID)
	row := &msgRow{
		id:         uuid.Must(uuid.NewV7()).String(),
		convID:     conv.id,
		senderID:   sender,
		receiverID: receiver,
		text:       text,
		readBy:     []string{sender},
		createdAt:  time.Now().UTC(),
	}
	m.messages[conv.id] = append(m.messages[conv.id], row)
	return m.resolveLocked(row), nil
}

func (m *Memory) ListForConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.messages[model.NormalizeID(conversationID)]
	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, *m.resolveLocked(row))
	}
	return out, nil
}

func (m *Memory) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, ErrValidation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	convID := model.NormalizeID(conversationID)
	reader := model.NormalizeID(readerID)

	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[model.NormalizeID(id)] = struct{}{}
	}

	var changed int64
	for _, row := range m.messages[convID] {
		if _, ok := wanted[row.id]; !ok {
			continue
		}
		if row.receiverID != reader || containsID(row.readBy, reader) {
			continue
		}
		row.readBy = append(row.readBy, reader)
		changed++
	}
	return changed, nil
}

func (m *Memory) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byExtern[model.NormalizeID(externalID)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[model.NormalizeID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (m *Memory) Create(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	cp := *u
	cp.ID = model.NormalizeID(cp.ID)
	m.users[cp.ID] = &cp
	m.byExtern[model.NormalizeID(cp.ExternalID)] = cp.ID
	return nil
}

func (r *convRow) toModel() *model.Conversation {
	return &model.Conversation{
		ID:           r.id,
		Kind:         r.kind,
		Participants: []string{r.low, r.high},
		LastMessage:  r.lastMsgID,
		LastText:     r.lastText,
		LastAt:       r.lastAt,
		CreatedAt:    r.createdAt,
		UpdatedAt:    r.updatedAt,
	}
}

func (m *Memory) summarizeLocked(row *convRow, viewer string) model.ConversationSummary {
	s := model.ConversationSummary{
		ID:              row.id,
		LastMessage:     row.lastText,
		LastMessageTime: row.lastAt,
		UpdatedAt:       row.updatedAt,
		Kind:            row.kind,
	}

	counterpart := row.low
	if counterpart == viewer {
		counterpart = row.high
	}
	if counterpart != viewer {
		if u, ok := m.users[counterpart]; ok {
			name := u.Username
			ext := u.ExternalID
			s.Name = &name
			s.OtherUserID = &ext
		}
	}

	for _, p := range []string{row.low, row.high} {
		if u, ok := m.users[p]; ok {
			s.Participants = append(s.Participants, u.ExternalID)
		} else {
			s.Participants = append(s.Participants, p)
		}
	}
	return s
}

func (m *Memory) resolveLocked(row *msgRow) *model.Message {
	msg := &model.Message{
		ID:             row.id,
		ConversationID: row.convID,
		Text:           row.text,
		ReadBy:         append([]string(nil), row.readBy...),
		CreatedAt:      row.createdAt,
	}
	msg.Sender = m.refLocked(row.senderID)
	msg.Receiver = m.refLocked(row.receiverID)
	return msg
}

func (m *Memory) refLocked(id string) model.UserRef {
	if u, ok := m.users[id]; ok {
		return u.Ref()
	}
	return model.UserRef{ID: id}
}

func containsID(ids []string, want string) bool {
	for _, id := range ids {
		if model.NormalizeID(id) == want {
			return true
		}
	}
	return false
}
