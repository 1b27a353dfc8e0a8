package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyverse/chat-platform/internal/model"
)

// Postgres implements the store interfaces over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ ConversationStore = (*Postgres)(nil)
var _ MessageStore = (*Postgres)(nil)
var _ UserStore = (*Postgres)(nil)

// Connect creates a pgx pool from the DSN and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the messaging tables if they do not exist. Messages
// deliberately carry no foreign key to conversations: conversation deletion
// must not cascade, and orphaned messages stay retrievable by id.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id          uuid PRIMARY KEY,
			external_id text NOT NULL UNIQUE,
			username    text NOT NULL,
			email       text NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id                uuid PRIMARY KEY,
			kind              text NOT NULL DEFAULT 'direct',
			participant_low   uuid NOT NULL,
			participant_high  uuid NOT NULL,
			last_message_id   uuid,
			last_message_text text,
			last_message_at   timestamptz,
			created_at        timestamptz NOT NULL DEFAULT now(),
			updated_at        timestamptz NOT NULL DEFAULT now()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS conversations_direct_pair
			ON conversations (participant_low, participant_high)
			WHERE kind = 'direct';

		CREATE TABLE IF NOT EXISTS messages (
			id              uuid PRIMARY KEY,
			conversation_id uuid NOT NULL,
			sender_id       uuid NOT NULL,
			receiver_id     uuid NOT NULL,
			body            text NOT NULL,
			read_by         uuid[] NOT NULL DEFAULT '{}',
			created_at      timestamptz NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS messages_conversation_created
			ON messages (conversation_id, created_at);
	`)
	return err
}

func (p *Postgres) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	var low, high string
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, kind, participant_low::text, participant_high::text,
		       last_message_id::text, last_message_text, last_message_at,
		       created_at, updated_at
		FROM conversations
		WHERE id = $1::uuid
	`, model.NormalizeID(id)).Scan(
		&c.ID, &c.Kind, &low, &high,
		&c.LastMessage, &c.LastText, &c.LastAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Participants = []string{low, high}
	return &c, nil
}

func (p *Postgres) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	me := model.NormalizeID(userID)
	rows, err := p.pool.Query(ctx, `
		SELECT c.id::text, c.kind, c.last_message_text, c.last_message_at, c.updated_at,
		       c.participant_low::text, c.participant_high::text,
		       ua.external_id, ua.username, ub.external_id, ub.username
		FROM conversations c
		LEFT JOIN users ua ON ua.id = c.participant_low
		LEFT JOIN users ub ON ub.id = c.participant_high
		WHERE c.participant_low = $1::uuid OR c.participant_high = $1::uuid
		ORDER BY c.updated_at DESC
	`, me)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]model.ConversationSummary, 0)
	for rows.Next() {
		var (
			s                 model.ConversationSummary
			low, high         string
			lowExt, lowName   *string
			highExt, highName *string
		)
		if err := rows.Scan(
			&s.ID, &s.Kind, &s.LastMessage, &s.LastMessageTime, &s.UpdatedAt,
			&low, &high,
			&lowExt, &lowName, &highExt, &highName,
		); err != nil {
			return nil, err
		}

		counterExt, counterName := highExt, highName
		if model.NormalizeID(high) == me {
			counterExt, counterName = lowExt, lowName
		}
		s.Name = counterName
		s.OtherUserID = counterExt

		for _, ext := range []*string{lowExt, highExt} {
			if ext != nil {
				s.Participants = append(s.Participants, *ext)
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (p *Postgres) FindOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, bool, error) {
	low, high := model.CanonicalPair(userA, userB)
	if low == "" || low == high {
		return nil, false, ErrValidation
	}

	var id string
	err := p.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, kind, participant_low, participant_high)
		VALUES ($1::uuid, 'direct', $2::uuid, $3::uuid)
		ON CONFLICT (participant_low, participant_high) WHERE kind = 'direct'
		DO NOTHING
		RETURNING id::text
	`, uuid.Must(uuid.NewV7()).String(), low, high).Scan(&id)

	switch {
	case err == nil:
		conv, err := p.Get(ctx, id)
		return conv, true, err
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race or the pair already exists; fetch the winner.
		err = p.pool.QueryRow(ctx, `
			SELECT id::text FROM conversations
			WHERE kind = 'direct' AND participant_low = $1::uuid AND participant_high = $2::uuid
		`, low, high).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		if err != nil {
			return nil, false, err
		}
		conv, err := p.Get(ctx, id)
		return conv, false, err
	default:
		return nil, false, err
	}
}

func (p *Postgres) RecordLastMessage(ctx context.Context, conversationID, messageID, text string, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2::uuid, last_message_text = $3,
		    last_message_at = $4, updated_at = $4
		WHERE id = $1::uuid
	`, model.NormalizeID(conversationID), messageID, text, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1::uuid`, model.NormalizeID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, conversationID, senderID, receiverID, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrValidation
	}

	var low, high string
	err := p.pool.QueryRow(ctx, `
		SELECT participant_low::text, participant_high::text
		FROM conversations WHERE id = $1::uuid
	`, model.NormalizeID(conversationID)).Scan(&low, &high)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	receiver := model.NormalizeID(receiverID)
	if receiver != model.NormalizeID(low) && receiver != model.NormalizeID(high) {
		return nil, ErrValidation
	}

	sender := model.NormalizeID(senderID)
	msg := &model.Message{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Text:   text,
		ReadBy: []string{sender},
	}
	err = p.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, read_by)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, ARRAY[$3::uuid])
		RETURNING conversation_id::text, created_at
	`, msg.ID, model.NormalizeID(conversationID), sender, receiver, text).Scan(
		&msg.ConversationID, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	refs, err := p.userRefs(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}
	msg.Sender = refs[sender]
	msg.Receiver = refs[receiver]
	return msg, nil
}

func (p *Postgres) ListForConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT m.id::text, m.conversation_id::text, m.body, m.created_at,
		       array(SELECT r::text FROM unnest(m.read_by) AS r),
		       m.sender_id::text, s.external_id, s.username,
		       m.receiver_id::text, t.external_id, t.username
		FROM messages m
		LEFT JOIN users s ON s.id = m.sender_id
		LEFT JOIN users t ON t.id = m.receiver_id
		WHERE m.conversation_id = $1::uuid
		ORDER BY m.created_at ASC
	`, model.NormalizeID(conversationID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var (
			msg                   model.Message
			senderExt, senderName *string
			receiverExt, recvName *string
		)
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Text, &msg.CreatedAt, &msg.ReadBy,
			&msg.Sender.ID, &senderExt, &senderName,
			&msg.Receiver.ID, &receiverExt, &recvName,
		); err != nil {
			return nil, err
		}
		fillRef(&msg.Sender, senderExt, senderName)
		fillRef(&msg.Receiver, receiverExt, recvName)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (p *Postgres) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, ErrValidation
	}
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, model.NormalizeID(id))
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE messages
		SET read_by = array_append(read_by, $3::uuid)
		WHERE id = ANY($1::uuid[])
		  AND conversation_id = $2::uuid
		  AND receiver_id = $3::uuid
		  AND NOT (read_by @> ARRAY[$3::uuid])
	`, ids, model.NormalizeID(conversationID), model.NormalizeID(readerID))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return p.getUser(ctx,
		`SELECT id::text, external_id, username, email FROM users WHERE external_id = $1`,
		model.NormalizeID(externalID))
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*model.User, error) {
	return p.getUser(ctx,
		`SELECT id::text, external_id, username, email FROM users WHERE id = $1::uuid`,
		model.NormalizeID(id))
}

func (p *Postgres) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, external_id, username, email)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET external_id = EXCLUDED.external_id,
		    username = EXCLUDED.username,
		    email = EXCLUDED.email
	`, model.NormalizeID(u.ID), u.ExternalID, u.Username, u.Email)
	return err
}

func (p *Postgres) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var u model.User
	err := p.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.ExternalID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) userRefs(ctx context.Context, ids ...string) (map[string]model.UserRef, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, external_id, username FROM users WHERE id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]model.UserRef, len(ids))
	for rows.Next() {
		var ref model.UserRef
		if err := rows.Scan(&ref.ID, &ref.ExternalID, &ref.Username); err != nil {
			return nil, err
		}
		refs[model.NormalizeID(ref.ID)] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := refs[id]; !ok {
			refs[id] = model.UserRef{ID: id}
		}
	}
	return refs, nil
}

func fillRef(ref *model.UserRef, ext, name *string) {
	if ext != nil {
		ref.ExternalID = *ext
	}
	if name != nil {
		ref.Username = *name
	}
}
