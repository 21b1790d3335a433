package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"partshub/internal/domain/entity"
	"partshub/internal/domain/repository"
	"partshub/pkg/errors"
)

// ConversationSchema creates the conversations table. Two participants per
// conversation, so unread and archive state live in per-role columns.
const ConversationSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                   TEXT PRIMARY KEY,
	buyer_id             TEXT NOT NULL,
	seller_id            TEXT NOT NULL,
	subject_kind         TEXT,
	subject_id           TEXT,
	subject_title        TEXT,
	last_message_preview TEXT NOT NULL DEFAULT '',
	last_activity_at     TIMESTAMPTZ NOT NULL,
	buyer_unread         INTEGER NOT NULL DEFAULT 0 CHECK (buyer_unread >= 0),
	seller_unread        INTEGER NOT NULL DEFAULT 0 CHECK (seller_unread >= 0),
	buyer_archived       BOOLEAN NOT NULL DEFAULT FALSE,
	seller_archived      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_buyer_idx  ON conversations (buyer_id, last_activity_at DESC);
CREATE INDEX IF NOT EXISTS conversations_seller_idx ON conversations (seller_id, last_activity_at DESC);
`

const conversationColumns = `id, buyer_id, seller_id, subject_kind, subject_id, subject_title,
	last_message_preview, last_activity_at, buyer_unread, seller_unread,
	buyer_archived, seller_archived, created_at, updated_at`

type postgresConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationRepository(pool *pgxpool.Pool) repository.ConversationRepository {
	return &postgresConversationRepository{pool: pool}
}

// MigratePostgres applies ConversationSchema.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ConversationSchema); err != nil {
		return errors.Internal("Failed to migrate conversations schema", err)
	}
	return nil
}

func (r *postgresConversationRepository) Create(ctx context.Context, c *entity.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	prepareMembers(c)

	var kind, subjectID, title *string
	if c.Subject != nil {
		kind, subjectID, title = &c.Subject.Kind, &c.Subject.ID, &c.Subject.Title
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, FALSE, $11, $12)`,
		c.ID, c.Participants.BuyerID, c.Participants.SellerID, kind, subjectID, title,
		c.LastMessagePreview, c.LastActivityAt,
		c.UnreadFor(c.Participants.BuyerID), c.UnreadFor(c.Participants.SellerID),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.New("CONFLICT", "Conversation already exists", 409, err)
		}
		return errors.Internal("Failed to create conversation", err)
	}
	return nil
}

func (r *postgresConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *postgresConversationRepository) FindBySubject(ctx context.Context, buyerID, sellerID, subjectID string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE buyer_id = $1 AND seller_id = $2 AND subject_id = $3
		LIMIT 1`, buyerID, sellerID, subjectID)
	return scanConversation(row)
}

func (r *postgresConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY last_activity_at DESC`, userID)
	if err != nil {
		return nil, errors.Internal("Failed to list conversations", err)
	}
	defer rows.Close()

	var out []*entity.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("Failed to iterate conversations", err)
	}
	return out, nil
}

func (r *postgresConversationRepository) ApplyMessage(ctx context.Context, id, senderID, preview string, at time.Time) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations SET
			buyer_unread         = buyer_unread  + CASE WHEN buyer_id  <> $2 THEN 1 ELSE 0 END,
			seller_unread        = seller_unread + CASE WHEN seller_id <> $2 THEN 1 ELSE 0 END,
			buyer_archived       = buyer_archived  AND buyer_id  = $2,
			seller_archived      = seller_archived AND seller_id = $2,
			last_message_preview = $3,
			last_activity_at     = GREATEST(last_activity_at, $4),
			updated_at           = now()
		WHERE id = $1
		RETURNING `+conversationColumns, id, senderID, preview, at)
	return scanConversation(row)
}

func (r *postgresConversationRepository) MarkRead(ctx context.Context, id, userID string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations SET
			buyer_unread  = CASE WHEN buyer_id  = $2 THEN 0 ELSE buyer_unread  END,
			seller_unread = CASE WHEN seller_id = $2 THEN 0 ELSE seller_unread END,
			updated_at    = now()
		WHERE id = $1
		RETURNING `+conversationColumns, id, userID)
	return scanConversation(row)
}

func (r *postgresConversationRepository) Archive(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET
			buyer_archived  = buyer_archived  OR buyer_id  = $2,
			seller_archived = seller_archived OR seller_id = $2,
			updated_at      = now()
		WHERE id = $1`, id, userID)
	if err != nil {
		return errors.Internal("Failed to archive conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("Conversation", nil)
	}
	return nil
}

func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var (
		c                             entity.Conversation
		kind, subjectID, title        *string
		buyerUnread, sellerUnread     int
		buyerArchived, sellerArchived bool
	)
	err := row.Scan(
		&c.ID, &c.Participants.BuyerID, &c.Participants.SellerID, &kind, &subjectID, &title,
		&c.LastMessagePreview, &c.LastActivityAt, &buyerUnread, &sellerUnread,
		&buyerArchived, &sellerArchived, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to read conversation", err)
	}

	if subjectID != nil {
		c.Subject = &entity.SubjectRef{ID: *subjectID}
		if kind != nil {
			c.Subject.Kind = *kind
		}
		if title != nil {
			c.Subject.Title = *title
		}
	}
	c.Members = []string{c.Participants.BuyerID, c.Participants.SellerID}
	c.UnreadCount = map[string]int{
		c.Participants.BuyerID:  buyerUnread,
		c.Participants.SellerID: sellerUnread,
	}
	if buyerArchived {
		c.ArchivedBy = append(c.ArchivedBy, c.Participants.BuyerID)
	}
	if sellerArchived {
		c.ArchivedBy = append(c.ArchivedBy, c.Participants.SellerID)
	}
	return &c, nil
}
