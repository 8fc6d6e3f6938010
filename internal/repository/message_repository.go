package repository

import (
	"fmt"
	"time"

	"github.com/classpage/backend/internal/database"
	"github.com/classpage/backend/internal/models"
)

// MaxHistoryLimit caps how many rows a single history query may return.
// Callers that key caches by limit clamp with it too, so every oversized
// request maps to the same query and the same cache entry.
const MaxHistoryLimit = 200

type MessageRepository struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a chat message. The database assigns the timestamp so that
// ordering is decided by the server clock, not the sender's; the normalized
// value is written back into the message.
func (r *MessageRepository) Create(message *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (external_id, name, photo_url, text, image_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING timestamp
	`

	err := r.db.QueryRow(
		query,
		message.ExternalID,
		message.Name,
		message.PhotoURL,
		message.Text,
		message.ImageData,
	).Scan(&message.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}

	return nil
}

// ListRecent returns the newest non-deleted messages, oldest first.
func (r *MessageRepository) ListRecent(limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	query := `
		SELECT external_id, name, photo_url, text, image_data, is_deleted, timestamp
		FROM (
			SELECT external_id, name, photo_url, text, image_data, is_deleted, timestamp
			FROM chat_messages
			WHERE is_deleted = FALSE
			ORDER BY timestamp DESC
			LIMIT $1
		) recent
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(
			&m.ExternalID,
			&m.Name,
			&m.PhotoURL,
			&m.Text,
			&m.ImageData,
			&m.IsDeleted,
			&m.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// HasRecentMessage reports whether a non-deleted message with the given
// sender and text was persisted within the window. Used as the welcome
// duplicate check when Redis is unavailable; best effort, races tolerated.
func (r *MessageRepository) HasRecentMessage(name, text string, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_messages
			WHERE name = $1 AND text = $2 AND is_deleted = FALSE
			  AND timestamp > NOW() - $3::interval
		)
	`

	var exists bool
	err := r.db.QueryRow(query, name, text, fmt.Sprintf("%d seconds", int(window.Seconds()))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent messages: %w", err)
	}
	return exists, nil
}
