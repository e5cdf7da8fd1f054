package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

// Store persists notifications. Each call stands alone; nothing spans a
// transaction.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	// Populate fills the display fields of the sender, project and task.
	Populate(ctx context.Context, n *Notification) error
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	query := `
		INSERT INTO notifications (recipient_id, sender_id, type, title, message, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, read, created_at`
	return r.db.QueryRowContext(ctx, query, n.RecipientID, n.SenderID, string(n.Type), n.Title, n.Message, string(data)).
		Scan(&n.ID, &n.Read, &n.CreatedAt)
}

func (r *Repository) Populate(ctx context.Context, n *Notification) error {
	query := `
		SELECT u.username, u.email, p.name, t.title
		FROM users u
		LEFT JOIN projects p ON p.id = $2
		LEFT JOIN tasks t ON t.id = $3
		WHERE u.id = $1`

	var username, email string
	var projectName, taskTitle sql.NullString
	err := r.db.QueryRowContext(ctx, query, n.SenderID, n.Data.ProjectID, n.Data.TaskID).
		Scan(&username, &email, &projectName, &taskTitle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sender %s: %w", n.SenderID, sql.ErrNoRows)
		}
		return err
	}

	n.Sender = &SenderRef{ID: n.SenderID, Username: username, Email: email}
	if projectName.Valid && n.Data.ProjectID != nil {
		n.Project = &ProjectRef{ID: *n.Data.ProjectID, Name: projectName.String}
	}
	if taskTitle.Valid && n.Data.TaskID != nil {
		n.Task = &TaskRef{ID: *n.Data.TaskID, Title: taskTitle.String}
	}
	return nil
}

func (r *Repository) ListForRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error) {
	query := `
		SELECT n.id, n.recipient_id, n.sender_id, n.type, n.title, n.message, n.data, n.read, n.created_at,
		       u.username, u.email
		FROM notifications n
		JOIN users u ON u.id = n.sender_id
		WHERE n.recipient_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var data []byte
		sender := &SenderRef{}
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Message, &data, &n.Read, &n.CreatedAt,
			&sender.Username, &sender.Email); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("decode data of %s: %w", n.ID, err)
		}
		sender.ID = n.SenderID
		n.Sender = sender
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE"
	err := r.db.QueryRowContext(ctx, query, recipientID).Scan(&count)
	return count, err
}

func (r *Repository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	query := "UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2"
	res, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	query := "UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND read = FALSE"
	res, err := r.db.ExecContext(ctx, query, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
