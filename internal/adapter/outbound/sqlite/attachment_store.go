package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// AttachmentStore is a SQLite-backed implementation of policy.AttachmentStore.
type AttachmentStore struct {
	db *sql.DB
}

// NewAttachmentStore creates an attachment store on top of an opened database.
func NewAttachmentStore(d *DB) *AttachmentStore {
	return &AttachmentStore{db: d.db}
}

const attachmentColumns = `id, policy_name, scope, teams, keys, models, created_at, updated_at`

// Create inserts a new attachment.
func (s *AttachmentStore) Create(ctx context.Context, a *policy.Attachment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PolicyName, a.Scope,
		marshalList(a.Teams), marshalList(a.Keys), marshalList(a.Models),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// Get retrieves an attachment by ID.
func (s *AttachmentStore) Get(ctx context.Context, id string) (*policy.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	return scanAttachment(row)
}

// Delete removes an attachment by ID.
func (s *AttachmentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", policy.ErrAttachmentNotFound, id)
	}
	return nil
}

// List returns all attachments ordered by creation time.
func (s *AttachmentStore) List(ctx context.Context) ([]policy.Attachment, error) {
	return s.query(ctx,
		`SELECT `+attachmentColumns+` FROM attachments ORDER BY created_at`)
}

// ListByPolicy returns attachments referencing the named policy.
func (s *AttachmentStore) ListByPolicy(ctx context.Context, policyName string) ([]policy.Attachment, error) {
	return s.query(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE policy_name = ? ORDER BY created_at`,
		policyName)
}

func (s *AttachmentStore) query(ctx context.Context, q string, args ...any) ([]policy.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var out []policy.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return out, nil
}

func scanAttachment(row rowScanner) (*policy.Attachment, error) {
	var (
		a                            policy.Attachment
		teamsRaw, keysRaw, modelsRaw string
		createdAt, updatedAt         string
	)
	err := row.Scan(
		&a.ID, &a.PolicyName, &a.Scope,
		&teamsRaw, &keysRaw, &modelsRaw,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrAttachmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan attachment: %w", err)
	}
	if a.Teams, err = unmarshalList(teamsRaw); err != nil {
		return nil, err
	}
	if a.Keys, err = unmarshalList(keysRaw); err != nil {
		return nil, err
	}
	if a.Models, err = unmarshalList(modelsRaw); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ policy.AttachmentStore = (*AttachmentStore)(nil)
