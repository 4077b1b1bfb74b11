package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/railguard-io/railguard/internal/domain/policy"
)

// PolicyStore is a SQLite-backed implementation of policy.Store.
type PolicyStore struct {
	db *sql.DB
}

// NewPolicyStore creates a policy store on top of an opened database.
func NewPolicyStore(d *DB) *PolicyStore {
	return &PolicyStore{db: d.db}
}

const policyColumns = `id, name, inherit, description, guardrails_add, guardrails_remove, condition, created_at, updated_at, created_by, updated_by`

// Create inserts a new policy. Returns policy.ErrDuplicateName when a
// policy with the same name already exists.
func (s *PolicyStore) Create(ctx context.Context, p *policy.Policy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (`+policyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Inherit, p.Description,
		marshalList(p.GuardrailsAdd), marshalList(p.GuardrailsRemove),
		p.Condition,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
		p.CreatedBy, p.UpdatedBy,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", policy.ErrDuplicateName, p.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}
	return nil
}

// Get retrieves a policy by ID.
func (s *PolicyStore) Get(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	return scanPolicy(row)
}

// GetByName retrieves a policy by its unique name.
func (s *PolicyStore) GetByName(ctx context.Context, name string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE name = ?`, name)
	return scanPolicy(row)
}

// Update replaces the stored policy with the same ID.
func (s *PolicyStore) Update(ctx context.Context, p *policy.Policy) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET name = ?, inherit = ?, description = ?, guardrails_add = ?, guardrails_remove = ?, condition = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		p.Name, p.Inherit, p.Description,
		marshalList(p.GuardrailsAdd), marshalList(p.GuardrailsRemove),
		p.Condition,
		formatTime(p.UpdatedAt), p.UpdatedBy,
		p.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", policy.ErrDuplicateName, p.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", policy.ErrPolicyNotFound, p.ID)
	}
	return nil
}

// Delete removes a policy by ID.
func (s *PolicyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", policy.ErrPolicyNotFound, id)
	}
	return nil
}

// List returns all policies ordered by name.
func (s *PolicyStore) List(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+policyColumns+` FROM policies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policies: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var (
		p                  policy.Policy
		addRaw, removeRaw  string
		createdAt, updated string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Inherit, &p.Description,
		&addRaw, &removeRaw, &p.Condition,
		&createdAt, &updated, &p.CreatedBy, &p.UpdatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}
	if p.GuardrailsAdd, err = unmarshalList(addRaw); err != nil {
		return nil, err
	}
	if p.GuardrailsRemove, err = unmarshalList(removeRaw); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

var _ policy.Store = (*PolicyStore)(nil)
