package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/corevaulthq/iam-core/pkg/rbacrole"
)

// Roles implements rbacrole.Store.
type Roles struct{ base }

type roleRow struct {
	ID             uuid.UUID                            `db:"id"`
	Code           string                               `db:"code"`
	Name           string                               `db:"name"`
	Description    string                               `db:"description"`
	ScopeTemplates jsonColumn[[]rbacrole.ScopeTemplate] `db:"scope_templates"`
	CreatedAt      time.Time                            `db:"created_at"`
	UpdatedAt      time.Time                            `db:"updated_at"`
}

func (r roleRow) toDomain() rbacrole.Role {
	return rbacrole.Role{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Description:    r.Description,
		IsSystem:       false,
		ScopeTemplates: r.ScopeTemplates.Value,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func roleRowOf(r rbacrole.Role) roleRow {
	return roleRow{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Description:    r.Description,
		ScopeTemplates: jsonOf(r.ScopeTemplates),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const selectRoleColumns = `id, code, name, description, scope_templates, created_at, updated_at`

// GetByID implements rbacrole.Store. Only non-system roles are ever
// persisted here; system roles live compiled into the binary and never
// reach this store.
func (s *Roles) GetByID(ctx context.Context, id uuid.UUID) (rbacrole.Role, error) {
	var row roleRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectRoleColumns+` FROM roles WHERE id = $1`, id)
	if err != nil {
		return rbacrole.Role{}, mapNoRows(err, rbacrole.ErrNotFound)
	}
	return row.toDomain(), nil
}

// GetByCode implements rbacrole.Store.
func (s *Roles) GetByCode(ctx context.Context, code string) (rbacrole.Role, error) {
	var row roleRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectRoleColumns+` FROM roles WHERE code = $1`, code)
	if err != nil {
		return rbacrole.Role{}, mapNoRows(err, rbacrole.ErrNotFound)
	}
	return row.toDomain(), nil
}

// GetByIDs implements rbacrole.Store, used by the effective-scope resolver
// to batch-load the roles named by a user's assignments.
func (s *Roles) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]rbacrole.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+selectRoleColumns+` FROM roles WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: build role batch query: %w", err)
	}
	query = s.db.Rebind(query)
	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("postgres: list roles by id: %w", err)
	}
	out := make([]rbacrole.Role, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// List implements rbacrole.Store, returning stored roles ordered by code.
func (s *Roles) List(ctx context.Context) ([]rbacrole.Role, error) {
	var rows []roleRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+selectRoleColumns+` FROM roles ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list roles: %w", err)
	}
	out := make([]rbacrole.Role, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Save implements rbacrole.Store as an upsert keyed on id.
func (s *Roles) Save(ctx context.Context, r rbacrole.Role) error {
	row := roleRowOf(r)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO roles (id, code, name, description, scope_templates, created_at, updated_at)
		VALUES (:id, :code, :name, :description, :scope_templates, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			scope_templates = EXCLUDED.scope_templates,
			updated_at = EXCLUDED.updated_at`, row)
	if err != nil {
		logErr(ctx, "save role", err)
		return fmt.Errorf("postgres: save role: %w", err)
	}
	return nil
}

// Delete implements rbacrole.Store.
func (s *Roles) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete role: %w", err)
	}
	return nil
}
