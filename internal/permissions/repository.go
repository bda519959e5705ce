package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgxconn "github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository on PostgreSQL. Grant layers are stored
// as JSONB documents on one row per user; Save does an optimistic CAS on the
// version column.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Get fetches a profile by user id.
func (r *PGRepository) Get(ctx context.Context, userID string) (*UserProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, role, modules, custom_permissions, version, last_updated, COALESCE(updated_by, '')
		FROM permission_profiles WHERE user_id = $1`, userID)

	var profile UserProfile
	var modules, custom []byte
	err := row.Scan(&profile.UserID, &profile.Role, &modules, &custom, &profile.Version, &profile.LastUpdated, &profile.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
		}
		return nil, err
	}
	if err := json.Unmarshal(modules, &profile.Modules); err != nil {
		return nil, fmt.Errorf("permissions: decode modules: %w", err)
	}
	if err := json.Unmarshal(custom, &profile.CustomGrants); err != nil {
		return nil, fmt.Errorf("permissions: decode custom grants: %w", err)
	}
	return &profile, nil
}

// Create inserts a fresh profile row.
func (r *PGRepository) Create(ctx context.Context, profile *UserProfile) error {
	modules, custom, err := encodeLayers(profile)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO permission_profiles (user_id, role, modules, custom_permissions, version, last_updated, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.UserID, string(profile.Role), modules, custom, profile.Version, profile.LastUpdated, profile.UpdatedBy)
	if err != nil {
		var pgErr *pgxconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %q", ErrProfileExists, profile.UserID)
		}
		return err
	}
	return nil
}

// Save replaces the stored profile iff the version still matches, then bumps
// profile.Version to the stored value. A mismatch yields ErrVersionConflict
// so the caller re-reads and retries; a missing row yields ErrUserNotFound.
func (r *PGRepository) Save(ctx context.Context, profile *UserProfile) error {
	modules, custom, err := encodeLayers(profile)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE permission_profiles
		SET role = $2, modules = $3, custom_permissions = $4, version = version + 1, last_updated = $5, updated_by = $6
		WHERE user_id = $1 AND version = $7`,
		profile.UserID, string(profile.Role), modules, custom, profile.LastUpdated, profile.UpdatedBy, profile.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permission_profiles WHERE user_id = $1)`, profile.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %q", ErrUserNotFound, profile.UserID)
		}
		return fmt.Errorf("%w: %q", ErrVersionConflict, profile.UserID)
	}
	profile.Version++
	return nil
}

// ListUserIDsWithCustomGrants returns users carrying at least one custom
// grant. The expiry sweep loads each profile and filters with the pure
// evaluation helpers rather than pushing time arithmetic into SQL.
func (r *PGRepository) ListUserIDsWithCustomGrants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM permission_profiles
		WHERE jsonb_array_length(custom_permissions) > 0
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeLayers(profile *UserProfile) ([]byte, []byte, error) {
	mods := profile.Modules
	if mods == nil {
		mods = []ModuleGrant{}
	}
	custom := profile.CustomGrants
	if custom == nil {
		custom = []CustomGrant{}
	}
	modules, err := json.Marshal(mods)
	if err != nil {
		return nil, nil, fmt.Errorf("permissions: encode modules: %w", err)
	}
	customJSON, err := json.Marshal(custom)
	if err != nil {
		return nil, nil, fmt.Errorf("permissions: encode custom grants: %w", err)
	}
	return modules, customJSON, nil
}

var _ Repository = (*PGRepository)(nil)

// SQLTemplateStore resolves templates from the permission_templates table,
// falling back to the built-ins for names not stored there.
type SQLTemplateStore struct {
	pool *pgxpool.Pool
}

// NewSQLTemplateStore constructs the store.
func NewSQLTemplateStore(pool *pgxpool.Pool) *SQLTemplateStore {
	return &SQLTemplateStore{pool: pool}
}

// Get resolves a template by name.
func (s *SQLTemplateStore) Get(ctx context.Context, name string) (Template, error) {
	row := s.pool.QueryRow(ctx, `SELECT name, label, modules FROM permission_templates WHERE name = $1`, name)
	var t Template
	var modules []byte
	err := row.Scan(&t.Name, &t.Label, &modules)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			for _, builtin := range BuiltinTemplates() {
				if builtin.Name == name {
					return builtin, nil
				}
			}
			return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return Template{}, err
	}
	if err := json.Unmarshal(modules, &t.Modules); err != nil {
		return Template{}, fmt.Errorf("permissions: decode template: %w", err)
	}
	return t, nil
}

// List returns admin-defined templates merged with the built-ins.
func (s *SQLTemplateStore) List(ctx context.Context) ([]Template, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, label, modules FROM permission_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string]Template)
	for _, builtin := range BuiltinTemplates() {
		byName[builtin.Name] = builtin
	}
	for rows.Next() {
		var t Template
		var modules []byte
		if err := rows.Scan(&t.Name, &t.Label, &modules); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(modules, &t.Modules); err != nil {
			return nil, fmt.Errorf("permissions: decode template: %w", err)
		}
		byName[t.Name] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sortTemplates(out)
	return out, nil
}

var _ TemplateStore = (*SQLTemplateStore)(nil)
