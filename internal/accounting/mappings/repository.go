package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMappingNotFound indicates no override exists for the key.
var ErrMappingNotFound = errors.New("accounting: account mapping not found")

type Repository interface {
	Get(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves a tenant override for the specified key.
func (r *repository) Get(ctx context.Context, tenantID int64, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("accounting: module and key required")
	}
	var mapping AccountMapping
	err := r.db.QueryRow(ctx, `SELECT tenant_id, module, key, account_code, created_at, updated_at
FROM account_mappings WHERE tenant_id=$1 AND module=$2 AND key=$3`, tenantID, strings.ToUpper(module), normalizeKey(key)).
		Scan(&mapping.TenantID, &mapping.Module, &mapping.Key, &mapping.AccountCode, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

// Resolver answers account codes from tenant overrides first and the map second.
type Resolver struct {
	defaults Map
	repo     Repository
}

// NewResolver builds a resolver. repo may be nil to use the map alone.
func NewResolver(defaults Map, repo Repository) *Resolver {
	return &Resolver{defaults: defaults, repo: repo}
}

// Code returns the account code for module and key. The key's own override wins over the module
// default override, which wins over the map.
func (r *Resolver) Code(ctx context.Context, tenantID int64, module, key string) (string, bool, error) {
	if r.repo != nil {
		for _, k := range []string{key, KeyDefault} {
			m, err := r.repo.Get(ctx, tenantID, module, k)
			if err == nil {
				return m.AccountCode, true, nil
			}
			if !errors.Is(err, ErrMappingNotFound) {
				return "", false, err
			}
		}
	}
	code, ok := r.defaults.Code(module, key)
	return code, ok, nil
}
