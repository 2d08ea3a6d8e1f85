package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lms-quiz-service/internal/domain"
)

// ModuleResolver maps module ids to their type and content reference.
type ModuleResolver struct {
	pool *pgxpool.Pool
}

func NewModuleResolver(pool *pgxpool.Pool) *ModuleResolver {
	return &ModuleResolver{pool: pool}
}

func (r *ModuleResolver) ResolveModule(ctx context.Context, moduleID string) (domain.Module, error) {
	module := domain.Module{ID: moduleID}
	err := r.pool.QueryRow(ctx,
		`SELECT module_type, content_id FROM modules WHERE id=$1`, moduleID,
	).Scan(&module.Type, &module.ContentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Module{}, domain.ErrModuleNotFound
	}
	if err != nil {
		return domain.Module{}, fmt.Errorf("%w: resolve module: %v", domain.ErrPersistence, err)
	}
	return module, nil
}
