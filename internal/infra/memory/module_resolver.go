package memory

import (
	"context"

	"lms-quiz-service/internal/domain"
)

// StaticModuleResolver resolves module ids from an in-memory map (tests and
// demo mode). Production resolution lives in the postgres package.
type StaticModuleResolver struct {
	modules map[string]domain.Module
}

func NewStaticModuleResolver(modules map[string]domain.Module) *StaticModuleResolver {
	return &StaticModuleResolver{modules: modules}
}

func (r *StaticModuleResolver) ResolveModule(_ context.Context, moduleID string) (domain.Module, error) {
	if module, ok := r.modules[moduleID]; ok {
		return module, nil
	}
	return domain.Module{}, domain.ErrModuleNotFound
}
