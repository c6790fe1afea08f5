package enrollments

import (
	"context"

	"github.com/keyxmakerx/crescendo/internal/plugins/programs"
)

// ProgramFinderAdapter wraps the programs service to satisfy ProgramFinder.
// Only this file references the programs package.
type ProgramFinderAdapter struct {
	service programs.ProgramService
}

// NewProgramFinderAdapter creates a new adapter around the programs service.
func NewProgramFinderAdapter(service programs.ProgramService) ProgramFinder {
	return &ProgramFinderAdapter{service: service}
}

// FindProgram looks up a program by ID, published or not.
func (a *ProgramFinderAdapter) FindProgram(ctx context.Context, id string) (*ProgramInfo, error) {
	p, err := a.service.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProgramInfo{
		ID:          p.ID,
		Name:        p.Name,
		Capacity:    p.Capacity,
		IsPublished: p.IsPublished,
	}, nil
}
