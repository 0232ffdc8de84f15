package dispositions

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("dispositions: not found")
	ErrInvalidArgument = errors.New("dispositions: invalid argument")
)

// Repository is the persistence contract for disposition reference data.
// Implementations must enforce workspace filtering.
type Repository interface {
	Get(ctx context.Context, workspaceID, id string) (Disposition, error)
	List(ctx context.Context, workspaceID string) ([]Disposition, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Get returns the disposition only if it belongs to the workspace.
func (s *Service) Get(ctx context.Context, workspaceID, id string) (Disposition, error) {
	if workspaceID == "" || id == "" {
		return Disposition{}, ErrInvalidArgument
	}
	if s.repo == nil {
		return Disposition{}, errors.New("dispositions: repository not configured")
	}
	return s.repo.Get(ctx, workspaceID, id)
}

func (s *Service) List(ctx context.Context, workspaceID string) ([]Disposition, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if s.repo == nil {
		return nil, errors.New("dispositions: repository not configured")
	}
	return s.repo.List(ctx, workspaceID)
}
