package services

import (
	"context"

	"github.com/older-wiser/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Count(ctx context.Context) (int, error)
	CountByMembership(ctx context.Context, level types.Membership) (int, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	events *EventPublisher
}

func NewUserService(repo UserRepository, events *EventPublisher) *UserService {
	return &UserService{repo: repo, events: events}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// Register creates an account with sane defaults for role and membership.
func (s *UserService) Register(ctx context.Context, user types.User) (types.User, error) {
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if user.MembershipLevel == "" {
		user.MembershipLevel = types.MembershipFree
	}
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.events.Publish(ctx, EventUserRegistered, userEvent(created))
	return created, nil
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

func (s *UserService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *UserService) CountByMembership(ctx context.Context, level types.Membership) (int, error) {
	return s.repo.CountByMembership(ctx, level)
}
