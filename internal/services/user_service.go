package services

import (
	"context"
	"fmt"

	"direct-chat/internal/database"
	"direct-chat/internal/models"
)

// PresenceChecker answers whether a user currently holds a live connection.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

type UserService struct {
	users    database.UserRepository
	presence PresenceChecker
}

func NewUserService(users database.UserRepository, presence PresenceChecker) *UserService {
	return &UserService{users: users, presence: presence}
}

// ListKnownUsers lists every other account with its current presence, so a
// freshly connected client can learn who is online before any userStatus
// event arrives.
func (s *UserService) ListKnownUsers(ctx context.Context, viewerID string) ([]*models.KnownUser, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	known := make([]*models.KnownUser, 0, len(users))
	for _, u := range users {
		if u.ID == viewerID {
			continue
		}
		known = append(known, &models.KnownUser{User: *u, IsOnline: s.presence.IsOnline(u.ID)})
	}
	return known, nil
}
