package mocks

import (
	"context"
	"sync"

	"stays/entity"
)

type UsersRepository struct {
	mu    sync.Mutex
	users map[string]entity.User
}

func NewUsersRepository(users ...entity.User) *UsersRepository {
	r := &UsersRepository{users: make(map[string]entity.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}

	return r
}

func (r *UsersRepository) Get(ctx context.Context, userID string) (entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return entity.User{}, entity.ErrNotFound
	}

	return u, nil
}
