// Package auth decides which Telegram users may talk to the bot.
package auth

import (
	"fmt"
	"sync"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// Repository supplies allow-listed users kept outside the environment.
type Repository interface {
	LoadAll() ([]User, error)
}

// Service is an allow-list. With no users at all it admits everyone.
type Service struct {
	mu      sync.RWMutex
	repo    Repository
	allowed map[int64]User
}

// NewWithRepo merges the users from repo with the ids from the environment.
func NewWithRepo(repo Repository, initial []int64) (*Service, error) {
	s := &Service{repo: repo, allowed: make(map[int64]User)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	for _, id := range initial {
		if _, ok := s.allowed[id]; !ok {
			s.allowed[id] = User{ID: id}
		}
	}
	return s, nil
}

// Reload adds users from the repository; ids already known are kept.
func (s *Service) Reload() error {
	if s.repo == nil {
		return nil
	}
	users, err := s.repo.LoadAll()
	if err != nil {
		return fmt.Errorf("load allow-list: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.allowed[u.ID] = u
	}
	return nil
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[userID]
	return ok
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.allowed)
}
