package tasks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a Store backed by a map. Used in tests and for
// ephemeral runs without a database.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]Task
}

// NewInMemoryStore creates an empty in-memory task store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1, tasks: make(map[int64]Task)}
}

func (s *InMemoryStore) CreateTask(_ context.Context, userID string, in CreateInput) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	t := Task{
		ID:          s.nextID,
		UserID:      userID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.nextID++
	s.tasks[t.ID] = t
	return &t, nil
}

func (s *InMemoryStore) GetTask(_ context.Context, userID string, id int64) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOwned(userID, id)
}

func (s *InMemoryStore) ListTasks(_ context.Context, userID string, filter ListFilter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter = NormalizeFilter(filter)

	var all []Task
	for _, t := range s.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		all = append(all, t)
	}
	// Newest first, matching the database ordering.
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if filter.Offset >= len(all) {
		return []Task{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (s *InMemoryStore) UpdateTask(_ context.Context, userID string, id int64, in UpdateInput) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getOwned(userID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = *t
	return t, nil
}

func (s *InMemoryStore) SetTaskCompleted(_ context.Context, userID string, id int64, completed bool) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.getOwned(userID, id)
	if err != nil {
		return nil, err
	}
	t.Completed = completed
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = *t
	return t, nil
}

func (s *InMemoryStore) DeleteTask(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getOwned(userID, id); err != nil {
		return err
	}
	delete(s.tasks, id)
	return nil
}

// getOwned returns a copy of the task if it exists and belongs to userID.
func (s *InMemoryStore) getOwned(userID string, id int64) (*Task, error) {
	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return nil, ErrTaskNotFound
	}
	copied := t
	return &copied, nil
}
