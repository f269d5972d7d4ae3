package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/nhle/taskpulse/internal/model"
)

// Keys under which the DiskStore keeps its JSON arrays.
const (
	shownKey     = "shown-notification-ids"
	dismissedKey = "dismissed-reminder-ids"
	tasksKey     = "task-snapshot"
)

// DiskStore keeps each set as a single JSON array under a flat key, the way
// browser local storage would. Updates are read-modify-write; concurrent
// processes sharing a directory are last-writer-wins.
type DiskStore struct {
	mu sync.Mutex
	d  *diskv.Diskv
}

// NewDiskStore opens a DiskStore rooted at basePath.
func NewDiskStore(basePath string) *DiskStore {
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 256 * 1024,
	})}
}

// Close is a no-op; diskv holds no open handles.
func (s *DiskStore) Close() error {
	return nil
}

func (s *DiskStore) readJSON(key string, v any) error {
	if !s.d.Has(key) {
		return nil
	}
	raw, err := s.d.Read(key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *DiskStore) writeJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.d.Write(key, raw); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *DiskStore) shown() ([]string, error) {
	var ids []string
	if err := s.readJSON(shownKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *DiskStore) dismissed() ([]DismissedReminder, error) {
	var list []DismissedReminder
	if err := s.readJSON(dismissedKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *DiskStore) ShownIDs(_ context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.shown()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *DiskStore) AddShown(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.shown()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return s.writeJSON(shownKey, append(ids, id))
}

func (s *DiskStore) DismissedReminders(_ context.Context) (map[string]DismissedReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.dismissed()
	if err != nil {
		return nil, err
	}
	out := make(map[string]DismissedReminder, len(list))
	for _, d := range list {
		out[d.ID] = d
	}
	return out, nil
}

func (s *DiskStore) AddDismissed(_ context.Context, d DismissedReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.DismissedAt.IsZero() {
		d.DismissedAt = time.Now()
	}
	list, err := s.dismissed()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, existing := range list {
		if existing.ID != d.ID {
			kept = append(kept, existing)
		}
	}
	return s.writeJSON(dismissedKey, append(kept, d))
}

func (s *DiskStore) RemoveDismissed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.dismissed()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, existing := range list {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return s.writeJSON(dismissedKey, kept)
}

func (s *DiskStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{shownKey, dismissedKey} {
		if !s.d.Has(key) {
			continue
		}
		if err := s.d.Erase(key); err != nil {
			return fmt.Errorf("erasing %s: %w", key, err)
		}
	}
	return nil
}

func (s *DiskStore) ReplaceTasks(_ context.Context, tasks []model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tasks == nil {
		tasks = []model.Task{}
	}
	return s.writeJSON(tasksKey, tasks)
}

func (s *DiskStore) GetTasks(_ context.Context) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []model.Task
	if err := s.readJSON(tasksKey, &tasks); err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].Deadline, tasks[j].Deadline
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return tasks, nil
}
