package expiry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Deletion is a bot message scheduled for removal.
type Deletion struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	DueAt     time.Time `json:"due_at"`
}

// State is the top-level pending deletions file.
type State struct {
	Pending []Deletion `json:"pending"`
}

// Store persists pending deletions in a single JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{Pending: []Deletion{}}, nil
		}
		return State{}, fmt.Errorf("read pending deletions: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return State{Pending: []Deletion{}}, nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse pending deletions: %w", err)
	}
	return normalizeState(st), nil
}

func (s *Store) Save(st State) (retErr error) {
	st = normalizeState(st)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create pending deletions dir: %w", err)
	}

	tmp := s.path + ".tmp"
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp)
		}
	}()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp pending deletions: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp pending deletions: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync temp pending deletions: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp pending deletions: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp pending deletions: %w", err)
	}
	return nil
}

// normalizeState drops invalid entries and orders the rest by due time.
func normalizeState(st State) State {
	out := make([]Deletion, 0, len(st.Pending))
	for _, d := range st.Pending {
		if d.ChatID == 0 || d.MessageID == 0 {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return State{Pending: out}
}
