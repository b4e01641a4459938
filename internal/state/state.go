// Package state persists the bot's follow list, keyword list and
// last-seen markers as one JSON document.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// UP is a followed creator.
type UP struct {
	MID     string `json:"mid"`
	Name    string `json:"name"`
	AddedAt string `json:"added_at,omitempty"`
}

// Daily records the last credited keyword-digest date ("2006-01-02").
type Daily struct {
	Date string `json:"date"`
}

// LastSeen holds the novelty markers.
type LastSeen struct {
	UpVideos map[string][]string `json:"up_videos"`
	Daily    Daily               `json:"daily"`
}

// State is the whole document.
type State struct {
	UPs      []UP      `json:"ups"`
	Keywords []string  `json:"keywords"`
	LastSeen LastSeen  `json:"last_seen"`
}

// NewState returns an empty document with initialized containers.
func NewState() *State {
	return &State{
		UPs:      []UP{},
		Keywords: []string{},
		LastSeen: LastSeen{UpVideos: map[string][]string{}},
	}
}

// AddUp appends a creator unless the mid is already followed.
// Reports whether the list changed.
func (s *State) AddUp(mid, name string) bool {
	for _, u := range s.UPs {
		if u.MID == mid {
			return false
		}
	}
	s.UPs = append(s.UPs, UP{
		MID:     mid,
		Name:    name,
		AddedAt: time.Now().UTC().Format(time.RFC3339),
	})
	return true
}

// RemoveUp deletes a creator by mid. Reports whether it was present.
func (s *State) RemoveUp(mid string) bool {
	before := len(s.UPs)
	s.UPs = slices.DeleteFunc(s.UPs, func(u UP) bool { return u.MID == mid })
	return len(s.UPs) < before
}

// AddKeyword appends a keyword unless already present. Blank keywords
// are ignored. Matching is case-sensitive exact text.
func (s *State) AddKeyword(kw string) bool {
	kw = strings.TrimSpace(kw)
	if kw == "" || slices.Contains(s.Keywords, kw) {
		return false
	}
	s.Keywords = append(s.Keywords, kw)
	return true
}

// RemoveKeyword deletes a keyword by exact text.
func (s *State) RemoveKeyword(kw string) bool {
	before := len(s.Keywords)
	s.Keywords = slices.DeleteFunc(s.Keywords, func(k string) bool { return k == kw })
	return len(s.Keywords) < before
}

// LastSeenBvids returns a copy of the seen marker for a creator.
func (s *State) LastSeenBvids(mid string) []string {
	return slices.Clone(s.LastSeen.UpVideos[mid])
}

// SetLastSeenBvids replaces the marker — it never merges.
func (s *State) SetLastSeenBvids(mid string, bvids []string) {
	if s.LastSeen.UpVideos == nil {
		s.LastSeen.UpVideos = map[string][]string{}
	}
	s.LastSeen.UpVideos[mid] = bvids
}

// DailyDate returns the last credited digest date, "" when never run.
func (s *State) DailyDate() string { return s.LastSeen.Daily.Date }

// SetDailyDate records the digest date.
func (s *State) SetDailyDate(date string) { s.LastSeen.Daily.Date = date }

// Store owns the backing file. All access goes through WithState/View,
// which serialize the load-modify-save cycle under one mutex so
// concurrent command handlers cannot lose updates.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore points at the document; the file and its directory are
// created lazily on first access.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (st *Store) load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		s := NewState()
		if err := st.save(s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	s := NewState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if s.LastSeen.UpVideos == nil {
		s.LastSeen.UpVideos = map[string][]string{}
	}
	return s, nil
}

func (st *Store) save(s *State) error {
	if dir := filepath.Dir(st.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(st.path, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// WithState runs fn on the loaded document and saves it back.
// When fn returns an error nothing is written.
func (st *Store) WithState(fn func(*State) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.load()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return st.save(s)
}

// View runs fn on the loaded document without saving.
func (st *Store) View(fn func(*State) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.load()
	if err != nil {
		return err
	}
	return fn(s)
}
