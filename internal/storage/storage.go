// Package storage keeps per-guild settings for one feature area in a single
// JSON document. Reads of an unknown guild materialise and persist a copy of
// the defaults. Writes for one guild are serialised so read-modify-write
// sequences never lose updates.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/keshon/warden/internal/datastore"
	"github.com/rs/zerolog"
)

// Layout selects the on-disk document shape.
type Layout int

const (
	// Wrapped stores {"default": <T>, "guilds": {"<id>": <T>}}. A document
	// level default, when present, seeds new guilds instead of Options.Default.
	Wrapped Layout = iota
	// Flat stores {"<id>": <T>}.
	Flat
)

type Options[T any] struct {
	Layout  Layout
	Default func() T
	Logger  zerolog.Logger
	// ReadOnly opens the document for inspection: nothing is created,
	// written or quarantined.
	ReadOnly bool
}

type Store[T any] struct {
	file     *datastore.File
	readOnly bool
	layout   Layout
	defaults func() T
	log      zerolog.Logger

	mu       sync.Mutex // guards guilds, fallback and document writes
	guilds   map[string]T
	fallback *T

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type wrappedDoc[T any] struct {
	Default *T           `json:"default,omitempty"`
	Guilds  map[string]T `json:"guilds"`
}

// Open loads the document at path. A missing document starts empty. A
// corrupt document is quarantined, logged as a warning, and treated as empty.
// An unreadable document is logged and treated as empty, and left in place.
func Open[T any](path string, opts Options[T]) (*Store[T], error) {
	cfg := datastore.DefaultConfig(path)
	cfg.ReadOnly = opts.ReadOnly
	file, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Default == nil {
		opts.Default = func() T { var zero T; return zero }
	}

	s := &Store[T]{
		file:     file,
		readOnly: opts.ReadOnly,
		layout:   opts.Layout,
		defaults: opts.Default,
		log:      opts.Logger.With().Str("store", path).Logger(),
		guilds:   make(map[string]T),
		locks:    make(map[string]*sync.Mutex),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) load() error {
	var err error
	switch s.layout {
	case Flat:
		doc := map[string]T{}
		_, err = s.file.Load(&doc)
		if err == nil {
			s.guilds = doc
		}
	default:
		var doc wrappedDoc[T]
		_, err = s.file.Load(&doc)
		if err == nil {
			if doc.Guilds != nil {
				s.guilds = doc.Guilds
			}
			s.fallback = doc.Default
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, datastore.ErrCorrupt):
		if s.readOnly {
			s.log.Warn().Err(err).Msg("settings document is corrupt")
		} else {
			backup, qerr := s.file.Quarantine()
			s.log.Warn().Err(err).Str("backup", backup).AnErr("quarantine_err", qerr).
				Msg("settings document is corrupt, starting with empty state")
		}
	default:
		s.log.Warn().Err(err).Msg("settings document is unreadable, starting with empty state")
	}
	s.guilds = make(map[string]T)
	s.fallback = nil
	return nil
}

// Get returns the guild's settings, creating and persisting a copy of the
// defaults when the guild has none. A failed write is logged and the
// in-memory value is still returned.
func (s *Store[T]) Get(guildID string) (T, error) {
	unlock := s.lockGuild(guildID)
	defer unlock()

	v, created, err := s.getOrCreate(guildID)
	if err != nil {
		return v, err
	}
	if created {
		if err := s.persist(); err != nil {
			s.log.Error().Err(err).Str("guild", guildID).Msg("failed to persist default settings")
		}
	}
	return v, nil
}

// Set replaces the guild's settings and rewrites the document.
func (s *Store[T]) Set(guildID string, v T) error {
	unlock := s.lockGuild(guildID)
	defer unlock()
	return s.set(guildID, v)
}

// Update runs fn on a copy of the guild's settings and stores the result.
// If fn returns an error nothing is written. Updates for the same guild are
// serialised.
func (s *Store[T]) Update(guildID string, fn func(*T) error) (T, error) {
	unlock := s.lockGuild(guildID)
	defer unlock()

	v, _, err := s.getOrCreate(guildID)
	if err != nil {
		return v, err
	}
	if err := fn(&v); err != nil {
		return v, err
	}
	if err := s.set(guildID, v); err != nil {
		return v, err
	}
	return v, nil
}

// Lookup returns the stored settings without creating a default entry.
func (s *Store[T]) Lookup(guildID string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.guilds[guildID]
	if !ok {
		var zero T
		return zero, false
	}
	c, err := clone(v)
	if err != nil {
		return v, true
	}
	return c, true
}

// GuildIDs returns the IDs of all stored guilds in sorted order.
func (s *Store[T]) GuildIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default returns a fresh copy of the settings a new guild would get.
func (s *Store[T]) Default() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newDefault()
}

func (s *Store[T]) Path() string { return s.file.Path() }

func (s *Store[T]) getOrCreate(guildID string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.guilds[guildID]; ok {
		c, err := clone(v)
		return c, false, err
	}

	v, err := s.newDefault()
	if err != nil {
		return v, false, err
	}
	stored, err := clone(v)
	if err != nil {
		return v, false, err
	}
	s.guilds[guildID] = stored
	return v, true, nil
}

func (s *Store[T]) set(guildID string, v T) error {
	stored, err := clone(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.guilds[guildID] = stored
	s.mu.Unlock()

	return s.persist()
}

func (s *Store[T]) newDefault() (T, error) {
	if s.fallback != nil {
		return clone(*s.fallback)
	}
	return clone(s.defaults())
}

func (s *Store[T]) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc any
	switch s.layout {
	case Flat:
		doc = s.guilds
	default:
		doc = wrappedDoc[T]{Default: s.fallback, Guilds: s.guilds}
	}
	if err := s.file.Save(doc); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *Store[T]) lockGuild(guildID string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[guildID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[guildID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// clone deep-copies v through its JSON form, which is also the only shape
// the document ever has.
func clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("copy settings: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("copy settings: %w", err)
	}
	return out, nil
}
