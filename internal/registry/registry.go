// Package registry keeps the set of pre-registered data sources and is
// the only place connection settings live. The pipeline consumes just
// its read path: resolve id → open source.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vizquery/vizquery/internal/models"
	"github.com/vizquery/vizquery/internal/source"
)

// ErrNotFound is returned when a data-source id is not registered.
var ErrNotFound = errors.New("data source not found")

// Settings holds connection configuration. The struct is never part of
// any response type; credentials stop here.
type Settings struct {
	DSN             string
	ProjectID       string
	Dataset         string
	Location        string
	CredentialsFile string
}

// Exemplar is a question→SQL pair injected into the generation prompt
// for its data source.
type Exemplar struct {
	Question string
	SQL      string
}

// Definition is a full registry entry.
type Definition struct {
	ID        string
	Name      string
	Kind      string
	Settings  Settings
	Exemplars []Exemplar
}

// Opener turns a definition into an open source. Swappable in tests.
type Opener func(ctx context.Context, def Definition) (source.Source, error)

type entry struct {
	def Definition
	src source.Source
}

// Registry is safe for concurrent use. It holds durable configuration,
// not per-request state: connection pools are a resource limit, never a
// cache of request results.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	open    Opener
}

// New creates a registry using the real drivers.
func New(poolCfg source.PostgresPoolConfig) *Registry {
	return NewWithOpener(func(ctx context.Context, def Definition) (source.Source, error) {
		switch strings.ToLower(def.Kind) {
		case "postgres":
			return source.OpenPostgres(ctx, def.ID, def.Name, def.Settings.DSN, poolCfg)
		case "bigquery":
			return source.OpenBigQuery(ctx, def.ID, def.Name,
				def.Settings.ProjectID, def.Settings.Dataset,
				def.Settings.CredentialsFile, def.Settings.Location)
		default:
			return nil, fmt.Errorf("unsupported data source kind %q", def.Kind)
		}
	})
}

// NewWithOpener creates a registry with a custom source opener.
func NewWithOpener(open Opener) *Registry {
	return &Registry{entries: make(map[string]*entry), open: open}
}

// Register opens and stores a new data source. Registering an id twice
// is an error; use Replace for updates.
func (r *Registry) Register(ctx context.Context, def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("data source id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.ID]; exists {
		return fmt.Errorf("data source %q is already registered", def.ID)
	}

	src, err := r.open(ctx, def)
	if err != nil {
		return err
	}
	r.entries[def.ID] = &entry{def: def, src: src}
	log.Info().Str("id", def.ID).Str("kind", def.Kind).Msg("data source registered")
	return nil
}

// Replace swaps an existing entry, closing the old connection handle.
func (r *Registry) Replace(ctx context.Context, def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, exists := r.entries[def.ID]
	if !exists {
		return ErrNotFound
	}

	src, err := r.open(ctx, def)
	if err != nil {
		return err
	}
	if err := old.src.Close(); err != nil {
		log.Warn().Err(err).Str("id", def.ID).Msg("closing replaced data source")
	}
	r.entries[def.ID] = &entry{def: def, src: src}
	log.Info().Str("id", def.ID).Str("kind", def.Kind).Msg("data source replaced")
	return nil
}

// Remove unregisters an entry and closes its connections.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.entries[id]
	if !exists {
		return ErrNotFound
	}
	delete(r.entries, id)
	if err := e.src.Close(); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("closing removed data source")
	}
	log.Info().Str("id", id).Msg("data source removed")
	return nil
}

// Resolve returns the open source and its definition for an id.
func (r *Registry) Resolve(id string) (source.Source, Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[id]
	if !exists {
		return nil, Definition{}, ErrNotFound
	}
	return e.src, e.def, nil
}

// List returns the serializable view of every entry, sorted by id. This
// is the only registry shape handlers may put in a response.
func (r *Registry) List() []models.DataSourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]models.DataSourceInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, models.DataSourceInfo{ID: e.def.ID, Name: e.def.Name})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Ping checks connectivity of every registered source with a short
// per-source timeout. Returns the first failure.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.entries {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := e.src.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("data source %q: %w", id, err)
		}
	}
	return nil
}

// Close releases every source's connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, e := range r.entries {
		if err := e.src.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close data source %q: %w", id, err)
		}
	}
	r.entries = make(map[string]*entry)
	return firstErr
}
