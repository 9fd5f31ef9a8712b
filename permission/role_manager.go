package permission

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const roleConfigCacheKey = "role-config"

// RoleManager owns reads and writes of the role configuration document.
//
// Reads go through a TTL cache and never fail: a store error yields the
// seeded defaults, which are logged and not cached. Writes always read the
// stored document, so they never act on a stale cached copy.
type RoleManager struct {
	store    ConfigStore
	cache    *TTLCache[*RoleConfig]
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	observer func(hit bool)

	writeMu sync.Mutex
}

// RoleManagerOption customizes a RoleManager.
type RoleManagerOption func(*RoleManager)

// WithClock injects the time source used for timestamps and cache expiry.
func WithClock(now func() time.Time) RoleManagerOption {
	return func(m *RoleManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) RoleManagerOption {
	return func(m *RoleManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger sets the logger for fail-soft loads.
func WithLogger(logger *slog.Logger) RoleManagerOption {
	return func(m *RoleManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid generator for new mapping ids.
func WithIDGenerator(gen func() string) RoleManagerOption {
	return func(m *RoleManager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithCacheObserver is called after each Config read with whether it was
// served from cache.
func WithCacheObserver(fn func(hit bool)) RoleManagerOption {
	return func(m *RoleManager) {
		m.observer = fn
	}
}

// NewRoleManager wires a manager over store.
func NewRoleManager(store ConfigStore, opts ...RoleManagerOption) *RoleManager {
	m := &RoleManager{
		store:  store,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = NewTTLCache[*RoleConfig](func() time.Time { return m.now() })
	return m
}

// Config returns the current configuration, seeded and sorted by descending
// priority. The result is shared with the cache and must not be modified.
func (m *RoleManager) Config(ctx context.Context) *RoleConfig {
	cfg, hit, err := m.cache.GetOrLoad(ctx, roleConfigCacheKey, m.ttl, m.loadSeeded)
	if m.observer != nil {
		m.observer(hit)
	}
	if err != nil {
		m.logger.Warn("role config load failed, using defaults", "error", err)
		return DefaultConfig()
	}
	return cfg
}

func (m *RoleManager) loadSeeded(ctx context.Context) (*RoleConfig, error) {
	cfg, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		cfg = DefaultConfig()
	case err != nil:
		return nil, err
	}
	SeedDefaults(cfg)
	sortByPriority(cfg.DiscordRoleMappings)
	return cfg, nil
}

// Invalidate drops the cached configuration.
func (m *RoleManager) Invalidate() {
	m.cache.Invalidate()
}

// List returns the mappings sorted by descending priority with Discord role
// ids masked for display.
func (m *RoleManager) List(ctx context.Context) []RoleMapping {
	cfg := m.Config(ctx)
	out := make([]RoleMapping, len(cfg.DiscordRoleMappings))
	for i, rm := range cfg.DiscordRoleMappings {
		c := rm.clone()
		c.DiscordRoleID = MaskRoleID(c.DiscordRoleID)
		out[i] = c
	}
	return out
}

// Add validates and stores a new mapping, assigning its id and timestamps.
func (m *RoleManager) Add(ctx context.Context, in RoleMapping) (RoleMapping, error) {
	var added RoleMapping
	err := m.mutate(ctx, func(cfg *RoleConfig) error {
		now := m.now().UTC()
		added = in.clone()
		added.ID = m.newID()
		added.CreatedAt = now
		added.UpdatedAt = now
		if err := checkMapping(cfg, added); err != nil {
			return err
		}
		cfg.DiscordRoleMappings = append(cfg.DiscordRoleMappings, added)
		return nil
	})
	if err != nil {
		return RoleMapping{}, err
	}
	return added, nil
}

// Update replaces the mapping with the given id. The id and creation time
// are preserved.
func (m *RoleManager) Update(ctx context.Context, id string, in RoleMapping) (RoleMapping, error) {
	var updated RoleMapping
	err := m.mutate(ctx, func(cfg *RoleConfig) error {
		idx := indexOfMapping(cfg, id)
		if idx < 0 {
			return ErrMappingNotFound
		}
		prev := cfg.DiscordRoleMappings[idx]
		updated = in.clone()
		updated.ID = prev.ID
		updated.CreatedAt = prev.CreatedAt
		updated.UpdatedAt = m.now().UTC()
		if err := checkMapping(cfg, updated); err != nil {
			return err
		}
		cfg.DiscordRoleMappings[idx] = updated
		return nil
	})
	if err != nil {
		return RoleMapping{}, err
	}
	return updated, nil
}

// Delete removes the mapping with the given id.
func (m *RoleManager) Delete(ctx context.Context, id string) error {
	return m.mutate(ctx, func(cfg *RoleConfig) error {
		idx := indexOfMapping(cfg, id)
		if idx < 0 {
			return ErrMappingNotFound
		}
		cfg.DiscordRoleMappings = slices.Delete(cfg.DiscordRoleMappings, idx, idx+1)
		return nil
	})
}

// Seed writes the seeded document back when seeding added definitions, or
// when nothing was stored yet. It reports whether a write happened.
func (m *RoleManager) Seed(ctx context.Context) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cfg, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrConfigNotFound):
		cfg = &RoleConfig{}
	case err != nil:
		return false, err
	}
	if !SeedDefaults(cfg) {
		return false, nil
	}
	if err := m.store.Save(ctx, cfg); err != nil {
		return false, err
	}
	m.cache.Invalidate()
	return true, nil
}

// ResolveDiscordRoles returns the highest-priority active mapping whose
// Discord role id is among roleIDs. Grants are never merged across mappings.
func (m *RoleManager) ResolveDiscordRoles(ctx context.Context, roleIDs []string) (RoleMapping, bool) {
	held := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}
	for _, rm := range m.Config(ctx).DiscordRoleMappings {
		if !rm.Active {
			continue
		}
		if _, ok := held[rm.DiscordRoleID]; ok {
			return rm.clone(), true
		}
	}
	return RoleMapping{}, false
}

func (m *RoleManager) mutate(ctx context.Context, fn func(*RoleConfig) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cfg, err := m.loadSeeded(ctx)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	sortByPriority(cfg.DiscordRoleMappings)
	if err := m.store.Save(ctx, cfg); err != nil {
		return err
	}
	m.cache.Invalidate()
	return nil
}

func checkMapping(cfg *RoleConfig, candidate RoleMapping) error {
	if err := ValidateMapping(candidate, NewRegistry(cfg)); err != nil {
		return err
	}
	if !candidate.Active {
		return nil
	}
	for _, other := range cfg.DiscordRoleMappings {
		if other.ID != candidate.ID && other.Active && other.DiscordRoleID == candidate.DiscordRoleID {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, MaskRoleID(candidate.DiscordRoleID))
		}
	}
	return nil
}

func indexOfMapping(cfg *RoleConfig, id string) int {
	return slices.IndexFunc(cfg.DiscordRoleMappings, func(rm RoleMapping) bool {
		return rm.ID == id
	})
}

func sortByPriority(mappings []RoleMapping) {
	slices.SortStableFunc(mappings, func(a, b RoleMapping) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
}
