// Package settings holds the admin-controlled runtime configuration: the cache budget, download
// parallelism and which platforms may be used for playback. Changes apply immediately and are
// persisted.
package settings

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tapedeck/internal/platform"
	"github.com/desertthunder/tapedeck/internal/shared"
)

const (
	keyCacheMaxGB  = "cache_max_gb"
	keyMaxParallel = "fetcher.max_parallel"
	keyBandcamp    = "platform.bandcamp"
	keyYouTube     = "platform.youtube"
)

// Settings is the admin-editable configuration.
//
// MaxParallel is zero when download parallelism is not managed here and the fetcher keeps the
// limit it was built with.
type Settings struct {
	CacheMaxGB  float64 `json:"cache_max_gb"`
	MaxParallel int     `json:"max_parallel,omitempty"`
	Bandcamp    bool    `json:"bandcamp_enabled"`
	YouTube     bool    `json:"youtube_enabled"`
}

// Enablement converts the per-platform flags for the selector.
func (s Settings) Enablement() platform.Enablement {
	return platform.Enablement{Direct: s.Bandcamp, CacheBacked: s.YouTube}
}

// Validate checks the cache budget and parallelism ranges.
func (s Settings) Validate() error {
	if err := shared.ValidateCacheSizeGB(s.CacheMaxGB); err != nil {
		return err
	}
	if s.MaxParallel != 0 {
		return shared.ValidateMaxParallel(s.MaxParallel)
	}
	return nil
}

// FromConfig builds the startup settings from the config file.
func FromConfig(cfg *shared.Config) Settings {
	return Settings{
		CacheMaxGB:  cfg.Cache.MaxSizeGB,
		MaxParallel: cfg.Fetcher.MaxParallel,
		Bandcamp:    cfg.Platforms.Bandcamp,
		YouTube:     cfg.Platforms.YouTube,
	}
}

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	CacheMaxGB  *float64 `json:"cache_max_gb,omitempty"`
	MaxParallel *int     `json:"max_parallel,omitempty"`
	Bandcamp    *bool    `json:"bandcamp_enabled,omitempty"`
	YouTube     *bool    `json:"youtube_enabled,omitempty"`
}

// Merge applies p on top of base.
func (p Patch) Merge(base Settings) Settings {
	if p.CacheMaxGB != nil {
		base.CacheMaxGB = *p.CacheMaxGB
	}
	if p.MaxParallel != nil {
		base.MaxParallel = *p.MaxParallel
	}
	if p.Bandcamp != nil {
		base.Bandcamp = *p.Bandcamp
	}
	if p.YouTube != nil {
		base.YouTube = *p.YouTube
	}
	return base
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.CacheMaxGB == nil && p.MaxParallel == nil && p.Bandcamp == nil && p.YouTube == nil
}

// BudgetSetter receives cache budget changes.
type BudgetSetter interface {
	SetMaxSize(bytes int64) error
}

// Store persists settings as name/value pairs.
type Store interface {
	All() (map[string]string, error)
	SetAll(values map[string]string) error
}

// Manager owns the current settings and pushes changes to the cache and subscribers.
type Manager struct {
	// writeMu serializes whole changes, so a patch is merged into the settings it replaces.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current Settings
	budget  BudgetSetter
	store   Store
	subs    []func(Settings)
	logger  *log.Logger
}

// NewManager starts from defaults, overlays persisted values and applies the resulting budget.
// store may be nil, in which case nothing is persisted.
func NewManager(defaults Settings, budget BudgetSetter, store Store, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	m := &Manager{
		current: defaults,
		budget:  budget,
		store:   store,
		logger:  shared.WithLogger(logger, "component", "settings"),
	}

	if store != nil {
		values, err := store.All()
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		loaded, err := decode(defaults, values)
		if err != nil {
			m.logger.Warn("ignoring invalid persisted settings", "err", err)
		} else {
			m.current = loaded
		}
	}

	if err := m.current.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	if budget != nil {
		if err := budget.SetMaxSize(shared.GBToBytes(m.current.CacheMaxGB)); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// AttachBudget connects the cache after the manager was built without one and applies the
// current budget to it. Opening the cache with [Settings.CacheMaxGB] from [Manager.Current] keeps
// a restart from trimming entries a larger saved budget still allows.
func (m *Manager) AttachBudget(budget BudgetSetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := budget.SetMaxSize(shared.GBToBytes(m.current.CacheMaxGB)); err != nil {
		return err
	}
	m.budget = budget
	return nil
}

// Current returns the settings in effect.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Enablement returns the current platform switches.
func (m *Manager) Enablement() platform.Enablement {
	return m.Current().Enablement()
}

// Subscribe registers fn to be called after every applied change.
func (m *Manager) Subscribe(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Apply validates and installs next. The cache budget changes (and evicts) before the call returns.
func (m *Manager) Apply(next Settings) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.apply(next)
}

func (m *Manager) apply(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.current
	if next.CacheMaxGB != prev.CacheMaxGB && m.budget != nil {
		if err := m.budget.SetMaxSize(shared.GBToBytes(next.CacheMaxGB)); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.current = next
	subs := append([]func(Settings){}, m.subs...)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SetAll(encode(next)); err != nil {
			m.logger.Error("failed to persist settings", "err", err)
			return fmt.Errorf("settings applied but not persisted: %w", err)
		}
	}

	m.logger.Info("settings applied", "cache_max_gb", next.CacheMaxGB, "max_parallel", next.MaxParallel, "bandcamp", next.Bandcamp, "youtube", next.YouTube)
	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// ApplyPatch merges p into the current settings and applies the result.
func (m *Manager) ApplyPatch(p Patch) (Settings, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	next := p.Merge(m.Current())
	if err := m.apply(next); err != nil {
		return m.Current(), err
	}
	return next, nil
}

func encode(s Settings) map[string]string {
	values := map[string]string{
		keyCacheMaxGB: strconv.FormatFloat(s.CacheMaxGB, 'f', -1, 64),
		keyBandcamp:   strconv.FormatBool(s.Bandcamp),
		keyYouTube:    strconv.FormatBool(s.YouTube),
	}
	if s.MaxParallel != 0 {
		values[keyMaxParallel] = strconv.Itoa(s.MaxParallel)
	}
	return values
}

func decode(base Settings, values map[string]string) (Settings, error) {
	out := base
	if v, ok := values[keyCacheMaxGB]; ok {
		gb, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return base, fmt.Errorf("%s: %w", keyCacheMaxGB, err)
		}
		out.CacheMaxGB = gb
	}
	if v, ok := values[keyMaxParallel]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return base, fmt.Errorf("%s: %w", keyMaxParallel, err)
		}
		out.MaxParallel = n
	}
	if v, ok := values[keyBandcamp]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, fmt.Errorf("%s: %w", keyBandcamp, err)
		}
		out.Bandcamp = b
	}
	if v, ok := values[keyYouTube]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return base, fmt.Errorf("%s: %w", keyYouTube, err)
		}
		out.YouTube = b
	}
	return out, out.Validate()
}
