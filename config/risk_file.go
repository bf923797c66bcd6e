package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

// riskFileDoc is the YAML layout of a risk file:
//
//	profile: balanced
//	overrides:
//	  max_position_size: 0.08
//	correlations:
//	  AAPL: {MSFT: 0.82}
type riskFileDoc struct {
	Profile      string                        `mapstructure:"profile"`
	Overrides    map[string]interface{}        `mapstructure:"overrides"`
	Correlations map[string]map[string]float64 `mapstructure:"correlations"`
}

// RiskSnapshot is one successfully loaded version of the risk file.
type RiskSnapshot struct {
	Version      int64
	LoadedAt     time.Time
	Profile      string
	Settings     domain.RiskSettings
	Correlations *risk.CorrelationMatrix
}

// RiskChangeListener receives every snapshot after a successful reload.
type RiskChangeListener func(RiskSnapshot)

// RiskFile loads risk settings from YAML on top of a named profile and
// reloads them when the file changes.
type RiskFile struct {
	path           string
	defaultProfile string
	v              *viper.Viper
	logger         ports.Logger

	mu        sync.RWMutex
	snapshot  RiskSnapshot
	listeners []RiskChangeListener
	watching  bool
}

// LoadRiskFile reads path once. defaultProfile applies when the file names
// none.
func LoadRiskFile(path, defaultProfile string, logger ports.Logger) (*RiskFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: risk file path cannot be empty", ports.ErrConfiguration)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required for risk file", ports.ErrConfiguration)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading risk file %s: %w", ports.ErrConfiguration, path, err)
	}
	rf := &RiskFile{path: path, defaultProfile: defaultProfile, v: v, logger: logger}
	snap, err := rf.decode()
	if err != nil {
		return nil, err
	}
	snap.Version = 1
	rf.snapshot = snap
	return rf, nil
}

// Snapshot returns the latest successfully loaded version.
func (r *RiskFile) Snapshot() RiskSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Subscribe registers fn for future reloads.
func (r *RiskFile) Subscribe(fn RiskChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Watch starts following the file. A reload that fails to parse or validate
// is logged and the previous snapshot stays in force.
func (r *RiskFile) Watch() {
	r.mu.Lock()
	if r.watching {
		r.mu.Unlock()
		return
	}
	r.watching = true
	r.mu.Unlock()

	r.v.OnConfigChange(func(evt fsnotify.Event) {
		r.reload(context.Background(), evt.Name)
	})
	r.v.WatchConfig()
}

func (r *RiskFile) reload(ctx context.Context, name string) {
	snap, err := r.decode()
	if err != nil {
		r.logger.Error(ctx, err, "Risk file reload rejected, keeping previous settings", map[string]interface{}{"file": name})
		return
	}

	r.mu.Lock()
	snap.Version = r.snapshot.Version + 1
	r.snapshot = snap
	listeners := append([]RiskChangeListener(nil), r.listeners...)
	r.mu.Unlock()

	r.logger.Info(ctx, "Risk file reloaded", map[string]interface{}{
		"file":             name,
		"version":          snap.Version,
		"profile":          snap.Profile,
		"correlationPairs": snap.Correlations.Len(),
		"maxPositionSize":  snap.Settings.MaxPositionSize,
		"maxTotalExposure": snap.Settings.MaxTotalExposure,
	})
	for _, fn := range listeners {
		fn(snap)
	}
}

// decode turns the current viper state into a validated snapshot.
func (r *RiskFile) decode() (RiskSnapshot, error) {
	var doc riskFileDoc
	if err := r.v.Unmarshal(&doc, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return RiskSnapshot{}, fmt.Errorf("%w: parsing risk file: %w", ports.ErrConfiguration, err)
	}

	profile := doc.Profile
	if profile == "" {
		profile = r.defaultProfile
	}
	settings, err := risk.ProfileSettings(profile)
	if err != nil {
		return RiskSnapshot{}, err
	}
	if len(doc.Overrides) > 0 {
		if err := applyOverrides(&settings, doc.Overrides); err != nil {
			return RiskSnapshot{}, err
		}
	}
	if err := settings.Validate(); err != nil {
		return RiskSnapshot{}, fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}

	// viper lower-cases keys; CorrelationMatrix compares symbols
	// case-insensitively.
	for a, row := range doc.Correlations {
		for b, c := range row {
			if c < -1 || c > 1 {
				return RiskSnapshot{}, fmt.Errorf("%w: correlation %s/%s = %v outside [-1,1]", ports.ErrConfiguration, a, b, c)
			}
		}
	}

	return RiskSnapshot{
		LoadedAt:     time.Now(),
		Profile:      strings.ToLower(profile),
		Settings:     settings,
		Correlations: risk.NewCorrelationMatrix(doc.Correlations),
	}, nil
}

// applyOverrides decodes the given keys onto settings, leaving the others at
// their profile values. Unknown keys are an error.
func applyOverrides(settings *domain.RiskSettings, overrides map[string]interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           settings,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrConfiguration, err)
	}
	if err := dec.Decode(overrides); err != nil {
		return fmt.Errorf("%w: risk overrides: %w", ports.ErrConfiguration, err)
	}
	return nil
}
