package config

import (
	"fmt"
	"sort"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// Window holds the day counts that drive correlation and prediction.
type Window struct {
	MaxDays           int `yaml:"max_days"`             // Longest post-to-incident gap that still correlates
	HighDays          int `yaml:"high_days"`            // Gaps up to this are HIGH, longer ones MEDIUM
	PredictStartDays  int `yaml:"predict_start_days"`   // Window opens this long after the post
	PredictEndDays    int `yaml:"predict_end_days"`     // and closes this long after it
	PredictMaxAgeDays int `yaml:"predict_max_age_days"` // Older unmatched posts get no window
}

// Windows is the default window plus optional per-kind overrides. An
// override only needs the fields it changes; zero fields inherit.
type Windows struct {
	Window `yaml:",inline"`
	ByKind map[model.LocationKind]Window `yaml:"by_kind,omitempty"`
}

// DefaultWindows is 60/30 days for correlation and a 14-30 day prediction
// window for posts up to 60 days old.
func DefaultWindows() Windows {
	return Windows{
		Window: Window{
			MaxDays:           60,
			HighDays:          30,
			PredictStartDays:  14,
			PredictEndDays:    30,
			PredictMaxAgeDays: 60,
		},
	}
}

// For returns the effective window for a location kind.
func (w Windows) For(kind model.LocationKind) Window {
	out := w.Window
	o, ok := w.ByKind[kind]
	if !ok {
		return out
	}
	if o.MaxDays != 0 {
		out.MaxDays = o.MaxDays
	}
	if o.HighDays != 0 {
		out.HighDays = o.HighDays
	}
	if o.PredictStartDays != 0 {
		out.PredictStartDays = o.PredictStartDays
	}
	if o.PredictEndDays != 0 {
		out.PredictEndDays = o.PredictEndDays
	}
	if o.PredictMaxAgeDays != 0 {
		out.PredictMaxAgeDays = o.PredictMaxAgeDays
	}
	return out
}

// Validate checks the default window and every effective override.
func (w Windows) Validate() error {
	if err := w.Window.validate("default"); err != nil {
		return err
	}
	kinds := make([]string, 0, len(w.ByKind))
	for k := range w.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		kind, err := model.ParseLocationKind(k)
		if err != nil {
			return fmt.Errorf("%w: windows.by_kind: %v", ErrInvalid, err)
		}
		if err := w.For(kind).validate(k); err != nil {
			return err
		}
	}
	return nil
}

func (w Window) validate(name string) error {
	switch {
	case w.MaxDays <= 0:
		return fmt.Errorf("%w: %s window: max_days must be positive", ErrInvalid, name)
	case w.HighDays < 0 || w.HighDays > w.MaxDays:
		return fmt.Errorf("%w: %s window: high_days must be within 0..max_days", ErrInvalid, name)
	case w.PredictStartDays < 0 || w.PredictEndDays < w.PredictStartDays:
		return fmt.Errorf("%w: %s window: need 0 <= predict_start_days <= predict_end_days", ErrInvalid, name)
	case w.PredictMaxAgeDays <= 0:
		return fmt.Errorf("%w: %s window: predict_max_age_days must be positive", ErrInvalid, name)
	}
	return nil
}
