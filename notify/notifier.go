package notify

import (
	"context"
	"errors"

	"inventory_watch/config"
	"inventory_watch/models"
)

var ErrNotConfigured = errors.New("notifier not configured")

// NoMatches describes a run that found nothing new.
type NoMatches struct {
	Criteria    config.CriteriaConfig
	SearchLinks []string
}

type Notifier interface {
	Name() string
	NotifyNew(ctx context.Context, vehicles []models.LedgerEntry) error
	NotifyNoMatches(ctx context.Context, info NoMatches) error
}

// Multi fans out to every channel. It succeeds when at least one channel
// delivered, and reports the failures of the others.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) NotifyNew(ctx context.Context, vehicles []models.LedgerEntry) error {
	return m.each(func(n Notifier) error { return n.NotifyNew(ctx, vehicles) })
}

func (m Multi) NotifyNoMatches(ctx context.Context, info NoMatches) error {
	return m.each(func(n Notifier) error { return n.NotifyNoMatches(ctx, info) })
}

func (m Multi) each(fn func(Notifier) error) error {
	if len(m) == 0 {
		return ErrNotConfigured
	}
	var errs []error
	delivered := 0
	for _, n := range m {
		if err := fn(n); err != nil {
			errs = append(errs, &ChannelError{Channel: n.Name(), Err: err})
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errors.Join(errs...)
	}
	if len(errs) > 0 {
		return &PartialError{Err: errors.Join(errs...)}
	}
	return nil
}

type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string { return e.Channel + ": " + e.Err.Error() }
func (e *ChannelError) Unwrap() error { return e.Err }

// PartialError means some channels delivered and some failed.
type PartialError struct {
	Err error
}

func (e *PartialError) Error() string { return "partial delivery: " + e.Err.Error() }
func (e *PartialError) Unwrap() error { return e.Err }

// Delivered reports whether err still means at least one channel delivered.
func Delivered(err error) bool {
	if err == nil {
		return true
	}
	var partial *PartialError
	return errors.As(err, &partial)
}

// FromConfig builds the channels that have credentials configured.
func FromConfig(cfg config.NotifyConfig, deps Deps) Multi {
	var m Multi
	if cfg.EmailEnabled() {
		m = append(m, NewEmailNotifier(cfg))
	}
	if cfg.SMSEnabled() && deps.API != nil {
		m = append(m, NewSMSNotifier(cfg, deps.API))
	}
	return m
}
