package scanning

import (
	"context"
	"errors"
	"log/slog"
)

// ErrEngineUnavailable marks an engine that failed its startup probe.
var ErrEngineUnavailable = errors.New("OCR engine unavailable")

// Status is the outcome of a capability probe.
type Status int

const (
	StatusUnavailable Status = iota
	StatusAvailable
)

func (s Status) String() string {
	if s == StatusAvailable {
		return "available"
	}
	return "unavailable"
}

// Availability is decided once at startup and never re-checked per scan.
type Availability struct {
	Status Status `json:"-"`
	Reason string `json:"reason,omitempty"`
}

func (a Availability) IsAvailable() bool { return a.Status == StatusAvailable }

// MarshalText lets availability maps render as {"engine": "available"}.
func (a Availability) MarshalText() ([]byte, error) {
	if a.Reason == "" {
		return []byte(a.Status.String()), nil
	}
	return []byte(a.Status.String() + ": " + a.Reason), nil
}

func Available() Availability { return Availability{Status: StatusAvailable} }

func Unavailable(reason string) Availability {
	return Availability{Status: StatusUnavailable, Reason: reason}
}

// Prober is implemented by engines that can check their runtime dependencies.
type Prober interface {
	Probe(ctx context.Context) Availability
}

// Probe checks a single engine. Engines without a probe are assumed available.
func Probe(ctx context.Context, e Engine) Availability {
	if e == nil {
		return Unavailable("not configured")
	}
	if p, ok := e.(Prober); ok {
		return p.Probe(ctx)
	}
	return Available()
}

// Engines is the capability set handed to the Selector. A nil tier is skipped.
type Engines struct {
	Primary  Engine
	Fallback Engine
}

// ProbeEngines probes both tiers and drops whichever is unavailable.
func ProbeEngines(ctx context.Context, primary, fallback Engine) (Engines, map[string]Availability) {
	report := make(map[string]Availability)
	var engines Engines
	check := func(e Engine) Engine {
		if e == nil {
			return nil
		}
		a := Probe(ctx, e)
		report[e.Name()] = a
		if !a.IsAvailable() {
			slog.Warn("OCR engine unavailable", "engine", e.Name(), "reason", a.Reason)
			return nil
		}
		slog.Info("OCR engine available", "engine", e.Name())
		return e
	}
	engines.Primary = check(primary)
	engines.Fallback = check(fallback)
	return engines, report
}
