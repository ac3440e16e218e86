package health

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ProbeFunc checks whether a component's backend is usable again.
// Returning nil means recovered.
type ProbeFunc func(ctx context.Context) error

// Prober watches one component and, while it is Degraded or Unavailable,
// probes its backend with exponential backoff. On a successful probe the
// component is marked Healthy, which fires the registry callbacks (and,
// for the vector index, the queue drain).
type Prober struct {
	registry  *Registry
	component string
	probe     ProbeFunc
	log       zerolog.Logger

	kick chan struct{}
}

// NewProber wires a prober to the registry. Call Run to start it.
func NewProber(r *Registry, component string, probe ProbeFunc, log zerolog.Logger) *Prober {
	p := &Prober{
		registry:  r,
		component: component,
		probe:     probe,
		log:       log,
		kick:      make(chan struct{}, 1),
	}
	// A transition into a bad state restarts the probe loop promptly.
	r.OnChange(func(ch Change) {
		if ch.Component == component && ch.To != Healthy {
			select {
			case p.kick <- struct{}{}:
			default:
			}
		}
	})
	return p
}

// Run blocks until ctx is done, probing whenever the component is not
// Healthy.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		case <-ticker.C:
		}

		if p.registry.Status(p.component) == Healthy {
			continue
		}
		p.recover(ctx)
	}
}

// recover retries the probe with exponential backoff until it succeeds,
// the component becomes healthy through other means, or ctx is done.
func (p *Prober) recover(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until cancelled

	op := func() error {
		if p.registry.Status(p.component) == Healthy {
			return nil
		}
		if err := p.probe(ctx); err != nil {
			p.log.Debug().Err(err).Str("component", p.component).Msg("probe failed")
			return err
		}
		p.registry.Update(p.component, Healthy, "recovered by probe", "")
		p.log.Info().Str("component", p.component).Msg("component recovered")
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Str("component", p.component).Msg("probe loop aborted")
	}
}
