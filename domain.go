package passerella

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/passerella/internal"
	"github.com/FerroO2000/passerella/internal/config"
)

// Ticker is the interface implemented by a primitive's per-domain side.
// Tick advances the side's relay chains by one step and must only ever
// be called from the domain that owns the side.
type Ticker interface {
	// Tick advances the state by one domain tick.
	Tick()
}

// TickerFunc adapts a function to the Ticker interface.
type TickerFunc func()

// Tick calls the function.
func (f TickerFunc) Tick() {
	f()
}

// DefaultDomainConfigPeriod is the default duration between domain ticks.
const DefaultDomainConfigPeriod = time.Millisecond

// DomainConfig contains the configuration for a domain.
type DomainConfig struct {
	// Period is the duration between ticks.
	Period time.Duration
}

// NewDomainConfig returns the default configuration for a domain.
func NewDomainConfig() *DomainConfig {
	return &DomainConfig{
		Period: DefaultDomainConfigPeriod,
	}
}

// Validate checks the configuration.
func (c *DomainConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "Period", &c.Period, DefaultDomainConfigPeriod)
	config.CheckNotZero(ac, "Period", &c.Period, DefaultDomainConfigPeriod)
}

// Domain is an independently scheduled tick context. It drives the
// registered tickers at a fixed period, one full pass per tick, so every
// primitive side registered to the same domain observes a common tick.
//
// Two domains never share a tick; primitives bridge them.
type Domain struct {
	tel *internal.Telemetry

	cfg *DomainConfig

	tickers []Ticker

	wg        *sync.WaitGroup
	stopRun   context.CancelFunc
	isRunning bool

	ticks atomic.Int64
}

// NewDomain returns a new domain with the given name.
// A nil configuration selects the defaults.
func NewDomain(name string, cfg *DomainConfig) *Domain {
	if cfg == nil {
		cfg = NewDomainConfig()
	}

	tel := internal.NewTelemetry("domain", name)

	validator := config.NewValidator(tel)
	validator.Validate(cfg)

	d := &Domain{
		tel: tel,

		cfg: cfg,

		tickers: []Ticker{},

		wg:        &sync.WaitGroup{},
		isRunning: false,
	}

	d.tel.NewCounter("ticks", func() int64 { return d.ticks.Load() })

	return d
}

// Add registers a ticker. The order of the tickers is preserved
// within a tick. Tickers cannot be added while the domain is running.
func (d *Domain) Add(ticker Ticker) {
	if d.isRunning {
		return
	}

	d.tickers = append(d.tickers, ticker)
}

// Run starts the tick loop in its own goroutine.
// The loop stops when the context is cancelled or the domain is closed.
func (d *Domain) Run(ctx context.Context) {
	if d.isRunning {
		return
	}
	d.isRunning = true

	d.tel.LogInfo("running", "period", d.cfg.Period, "tickers", len(d.tickers))

	ctx, cancelCtx := context.WithCancel(ctx)
	d.stopRun = cancelCtx

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.cfg.Period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				for _, t := range d.tickers {
					t.Tick()
				}
				d.ticks.Add(1)
			}
		}
	}()
}

// Ticks returns the number of completed tick passes.
func (d *Domain) Ticks() int64 {
	return d.ticks.Load()
}

// Close stops the tick loop. It blocks until the loop has exited.
func (d *Domain) Close() {
	if !d.isRunning {
		return
	}

	d.tel.LogInfo("closing", "ticks", d.ticks.Load())

	d.stopRun()
	d.wg.Wait()

	d.isRunning = false
}
