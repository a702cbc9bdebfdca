// Package pulsekit is a client-side game telemetry SDK. Events are
// validated, annotated and queued in an embedded SQLite store, then
// flushed to the collector in signed batches on a background worker.
// All public APIs are fire-and-forget and safe to call from any
// goroutine.
package pulsekit

import (
	"log"
	"sync"

	"github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/device"
	"github.com/pulsekit/pulsekit/internal/events"
	"github.com/pulsekit/pulsekit/internal/scheduler"
	"github.com/pulsekit/pulsekit/internal/state"
	"github.com/pulsekit/pulsekit/internal/store"
	"github.com/pulsekit/pulsekit/internal/transport"
	"github.com/pulsekit/pulsekit/internal/validate"
)

// Config holds SDK options. See DefaultConfig for the defaults.
type Config = config.Config

// DefaultConfig returns the default SDK options.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// LoadConfigFromFile reads options from a YAML or JSON file, applied on
// top of the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	return config.LoadFromFile(path)
}

// LoadConfigFromEnv applies PULSEKIT_ environment overrides to cfg in
// place.
func LoadConfigFromEnv(cfg *Config) {
	config.LoadFromEnv(cfg)
}

// pending collects configuration made before Initialize; it is applied
// to the state machine once the store exists.
type pending struct {
	dimensions01 []string
	dimensions02 []string
	dimensions03 []string
	currencies   []string
	itemTypes    []string

	build          string
	customUserID   string
	externalUserID string

	dimension01 string
	dimension02 string
	dimension03 string

	listeners []state.RemoteConfigsListener
}

// Client is one SDK instance bound to a game key. Create it with New,
// configure it, then call Initialize.
type Client struct {
	cfg *config.Config

	sched  *scheduler.Scheduler
	device *device.Info

	mu          sync.Mutex
	pending     pending
	initialized bool
	quitting    bool
	manual      bool

	store     *store.Store
	state     *state.State
	transport *transport.Client
	pipeline  *events.Pipeline
}

// New creates an uninitialized client. The worker starts immediately
// but nothing touches disk or network until Initialize.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		sched:  scheduler.New(),
		device: device.New(),
	}, nil
}

// Initialize opens the durable store, performs the init handshake and
// starts the session. Asynchronous; a second call is ignored.
func (c *Client) Initialize(gameKey, gameSecret string) {
	if c.ending() {
		return
	}

	c.sched.Submit(func() {
		c.mu.Lock()
		if c.initialized {
			c.mu.Unlock()
			log.Printf("pulsekit: already initialized, can only be called once")
			return
		}
		c.mu.Unlock()

		if !validate.Keys(gameKey, gameSecret) {
			log.Printf("pulsekit: failed to initialize, game key or secret is malformed")
			return
		}

		if err := c.cfg.EnsureDirectories(gameKey); err != nil {
			log.Printf("pulsekit: could not create writable path: %v", err)
			return
		}

		st, err := store.Open(c.cfg.StorePath(gameKey), store.Options{
			MaxSizeBytes:  c.cfg.Queue.MaxStoreSizeBytes,
			TrimThreshold: c.cfg.Queue.TrimThresholdBytes,
		})
		if err != nil {
			log.Printf("pulsekit: could not open local event database: %v", err)
			return
		}

		sta := state.New(st, c.device)
		sta.SetKeys(gameKey, gameSecret)

		tr := transport.New(c.cfg.BaseURL(), gameKey, gameSecret,
			c.cfg.Collector.RequestTimeout, c.cfg.Collector.UseGzip, sta.SDKErrorAnnotations)

		pipe := events.New(st, sta, c.device, tr, events.Options{
			MaxBatchSize:       c.cfg.Queue.MaxBatchSize,
			EnableSDKInitEvent: c.cfg.EnableSDKInitEvent,
			EnableHealthEvent:  c.cfg.EnableHealthEvent,
		})

		c.mu.Lock()
		c.store = st
		c.state = sta
		c.transport = tr
		c.pipeline = pipe
		c.applyPendingLocked()
		c.initialized = true
		c.mu.Unlock()

		c.internalInitialize()
	})
}

// applyPendingLocked pushes pre-init configuration into state, lists
// before values that validate against them.
func (c *Client) applyPendingLocked() {
	p := c.pending

	if p.dimensions01 != nil {
		c.state.SetAvailableCustomDimensions01(p.dimensions01)
	}
	if p.dimensions02 != nil {
		c.state.SetAvailableCustomDimensions02(p.dimensions02)
	}
	if p.dimensions03 != nil {
		c.state.SetAvailableCustomDimensions03(p.dimensions03)
	}
	if p.currencies != nil {
		c.state.SetAvailableResourceCurrencies(p.currencies)
	}
	if p.itemTypes != nil {
		c.state.SetAvailableResourceItemTypes(p.itemTypes)
	}
	if p.build != "" {
		c.state.SetBuild(p.build)
	}
	if p.customUserID != "" {
		c.state.SetCustomUserID(p.customUserID)
	}
	if p.externalUserID != "" {
		c.state.SetExternalUserID(p.externalUserID)
	}
	if p.dimension01 != "" {
		c.state.SetCustomDimension01(p.dimension01)
	}
	if p.dimension02 != "" {
		c.state.SetCustomDimension02(p.dimension02)
	}
	if p.dimension03 != "" {
		c.state.SetCustomDimension03(p.dimension03)
	}
	for _, listener := range p.listeners {
		c.state.AddRemoteConfigsListener(listener)
	}
}

func (c *Client) internalInitialize() {
	if !c.store.Ready() {
		return
	}

	if err := c.state.EnsurePersistedStates(); err != nil {
		log.Printf("pulsekit: failed to restore persisted state: %v", err)
		return
	}

	c.startNewSession()
	c.pipeline.AddSDKInitEvent()

	if c.state.Enabled() {
		c.pipeline.EnsureQueueRunning()
	}

	c.sched.ScheduleRecurring(c.cfg.Queue.ProcessInterval, c.pipeline.ProcessQueue)
}

// startNewSession runs the handshake and, when it leaves the SDK
// enabled, starts the queue and emits the session start event.
func (c *Client) startNewSession() {
	c.state.StartNewSession(c.transport)

	if !c.state.Enabled() {
		// Stopped, not dead: a later session may find the SDK enabled
		// again in remote config.
		c.pipeline.StopQueue()
		return
	}

	c.pipeline.EnsureQueueRunning()
	c.pipeline.AddSessionStartEvent()
}

func (c *Client) resumeSessionAndStartQueue() {
	if !c.state.Initialized() {
		return
	}
	log.Printf("pulsekit: resuming session")
	if !c.state.SessionStarted() {
		c.startNewSession()
	}
	c.pipeline.EnsureQueueRunning()
}

func (c *Client) endSessionAndStopQueue() {
	if !c.ready() {
		return
	}
	log.Printf("pulsekit: ending session")
	if c.state.Enabled() && c.state.SessionStarted() {
		c.state.UpdateTotalSessionTime()
		c.pipeline.AddHealthEvent()
		c.pipeline.AddSessionEndEvent()
		c.state.EndSession()
	}
	c.pipeline.StopQueue()
}

// SetEnabledManualSessionHandling hands session boundaries to the
// caller: StartSession/EndSession instead of OnResume/OnSuspend.
func (c *Client) SetEnabledManualSessionHandling(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = enabled
	log.Printf("pulsekit: manual session handling: %t", enabled)
}

// StartSession begins a new session in manual mode, ending the current
// one first when present. A no-op in automatic mode.
func (c *Client) StartSession() {
	if c.ending() {
		return
	}
	c.sched.Submit(func() {
		c.mu.Lock()
		manual := c.manual
		c.mu.Unlock()
		if !manual || !c.ready() {
			return
		}
		if c.state.Enabled() && c.state.SessionStarted() {
			c.endSessionAndStopQueue()
		}
		c.resumeSessionAndStartQueue()
	})
}

// EndSession closes the current session in manual mode.
func (c *Client) EndSession() {
	c.mu.Lock()
	manual := c.manual
	c.mu.Unlock()
	if manual {
		c.OnSuspend()
	}
}

// OnResume resumes (or starts) a session when the host app returns to
// the foreground. A no-op in manual mode.
func (c *Client) OnResume() {
	if c.ending() {
		return
	}
	c.sched.Submit(func() {
		c.mu.Lock()
		manual := c.manual
		c.mu.Unlock()
		if !manual {
			c.resumeSessionAndStartQueue()
		}
	})
}

// OnSuspend ends the session and stops the queue when the host app
// goes to the background.
func (c *Client) OnSuspend() {
	if c.ending() {
		return
	}
	c.sched.Submit(c.endSessionAndStopQueue)
}

// OnQuit ends the session, drains all queued work and shuts the worker
// down. Blocks until done; the client is unusable afterwards.
func (c *Client) OnQuit() {
	c.mu.Lock()
	if c.quitting {
		c.mu.Unlock()
		return
	}
	c.quitting = true
	c.mu.Unlock()

	c.sched.Submit(c.endSessionAndStopQueue)
	c.sched.DrainAndStop()

	c.mu.Lock()
	st := c.store
	c.mu.Unlock()
	if st != nil {
		if err := st.Close(); err != nil {
			log.Printf("pulsekit: failed to close store: %v", err)
		}
	}
}

// ready reports whether Initialize completed on the worker.
func (c *Client) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized && c.state != nil && c.state.Initialized()
}

func (c *Client) ending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quitting
}
