package gb28181

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/config"
	"gb28181-simulator/pkg/media"
	"gb28181-simulator/pkg/transport"
	"gb28181-simulator/pkg/util"
)

// Client is the simulated device: one identity, one socket, one dispatcher
// loop, one heartbeat loop. All mutable state is owned here and passed by
// reference to the loops.
type Client struct {
	cfg       *config.Config
	logger    *logrus.Logger
	identity  *Identity
	registry  *Registry
	transport *transport.UDPTransport
	sessions  *SessionManager
	dispatch  *Dispatcher
	heartbeat *Heartbeat
	shutdown  *util.GracefulShutdown
}

// NewClient binds the socket and assembles the signaling components. Bind
// failure is fatal at startup.
func NewClient(cfg *config.Config, bridge media.Bridge, logger *logrus.Logger) (*Client, error) {
	t, err := transport.Bind(cfg.ServerIP, cfg.ServerPort, cfg.LocalPortMin, cfg.LocalPortMax, logger)
	if err != nil {
		return nil, err
	}

	identity := NewIdentity(cfg, t.LocalIP(), t.LocalPort())
	registry := NewRegistry(cfg.DeviceID, cfg.ChannelCount, cfg.MediaSources)
	sessions := NewSessionManager(identity, registry, bridge, logger)
	dispatch := NewDispatcher(t, identity, registry, sessions, cfg, logger)
	heartbeat := NewHeartbeat(identity, t, dispatch.Responses(), cfg.HeartbeatInterval, cfg.ResponseTimeout, logger)

	shutdown := util.NewGracefulShutdown(logger, cfg.ResponseTimeout*2)
	shutdown.Register(util.ShutdownResource{Name: "media relays", Priority: 1, Shutdown: sessions.Shutdown})
	shutdown.RegisterCloser("udp socket", t, 2)

	c := &Client{
		cfg:       cfg,
		logger:    logger,
		identity:  identity,
		registry:  registry,
		transport: t,
		sessions:  sessions,
		dispatch:  dispatch,
		heartbeat: heartbeat,
		shutdown:  shutdown,
	}

	for i, ch := range registry.All() {
		logger.WithFields(logrus.Fields{
			"index":  i,
			"id":     ch.ID,
			"name":   ch.Name,
			"source": ch.SourceURL,
			"ptz":    ch.PTZType,
		}).Info("Channel configured")
	}

	return c, nil
}

// Identity exposes the device identity for inspection.
func (c *Client) Identity() *Identity { return c.identity }

// Sessions exposes the session manager for inspection.
func (c *Client) Sessions() *SessionManager { return c.sessions }

// Run registers with the platform and serves commands until ctx is
// canceled. A failed registration returns immediately; the caller treats it
// as fatal for this run. On cancellation the loops stop first, then every
// active relay, then the socket.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.dispatch.Run(ctx)
	}()

	registrar := NewRegistrar(c.identity, c.transport, c.dispatch.Responses(), c.cfg.ResponseTimeout, c.logger)
	if err := registrar.Run(ctx); err != nil {
		cancel()
		wg.Wait()
		c.shutdown.Shutdown(context.Background())
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeat.Run(ctx)
	}()

	<-ctx.Done()
	c.logger.Info("Shutting down")

	// The socket closes only after both loops have observed cancellation.
	wg.Wait()
	c.shutdown.Shutdown(context.Background())
	c.logger.Info("Shutdown complete")
	return nil
}
