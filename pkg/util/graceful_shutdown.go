package util

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// GracefulShutdown runs registered teardown steps in priority order (lower
// first) under a shared deadline. The simulator registers its media relays
// ahead of the socket so every relay is stopped before the transport closes.
type GracefulShutdown struct {
	resources []ShutdownResource
	mu        sync.Mutex
	logger    *logrus.Logger
	timeout   time.Duration
}

// ShutdownResource is one teardown step.
type ShutdownResource struct {
	Name     string
	Shutdown func(context.Context) error
	Priority int // Lower numbers shut down first
}

// NewGracefulShutdown creates a shutdown manager.
func NewGracefulShutdown(logger *logrus.Logger, timeout time.Duration) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a resource, kept in priority order.
func (gs *GracefulShutdown) Register(resource ShutdownResource) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	inserted := false
	for i, r := range gs.resources {
		if resource.Priority < r.Priority {
			gs.resources = append(gs.resources[:i], append([]ShutdownResource{resource}, gs.resources[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		gs.resources = append(gs.resources, resource)
	}
}

// RegisterCloser registers an io.Closer as a teardown step.
func (gs *GracefulShutdown) RegisterCloser(name string, closer io.Closer, priority int) {
	gs.Register(ShutdownResource{
		Name:     name,
		Priority: priority,
		Shutdown: func(context.Context) error { return closer.Close() },
	})
}

// Shutdown runs every registered step in order. Errors are logged, not
// propagated; teardown always proceeds to the remaining steps.
func (gs *GracefulShutdown) Shutdown(ctx context.Context) {
	gs.mu.Lock()
	resources := make([]ShutdownResource, len(gs.resources))
	copy(resources, gs.resources)
	gs.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, gs.timeout)
	defer cancel()

	for _, r := range resources {
		gs.logger.WithField("resource", r.Name).Debug("Shutting down resource")
		if err := r.Shutdown(ctx); err != nil {
			gs.logger.WithError(err).WithField("resource", r.Name).Warn("Resource shutdown failed")
		}
	}
}
