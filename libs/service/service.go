package service

import (
	"context"
	"errors"
	"sync"

	"github.com/mmrnode/mmrnode/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service (without resetting it).
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Stop stops the service. It is safe to call Stop after the context
	// passed to Start has been canceled.
	Stop() error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the BaseService
// implementation wraps.
type Implementation interface {
	// Called by the Services Start Method. The context is canceled when
	// the service stops, so long-running goroutines should select on it.
	OnStart(context.Context) error

	// Called when the service stops, either through Stop or because the
	// start context was canceled.
	OnStop()
}

/*
BaseService carries the start/stop bookkeeping of a service. Embedders
provide OnStart/OnStop; OnStart is called at most once per successful Start
and OnStop at most once per Stop.

Typical usage:

	type Server struct {
		service.BaseService
		// private fields
	}

	func NewServer(logger log.Logger) *Server {
		s := &Server{}
		s.BaseService = *service.NewBaseService(logger, "Server", s)
		return s
	}

	func (s *Server) OnStart(ctx context.Context) error {
		go s.loop(ctx)
		return nil
	}

	func (s *Server) OnStop() {}
*/
type BaseService struct {
	logger log.Logger
	name   string

	mtx     sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	quit    chan struct{}

	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. The service stops
// when ctx is canceled or Stop is called, whichever comes first.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	if bs.stopped {
		bs.mtx.Unlock()
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}
	if bs.started {
		bs.mtx.Unlock()
		return ErrAlreadyStarted
	}

	bs.logger.Info("starting service", "service", bs.name)

	srvCtx, cancel := context.WithCancel(ctx)
	if err := bs.impl.OnStart(srvCtx); err != nil {
		cancel()
		bs.mtx.Unlock()
		return err
	}
	bs.started = true
	bs.cancel = cancel
	bs.mtx.Unlock()

	go func() {
		select {
		case <-bs.quit:
			// someone else explicitly called stop
		case <-srvCtx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopped service", "err", err.Error(), "service", bs.name)
			}
		}
	}()

	return nil
}

// Stop implements Service by calling OnStop and closing the quit channel.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.stopped {
		return ErrAlreadyStopped
	}
	if !bs.started {
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.stopped = true
	bs.cancel()
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
