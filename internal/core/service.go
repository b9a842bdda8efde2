package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ecsv/internal/config"
)

var (
	ErrImportNotFound    = errors.New("import not found")
	ErrNoDatabase        = errors.New("no database configured")
	ErrAlreadyRolledBack = errors.New("import already rolled back")
	ErrInvalidTableName  = errors.New("invalid table name")
	ErrTableMismatch     = errors.New("table columns do not match header")
	ErrEmptyFile         = errors.New("empty file")
)

// Service runs ECSV inspections and imports into PostgreSQL.
type Service struct {
	pool    *pgxpool.Pool
	cfg     *config.Config
	limiter *ImportLimiter

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	ID     string
	Cancel context.CancelFunc
	Done   chan struct{}

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportResult
	listeners []chan ImportProgress
}

// NewService creates a Service. pool may be nil, in which case only
// Inspect works; a nil cfg uses config.Defaults.
func NewService(pool *pgxpool.Pool, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if cfg.Import.MaxConcurrent < 1 {
		return nil, fmt.Errorf("import max concurrent must be positive, got %d", cfg.Import.MaxConcurrent)
	}
	return &Service{
		pool:    pool,
		cfg:     cfg,
		limiter: NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		imports: make(map[string]*activeImport),
	}, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	if s.pool == nil {
		return ErrNoDatabase
	}
	return s.pool.Ping(ctx)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

func (s *Service) lookup(importID string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return imp, nil
}

// SubscribeProgress returns a channel that receives progress updates. The
// current state is sent first; the channel is closed when the import ends.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 10)

	imp.mu.Lock()
	defer imp.mu.Unlock()
	ch <- imp.progress
	if imp.progress.Phase.Terminal() {
		close(ch)
		return ch, nil
	}
	imp.listeners = append(imp.listeners, ch)
	return ch, nil
}

// GetImportProgress returns the current progress without blocking.
func (s *Service) GetImportProgress(importID string) (ImportProgress, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return ImportProgress{}, err
	}
	return imp.snapshot(), nil
}

// GetImportResult waits for the import to finish and returns its result.
func (s *Service) GetImportResult(ctx context.Context, importID string) (*ImportResult, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	select {
	case <-imp.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.result, nil
}

// CancelImport stops an import. Rows already copied are rolled back with
// the transaction.
func (s *Service) CancelImport(importID string) error {
	imp, err := s.lookup(importID)
	if err != nil {
		return err
	}
	imp.Cancel()
	return nil
}

// WaitForImports blocks until every running import has released its slot.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (imp *activeImport) snapshot() ImportProgress {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.progress
}

// update applies fn to the progress and notifies listeners.
func (imp *activeImport) update(fn func(p *ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	fn(&imp.progress)
	imp.notifyLocked()
}

func (imp *activeImport) notifyLocked() {
	for _, ch := range imp.listeners {
		select {
		case ch <- imp.progress:
		default:
			// slow listener, drop this update
		}
	}
}

// finish stores the result, publishes the final progress and closes all
// listener channels.
func (imp *activeImport) finish(result *ImportResult, fn func(p *ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	fn(&imp.progress)
	imp.result = result
	for _, ch := range imp.listeners {
		// a full buffer would drop the terminal state, so make room
		select {
		case ch <- imp.progress:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- imp.progress
		}
		close(ch)
	}
	imp.listeners = nil
	close(imp.Done)
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}
