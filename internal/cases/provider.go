package cases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var (
	ErrNotFound        = errors.New("case not found")
	ErrAlreadyWatching = errors.New("provider is already watching")
)

const defaultDebounce = 300 * time.Millisecond

// Provider serves decision points from a directory of YAML case files.
// Load hands out copies, so a reload never changes a case a caller already holds.
type Provider struct {
	dir    string
	logger *zap.Logger

	mu    sync.RWMutex
	cases map[string]*domain.CaseData

	debounce time.Duration
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewProvider loads dir once. Invalid files are logged and skipped; an
// unreadable directory is an error.
func NewProvider(dir string, logger *zap.Logger) (*Provider, error) {
	p := &Provider{
		dir:      dir,
		logger:   logger,
		cases:    map[string]*domain.CaseData{},
		debounce: defaultDebounce,
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the case directory and swaps in the result.
func (p *Provider) Reload() error {
	loaded, errs := LoadDir(p.dir)
	if loaded == nil {
		return errs[0]
	}
	for _, err := range errs {
		p.logger.Warn("skipping case file", zap.Error(err))
	}

	p.mu.Lock()
	p.cases = loaded
	p.mu.Unlock()

	p.logger.Info("cases loaded", zap.String("dir", p.dir), zap.Int("count", len(loaded)), zap.Int("skipped", len(errs)))
	return nil
}

func (p *Provider) Load(ctx context.Context, caseID string) (*domain.CaseData, error) {
	p.mu.RLock()
	c, ok := p.cases[caseID]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCase(c), nil
}

// List returns a summary of every loaded case ordered by id.
func (p *Provider) List(ctx context.Context) ([]domain.CaseSummary, error) {
	p.mu.RLock()
	out := make([]domain.CaseSummary, 0, len(p.cases))
	for _, c := range p.cases {
		out = append(out, domain.CaseSummary{ID: c.CaseID, Title: c.Title, DecisionCount: len(c.DecisionPoints)})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch reloads the directory whenever case files change, coalescing bursts
// of events. It returns once the watcher is installed; Close stops it. Only
// one watcher may run at a time.
func (p *Provider) Watch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return ErrAlreadyWatching
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(p.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", p.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel

	p.wg.Add(1)
	go p.watchLoop(ctx, w)
	return nil
}

func (p *Provider) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer p.wg.Done()
	defer w.Close()

	timer := time.NewTimer(p.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !isCaseFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			p.logger.Debug("case file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(p.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.logger.Warn("case watcher error", zap.Error(err))

		case <-timer.C:
			if err := p.Reload(); err != nil {
				p.logger.Error("failed to reload cases", zap.Error(err))
			}
		}
	}
}

// Close stops the watcher if one is running.
func (p *Provider) Close() error {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	p.wg.Wait()
	return nil
}
