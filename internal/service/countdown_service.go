package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/siswa-progress-api/internal/dto"
	"github.com/noah-isme/siswa-progress-api/internal/models"
	"github.com/noah-isme/siswa-progress-api/internal/observability"
)

const (
	displayTickInterval   = time.Second
	minAuthorityInterval  = 20 * time.Second
	maxAuthorityInterval  = 60 * time.Second
	authorityFetchTimeout = 10 * time.Second
	backoffBase           = time.Second
	backoffCeiling        = 30 * time.Second
	snapshotBufferSize    = 8
)

// PeriodSource is the authoritative fetch used by authority ticks. The
// period repository satisfies it; tests substitute stubs.
type PeriodSource interface {
	GetByID(ctx context.Context, progressID uint) (models.PeriodRecord, error)
}

// CountdownService maintains live countdown watchers. Each watched period
// runs two cadences: a display tick recomputing the window state every
// second from the latest known bounds, and an authority tick re-fetching the
// record so teacher edits and submissions are picked up. Subscribers share
// one watcher per period; the watcher stops when the last one leaves.
type CountdownService struct {
	source            PeriodSource
	authorityInterval time.Duration
	logger            zerolog.Logger
	now               func() time.Time

	mu       sync.Mutex
	watchers map[uint]*periodWatcher
}

// NewCountdownService builds the watcher registry. The authority interval is
// clamped to [20s, 60s]: urgent views poll faster, batch views slower, and
// nothing outside that band is sane for this data.
func NewCountdownService(source PeriodSource, authorityInterval time.Duration, logger zerolog.Logger) *CountdownService {
	if authorityInterval < minAuthorityInterval {
		authorityInterval = minAuthorityInterval
	}
	if authorityInterval > maxAuthorityInterval {
		authorityInterval = maxAuthorityInterval
	}

	return &CountdownService{
		source:            source,
		authorityInterval: authorityInterval,
		logger:            logger.With().Str("component", "countdown_service").Logger(),
		now:               time.Now,
		watchers:          make(map[uint]*periodWatcher),
	}
}

// Subscribe attaches to the live countdown of one period, starting a watcher
// if none is running. The returned cleanup must be called on teardown; it
// detaches the subscriber and tears the watcher down with the last one.
func (s *CountdownService) Subscribe(progressID uint) (<-chan dto.WindowSnapshot, func()) {
	s.mu.Lock()
	watcher, ok := s.watchers[progressID]
	if !ok {
		watcher = newPeriodWatcher(progressID, s.source, s.authorityInterval, s.logger, s.now)
		s.watchers[progressID] = watcher
		observability.ActiveWatchers().Inc()
		go watcher.run()
	}
	channel := watcher.attach()
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if watcher.detach(channel) == 0 {
			watcher.stop()
			delete(s.watchers, progressID)
			observability.ActiveWatchers().Dec()
		}
	}

	return channel, cleanup
}

// ForceRefresh schedules an immediate authority fetch for the period if a
// watcher is running. Wired to record-changed invalidation events so a
// mutation is reflected before the next scheduled tick.
func (s *CountdownService) ForceRefresh(progressID uint) {
	s.mu.Lock()
	watcher, ok := s.watchers[progressID]
	s.mu.Unlock()
	if ok {
		watcher.forceRefresh()
	}
}

// HandleRecordChanged adapts invalidation events onto ForceRefresh.
func (s *CountdownService) HandleRecordChanged(event RecordChangedEvent) {
	s.ForceRefresh(event.ProgressID)
}

type periodWatcher struct {
	progressID        uint
	source            PeriodSource
	authorityInterval time.Duration
	logger            zerolog.Logger
	now               func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// bounds is the indirection the display tick reads through: every
	// recomputation sees the latest applied authority result, never a
	// snapshot captured at subscribe time.
	boundsMu    sync.RWMutex
	bounds      *models.PeriodRecord
	refreshSeq  uint64
	refreshedAt time.Time
	lastErr     error

	// issueSeq tags every fetch; appliedSeq remembers the newest applied
	// response so a slow in-flight fetch resolving late is discarded.
	seqMu      sync.Mutex
	issueSeq   uint64
	appliedSeq uint64

	subMu       sync.Mutex
	subscribers map[chan dto.WindowSnapshot]struct{}

	forceCh chan struct{}

	// terminalMu guards whether the last computed state was CLOSED or
	// NO_ASSESSMENT. The display tick goes quiet in that state; authority
	// refreshes keep running and wake it back up if the window reopens.
	terminalMu  sync.Mutex
	terminalSet bool
}

func (w *periodWatcher) terminal() bool {
	w.terminalMu.Lock()
	defer w.terminalMu.Unlock()
	return w.terminalSet
}

func (w *periodWatcher) setTerminal(v bool) {
	w.terminalMu.Lock()
	w.terminalSet = v
	w.terminalMu.Unlock()
}

func newPeriodWatcher(progressID uint, source PeriodSource, authorityInterval time.Duration, logger zerolog.Logger, now func() time.Time) *periodWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &periodWatcher{
		progressID:        progressID,
		source:            source,
		authorityInterval: authorityInterval,
		logger:            logger.With().Uint("progress_id", progressID).Logger(),
		now:               now,
		ctx:               ctx,
		cancel:            cancel,
		subscribers:       make(map[chan dto.WindowSnapshot]struct{}),
		forceCh:           make(chan struct{}, 1),
	}
}

func (w *periodWatcher) attach() chan dto.WindowSnapshot {
	channel := make(chan dto.WindowSnapshot, snapshotBufferSize)
	w.subMu.Lock()
	w.subscribers[channel] = struct{}{}
	w.subMu.Unlock()
	return channel
}

func (w *periodWatcher) detach(channel chan dto.WindowSnapshot) int {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	delete(w.subscribers, channel)
	return len(w.subscribers)
}

func (w *periodWatcher) stop() {
	w.cancel()
}

func (w *periodWatcher) forceRefresh() {
	select {
	case w.forceCh <- struct{}{}:
	default:
	}
}

func (w *periodWatcher) run() {
	display := time.NewTicker(displayTickInterval)
	defer display.Stop()

	authority := time.NewTimer(w.authorityInterval)
	defer authority.Stop()

	// Authority fetches run off-loop so a slow backend never stalls the
	// display cadence; their outcome flows back through results to drive
	// the timer re-arm. Stale responses are discarded by sequence number.
	results := make(chan bool, 1)
	backoff := time.Duration(0)

	// First authority fetch seeds the bounds; until it lands the display
	// ticks have nothing to show and stay silent.
	w.beginRefresh(results)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-display.C:
			if !w.terminal() {
				w.emit()
			}
		case <-w.forceCh:
			w.beginRefresh(results)
		case <-authority.C:
			w.beginRefresh(results)
		case ok := <-results:
			backoff = w.nextInterval(ok, backoff, authority)
		}
	}
}

func (w *periodWatcher) beginRefresh(results chan<- bool) {
	go func() {
		ok := w.refresh()
		select {
		case results <- ok:
		case <-w.ctx.Done():
		}
	}()
}

// nextInterval rearms the authority timer: the configured cadence after a
// success, exponential backoff capped at the ceiling after a failure.
// Retries never stop; they continue at the ceiling until teardown.
func (w *periodWatcher) nextInterval(ok bool, backoff time.Duration, authority *time.Timer) time.Duration {
	if ok {
		authority.Reset(w.authorityInterval)
		return 0
	}

	if backoff <= 0 {
		backoff = backoffBase
	} else {
		backoff *= 2
	}
	if backoff > backoffCeiling {
		backoff = backoffCeiling
	}
	authority.Reset(backoff)
	return backoff
}

// refresh performs one authority fetch and applies the response unless a
// newer fetch already resolved. Reports whether the fetch succeeded.
func (w *periodWatcher) refresh() bool {
	w.seqMu.Lock()
	w.issueSeq++
	seq := w.issueSeq
	w.seqMu.Unlock()

	// Bounded so a hung backend surfaces as a failed fetch and enters
	// backoff instead of pinning the fetch goroutine forever.
	fetchCtx, cancel := context.WithTimeout(w.ctx, authorityFetchTimeout)
	record, err := w.source.GetByID(fetchCtx, w.progressID)
	cancel()

	w.seqMu.Lock()
	if seq <= w.appliedSeq {
		// A newer response has already been applied; this one is stale.
		w.seqMu.Unlock()
		observability.WatcherRefreshes().WithLabelValues("stale").Inc()
		return err == nil
	}
	w.appliedSeq = seq
	w.seqMu.Unlock()

	if err != nil {
		if w.ctx.Err() != nil {
			return false
		}
		observability.WatcherRefreshes().WithLabelValues("error").Inc()
		w.logger.Warn().Err(err).Msg("authority refresh failed")
		w.boundsMu.Lock()
		w.lastErr = err
		w.boundsMu.Unlock()
		w.emit()
		return false
	}

	observability.WatcherRefreshes().WithLabelValues("ok").Inc()
	w.boundsMu.Lock()
	w.bounds = &record
	w.refreshSeq++
	w.refreshedAt = w.now().UTC()
	w.lastErr = nil
	w.boundsMu.Unlock()
	w.emit()
	return true
}

// emit recomputes the window state from the latest bounds and fans the
// snapshot out. Closed windows stop producing display frames: there are no
// further seconds to count.
func (w *periodWatcher) emit() {
	w.boundsMu.RLock()
	bounds := w.bounds
	refreshSeq := w.refreshSeq
	refreshedAt := w.refreshedAt
	lastErr := w.lastErr
	w.boundsMu.RUnlock()

	if bounds == nil && lastErr == nil {
		return
	}

	now := w.now().UTC()
	snapshot := dto.WindowSnapshot{
		ProgressID:  w.progressID,
		RefreshSeq:  refreshSeq,
		RefreshedAt: refreshedAt,
		EvaluatedAt: now,
	}
	if lastErr != nil {
		snapshot.LastError = lastErr.Error()
	}
	if bounds != nil {
		snapshot.State = ComputeWindowStateFor(*bounds, now)
		snapshot.Countdown = countdownFor(snapshot.State)
	}
	w.setTerminal(bounds != nil && lastErr == nil &&
		(snapshot.State.Status == dto.WindowClosed || snapshot.State.Status == dto.WindowNoAssessment))

	w.subMu.Lock()
	for channel := range w.subscribers {
		select {
		case channel <- snapshot:
		default:
			// Slow subscriber; drop the frame rather than block the tick.
		}
	}
	w.subMu.Unlock()
}
