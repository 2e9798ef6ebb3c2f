// Package dashboard holds the state machine that keeps the displayed time
// window in sync with user navigation: cache-first fetching, speculative
// prefetch of the adjacent periods, and discard of stale in-flight results.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"energyforecast/internal/cache"
	"energyforecast/internal/kraken"
	"energyforecast/internal/period"
	"energyforecast/internal/timeutil"
	"energyforecast/pkg/models"
)

// maxCachedWindows caps how many windows per account stay in the persistent
// cache; the oldest beyond this are evicted after each successful fetch.
const maxCachedWindows = 20

// Fetcher is the slice of the API client the controller needs.
type Fetcher interface {
	HalfHourlyReadings(ctx context.Context, accountNumber string, from, to time.Time) ([]models.Reading, error)
}

// Direction of a navigation step or prefetch slot.
type Direction int

const (
	Prev Direction = iota
	Next
)

func (d Direction) String() string {
	if d == Next {
		return "next"
	}
	return "prev"
}

// Snapshot is the render-ready view of the controller state. Series slices
// are shared with the cache and must not be mutated.
type Snapshot struct {
	ReferenceDate time.Time
	Granularity   period.Granularity
	Displayed     period.Window
	Series        []models.Reading
	MainLoading   bool
	NextLoading   bool
	PrevLoading   bool
	HasNext       bool
	HasPrev       bool
	AuthFailed    bool
	Err           error
}

// prefetchSlot holds the speculative result for one adjacent period.
// A slot is valid only for the (ref, granularity) it was created under.
type prefetchSlot struct {
	ref     time.Time
	g       period.Granularity
	window  period.Window
	data    []models.Reading
	ready   bool
	loading bool
}

// Controller coordinates the displayed window, the one in-flight main fetch,
// and one prefetch per direction. All methods are safe for concurrent use;
// fetch completions re-enter through the same mutex, so late results for a
// superseded target are compared and discarded rather than cancelled.
type Controller struct {
	fetcher Fetcher
	store   *cache.Store
	account string
	logger  *log.Logger

	mu           sync.Mutex
	refDate      time.Time
	granularity  period.Granularity
	displayedRef time.Time // reference date the displayed series was fetched for
	displayedG   period.Granularity
	displayed    period.Window
	series       []models.Reading
	mainLoading  bool
	mainInFlight bool
	slots        [2]prefetchSlot
	authFailed   bool
	closed       bool
	lastErr      error

	updates chan Snapshot
}

// New creates a controller starting at today's date in day view. Nothing is
// fetched until Start.
func New(fetcher Fetcher, store *cache.Store, accountNumber string, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		fetcher: fetcher,
		store:   store,
		account: accountNumber,
		logger:  logger.With("component", "dashboard"),
		refDate: timeutil.NowJST(),
		updates: make(chan Snapshot, 1),
	}
}

// Updates delivers coalesced state snapshots; only the most recent
// unconsumed snapshot is retained.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Start triggers the initial reconciliation.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcileLocked()
}

// Close stops the controller from applying any further fetch results.
// In-flight requests are not cancelled; their results are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Navigate moves one granularity unit in the given direction. If that
// direction's prefetch slot is loaded, it is promoted synchronously with no
// loading state; otherwise the move falls back to a normal reconciliation.
func (c *Controller) Navigate(dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	var target time.Time
	if dir == Next {
		target = period.NextReference(c.refDate, c.granularity)
	} else {
		target = period.PrevReference(c.refDate, c.granularity)
	}

	slot := &c.slots[dir]
	if slot.ready && !slot.loading && slot.g == c.granularity && slot.ref.Equal(target) {
		c.refDate = target
		c.displayedRef = target
		c.displayedG = c.granularity
		c.displayed = slot.window
		c.series = slot.data
		c.lastErr = nil
		*slot = prefetchSlot{}
		c.logger.Debug("promoted prefetch slot", "direction", dir)
		c.publishLocked()
		c.prefetchLocked()
		return
	}

	c.refDate = target
	c.reconcileLocked()
}

// SetGranularity switches the view granularity. Both prefetch slots are
// invalid under the new granularity and are cleared.
func (c *Controller) SetGranularity(g period.Granularity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || g == c.granularity {
		return
	}
	c.granularity = g
	c.slots = [2]prefetchSlot{}
	c.reconcileLocked()
}

// SetReferenceDate jumps to an arbitrary date.
func (c *Controller) SetReferenceDate(d time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.refDate = d
	c.slots = [2]prefetchSlot{}
	c.reconcileLocked()
}

// Refresh drops the displayed window from the cache and refetches it.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	w := period.WindowFor(c.refDate, c.granularity)
	c.store.Remove(cacheKey(c.account, w))
	c.displayedRef = time.Time{}
	c.slots = [2]prefetchSlot{}
	c.reconcileLocked()
}

// Resume clears the auth-failed latch after the caller has re-authenticated
// and reconciles from scratch.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.authFailed = false
	c.lastErr = nil
	c.reconcileLocked()
}

// reconcileLocked brings the displayed window in line with the target
// reference date and granularity: cache hit applies synchronously, cache
// miss starts the single main fetch. No-op while a main fetch is in flight;
// that fetch re-reconciles when it resolves.
func (c *Controller) reconcileLocked() {
	if c.closed || c.authFailed {
		return
	}
	if c.displayedMatchesTargetLocked() {
		c.prefetchLocked()
		return
	}

	w := period.WindowFor(c.refDate, c.granularity)
	if data, ok := c.store.Get(cacheKey(c.account, w)); ok {
		c.applyLocked(c.refDate, c.granularity, w, data)
		c.prefetchLocked()
		return
	}

	if c.mainInFlight {
		return
	}
	c.mainInFlight = true
	c.mainLoading = true
	c.publishLocked()
	go c.fetchMain(c.refDate, c.granularity, w)
}

func (c *Controller) displayedMatchesTargetLocked() bool {
	return !c.displayedRef.IsZero() && c.displayedRef.Equal(c.refDate) && c.displayedG == c.granularity
}

func (c *Controller) applyLocked(ref time.Time, g period.Granularity, w period.Window, data []models.Reading) {
	c.displayedRef = ref
	c.displayedG = g
	c.displayed = w
	c.series = data
	c.lastErr = nil
	c.publishLocked()
}

func (c *Controller) fetchMain(ref time.Time, g period.Granularity, w period.Window) {
	data, err := c.fetcher.HalfHourlyReadings(context.Background(), c.account, w.From, w.To)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mainInFlight = false
	c.mainLoading = false
	if c.closed {
		return
	}

	if err != nil && kraken.IsAuthError(err) {
		c.authFailed = true
		c.lastErr = err
		c.publishLocked()
		return
	}

	if !ref.Equal(c.refDate) || g != c.granularity {
		// The target moved while this fetch was in flight; discard the
		// stale result and reconcile against the new target.
		c.logger.Debug("discarding stale fetch", "granularity", g, "from", w.From, "to", w.To)
		c.reconcileLocked()
		return
	}

	if err != nil {
		// Keep whatever was displayed; surface the error.
		c.lastErr = err
		c.publishLocked()
		return
	}

	c.store.Set(cacheKey(c.account, w), data)
	c.store.PruneOldest(cachePrefix(c.account), maxCachedWindows)
	c.applyLocked(ref, g, w, data)
	c.prefetchLocked()
}

// prefetchLocked primes the next/prev slots once the displayed window has
// stabilized on the target. Cache hits fill a slot synchronously; misses
// start at most one fetch per direction.
func (c *Controller) prefetchLocked() {
	if c.closed || c.authFailed || !c.displayedMatchesTargetLocked() {
		return
	}

	for _, dir := range [2]Direction{Prev, Next} {
		slot := &c.slots[dir]
		var ref time.Time
		if dir == Next {
			ref = period.NextReference(c.refDate, c.granularity)
		} else {
			ref = period.PrevReference(c.refDate, c.granularity)
		}

		if slot.loading {
			continue
		}
		if slot.ready && slot.g == c.granularity && slot.ref.Equal(ref) {
			continue
		}

		w := period.WindowFor(ref, c.granularity)
		if data, ok := c.store.Get(cacheKey(c.account, w)); ok {
			*slot = prefetchSlot{ref: ref, g: c.granularity, window: w, data: data, ready: true}
			continue
		}

		*slot = prefetchSlot{ref: ref, g: c.granularity, window: w, loading: true}
		go c.fetchPrefetch(dir, ref, c.granularity, w)
	}
	c.publishLocked()
}

func (c *Controller) fetchPrefetch(dir Direction, ref time.Time, g period.Granularity, w period.Window) {
	data, err := c.fetcher.HalfHourlyReadings(context.Background(), c.account, w.From, w.To)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	slot := &c.slots[dir]
	if !slot.loading || slot.g != g || !slot.ref.Equal(ref) {
		// Slot was cleared while this fetch was in flight.
		return
	}
	slot.loading = false

	if err != nil {
		// A failed prefetch just disables the fast path in that direction,
		// except auth failures, which invalidate the whole session.
		slot.data = nil
		slot.ready = false
		if kraken.IsAuthError(err) {
			c.authFailed = true
			c.lastErr = err
		} else {
			c.logger.Debug("prefetch failed", "direction", dir, "error", err)
		}
		c.publishLocked()
		return
	}

	slot.data = data
	slot.ready = true
	c.store.Set(cacheKey(c.account, w), data)
	c.store.PruneOldest(cachePrefix(c.account), maxCachedWindows)
	c.publishLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	next, prev := &c.slots[Next], &c.slots[Prev]
	return Snapshot{
		ReferenceDate: c.refDate,
		Granularity:   c.granularity,
		Displayed:     c.displayed,
		Series:        c.series,
		MainLoading:   c.mainLoading,
		NextLoading:   next.loading,
		PrevLoading:   prev.loading,
		HasNext:       next.ready && len(next.data) > 0,
		HasPrev:       prev.ready && len(prev.data) > 0,
		AuthFailed:    c.authFailed,
		Err:           c.lastErr,
	}
}

// publishLocked replaces any unconsumed snapshot on the updates channel.
func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	for {
		select {
		case c.updates <- snap:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

func cacheKey(account string, w period.Window) string {
	return fmt.Sprintf("%s%s:%s:%s", cachePrefix(account), w.Granularity,
		w.From.UTC().Format(time.RFC3339), w.To.UTC().Format(time.RFC3339))
}

func cachePrefix(account string) string {
	return "usage:" + account + ":"
}
