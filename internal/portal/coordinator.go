// Package portal owns the view state behind the map: the current filter
// selection, search text, result sets, and the loading/error flags the
// presentation layer renders. It orchestrates the inventory and resolver
// clients and guards against stale responses overwriting newer state.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jvkenny/CLFleadservice/internal/domain"
	"github.com/jvkenny/CLFleadservice/internal/observability"
)

const searchMinLen = 3

// View is an immutable snapshot of the portal state handed to the
// presentation layer.
type View struct {
	Filter        domain.FilterSelection `json:"filter"`
	SearchText    string                 `json:"search_text,omitempty"`
	Locations     []domain.ServiceLine   `json:"locations"`
	Stats         domain.Stats           `json:"stats"`
	SearchResults []domain.GeocodeResult `json:"search_results,omitempty"`
	Refreshing    bool                   `json:"refreshing"`
	Error         string                 `json:"error,omitempty"`
}

// Coordinator holds the current view state. One instance serves the process;
// every mutation and read goes through its lock.
type Coordinator struct {
	inventory domain.Inventory
	resolver  domain.Resolver
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu            sync.Mutex
	filter        domain.FilterSelection
	searchText    string
	locations     []domain.ServiceLine
	stats         domain.Stats
	searchResults []domain.GeocodeResult
	refreshing    bool
	lastErr       error
	everLoaded    bool

	// Generation counters: only the most recently dispatched fetch for a
	// piece of state may apply its result. A response carrying a superseded
	// generation is dropped.
	dataGen   uint64
	searchGen uint64
}

// New creates a Coordinator with the portal's default filter.
func New(inventory domain.Inventory, resolver domain.Resolver, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		inventory: inventory,
		resolver:  resolver,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
		filter:    domain.DefaultFilter(),
	}
}

// CheckReadiness returns nil once an inventory refresh has succeeded.
func (c *Coordinator) CheckReadiness(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.everLoaded {
		return errors.New("inventory has not loaded yet")
	}
	return nil
}

// SetFilter replaces the filter selection. The caller follows up with
// Refresh; the two are split so a failed refresh keeps showing prior data
// under the new selection's error banner.
func (c *Coordinator) SetFilter(sel domain.FilterSelection) {
	c.mu.Lock()
	c.filter = sel
	c.mu.Unlock()
}

// Refresh concurrently re-fetches the location list and the stats panel.
// On failure the previously shown data stays intact and the view carries a
// retryable error. A refresh superseded by a newer one discards its results.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.dataGen++
	gen := c.dataGen
	sel := c.filter
	c.refreshing = true
	c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		wg       sync.WaitGroup
		lines    []domain.ServiceLine
		stats    domain.Stats
		linesErr error
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		lines, linesErr = c.inventory.Query(ctx, sel)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = c.inventory.Stats(ctx)
	}()
	wg.Wait()

	err := errors.Join(linesErr, statsErr)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.dataGen {
		c.metrics.StaleResponsesDropped.Inc()
		return nil
	}
	c.refreshing = false

	if err != nil {
		c.lastErr = err
		c.metrics.ViewRefreshes.WithLabelValues("error").Inc()
		c.logger.Error("view refresh failed", "where", sel.WhereClause(), "error", err)
		return err
	}

	c.locations = lines
	c.stats = stats
	c.lastErr = nil
	c.everLoaded = true
	c.metrics.ViewRefreshes.WithLabelValues("success").Inc()
	return nil
}

// SetSearchText updates the search box state and, at or above the minimum
// length, runs a forward search. Search is best-effort: failures clear the
// result list but never surface as view errors.
func (c *Coordinator) SetSearchText(ctx context.Context, text string) {
	c.mu.Lock()
	c.searchText = text
	c.searchGen++
	gen := c.searchGen
	c.mu.Unlock()

	if len(strings.TrimSpace(text)) < searchMinLen {
		c.mu.Lock()
		if gen == c.searchGen {
			c.searchResults = nil
		}
		c.mu.Unlock()
		return
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	results, err := c.resolver.Search(ctx, text, nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.searchGen {
		c.metrics.StaleResponsesDropped.Inc()
		return
	}
	if err != nil {
		c.logger.Warn("address search failed", "text", text, "error", err)
		c.searchResults = nil
		return
	}
	c.searchResults = results
}

// Snapshot returns the current view. The location list is the server-filtered
// set further narrowed by a case-insensitive substring match on address, so
// narrowing can only ever refine the upstream predicate.
func (c *Coordinator) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := View{
		Filter:        c.filter,
		SearchText:    c.searchText,
		Locations:     narrowByAddress(c.locations, c.searchText),
		Stats:         c.stats,
		SearchResults: append([]domain.GeocodeResult(nil), c.searchResults...),
		Refreshing:    c.refreshing,
	}
	if c.lastErr != nil {
		view.Error = c.lastErr.Error()
	}
	return view
}

// narrowByAddress keeps the records whose address contains query,
// case-insensitively. An empty query keeps everything.
func narrowByAddress(lines []domain.ServiceLine, query string) []domain.ServiceLine {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]domain.ServiceLine(nil), lines...)
	}
	narrowed := make([]domain.ServiceLine, 0, len(lines))
	for _, l := range lines {
		if strings.Contains(strings.ToLower(l.Address), query) {
			narrowed = append(narrowed, l)
		}
	}
	return narrowed
}
