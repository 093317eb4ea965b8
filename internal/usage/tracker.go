// Package usage tracks cumulative AI spend and enforces advisory rate limits.
//
// The tracker keeps a rolling 24h event window for rate-limit checks plus
// cumulative per-provider and per-model counters. CheckRateLimit inspects the
// window but does not reserve capacity, so concurrent callers can race past
// the same limit; for a single-process gateway this is an accepted tradeoff.
package usage

import (
	"log/slog"
	"sync"
	"time"

	"ragex/internal/errors"
	"ragex/internal/pricing"
)

// windowRetention is how long window events are kept before pruning.
const windowRetention = 24 * time.Hour

// Event is one append-only entry in the rolling rate-limit window.
type Event struct {
	Provider  string
	Timestamp time.Time
	Tokens    int
}

// ModelUsage holds cumulative counters for one model.
type ModelUsage struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	EstimatedCost    float64 `json:"estimatedCost"`
}

// ProviderUsage holds cumulative counters for one provider, with a per-model
// breakdown. Counters are monotonically non-decreasing until ResetStats.
type ProviderUsage struct {
	ModelUsage
	PerModel map[string]*ModelUsage `json:"perModel"`
}

// Limits are the effective quotas applied to one provider.
type Limits = pricing.Limits

// Tracker records usage and answers rate-limit checks. All mutations go
// through one mutex so counter updates are never lost.
type Tracker struct {
	mu     sync.Mutex
	events []Event
	usage  map[string]*ProviderUsage

	limitsFor func(provider string) Limits
	store     *Store // optional persistence, best-effort
	logger    *slog.Logger

	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLimits overrides how per-provider limits are resolved. The default
// consults the pricing table.
func WithLimits(fn func(provider string) Limits) Option {
	return func(t *Tracker) { t.limitsFor = fn }
}

// WithStore attaches a persistence store. Store failures are logged and
// swallowed; they never fail a recording.
func WithStore(s *Store) Option {
	return func(t *Tracker) { t.store = s }
}

// NewTracker creates a usage tracker.
func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		usage:     make(map[string]*ProviderUsage),
		limitsFor: pricing.ProviderLimits,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordRequest appends a window event and updates the cumulative counters.
// Unknown provider/model pairs cost zero rather than failing.
func (t *Tracker) RecordRequest(provider, model string, promptTokens, completionTokens int) {
	now := t.now()
	total := promptTokens + completionTokens
	cost := pricing.Cost(provider, model, promptTokens, completionTokens)

	t.mu.Lock()
	t.events = append(t.events, Event{Provider: provider, Timestamp: now, Tokens: total})

	pu, ok := t.usage[provider]
	if !ok {
		pu = &ProviderUsage{PerModel: make(map[string]*ModelUsage)}
		t.usage[provider] = pu
	}
	pu.Requests++
	pu.PromptTokens += int64(promptTokens)
	pu.CompletionTokens += int64(completionTokens)
	pu.TotalTokens += int64(total)
	pu.EstimatedCost += cost

	mu, ok := pu.PerModel[model]
	if !ok {
		mu = &ModelUsage{}
		pu.PerModel[model] = mu
	}
	mu.Requests++
	mu.PromptTokens += int64(promptTokens)
	mu.CompletionTokens += int64(completionTokens)
	mu.TotalTokens += int64(total)
	mu.EstimatedCost += cost
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Append(Record{
			Provider:         provider,
			Model:            model,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			EstimatedCost:    cost,
			CreatedAt:        now,
		}); err != nil {
			t.logger.Warn("Failed to persist usage record",
				"provider", provider,
				"model", model,
				"error", err.Error())
		}
	}
}

// CheckRateLimit evaluates the three quota tiers in order and returns the
// first violated one. It returns nil when no tier is violated. The check is
// advisory: it does not reserve capacity.
func (t *Tracker) CheckRateLimit(provider string) error {
	limits := t.limitsFor(provider)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var minuteReqs, hourReqs int
	var dayTokens int64
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		age := now.Sub(e.Timestamp)
		if age > windowRetention {
			break // events are appended in time order
		}
		if e.Provider != provider {
			continue
		}
		if age <= 86400*time.Second {
			dayTokens += int64(e.Tokens)
		}
		if age <= 3600*time.Second {
			hourReqs++
		}
		if age <= 60*time.Second {
			minuteReqs++
		}
	}

	if limits.MaxRequestsPerMinute > 0 && minuteReqs >= limits.MaxRequestsPerMinute {
		return errors.Newf(errors.RateLimitMinute,
			"provider %s exceeded %d requests per minute", provider, limits.MaxRequestsPerMinute)
	}
	if limits.MaxRequestsPerHour > 0 && hourReqs >= limits.MaxRequestsPerHour {
		return errors.Newf(errors.RateLimitHour,
			"provider %s exceeded %d requests per hour", provider, limits.MaxRequestsPerHour)
	}
	if limits.MaxTokensPerDay > 0 && dayTokens >= limits.MaxTokensPerDay {
		return errors.Newf(errors.RateLimitDayTokens,
			"provider %s exceeded %d tokens per day", provider, limits.MaxTokensPerDay)
	}
	return nil
}

// GetStats returns a snapshot of one provider's cumulative usage.
// The second return is false when the provider has no recorded usage.
func (t *Tracker) GetStats(provider string) (ProviderUsage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pu, ok := t.usage[provider]
	if !ok {
		return ProviderUsage{}, false
	}
	return snapshotProvider(pu), true
}

// GetAllStats returns a snapshot of all providers' cumulative usage.
func (t *Tracker) GetAllStats() map[string]ProviderUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderUsage, len(t.usage))
	for provider, pu := range t.usage {
		out[provider] = snapshotProvider(pu)
	}
	return out
}

// ResetStats zeroes all cumulative counters and drops the event window.
func (t *Tracker) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = make(map[string]*ProviderUsage)
	t.events = nil
}

// PruneWindow drops events older than the 24h retention and returns how
// many were removed. Run hourly by the maintenance janitor.
func (t *Tracker) PruneWindow() int {
	cutoff := t.now().Add(-windowRetention)

	t.mu.Lock()
	defer t.mu.Unlock()

	// Events are in append order; find the first one still inside the window.
	idx := 0
	for idx < len(t.events) && t.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	t.events = append([]Event(nil), t.events[idx:]...)
	return idx
}

// WindowSize returns the current number of events in the rolling window.
func (t *Tracker) WindowSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

func snapshotProvider(pu *ProviderUsage) ProviderUsage {
	out := ProviderUsage{
		ModelUsage: pu.ModelUsage,
		PerModel:   make(map[string]*ModelUsage, len(pu.PerModel)),
	}
	for model, mu := range pu.PerModel {
		cp := *mu
		out.PerModel[model] = &cp
	}
	return out
}
