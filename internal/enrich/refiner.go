package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ragex/internal/features"
	"ragex/internal/knowledge"
	"ragex/internal/promptctx"
	"ragex/internal/respparse"
)

var refineSpec = respparse.Spec{
	Labels: []string{"ASSESSMENT", "REASONING", "CONFIDENCE"},
	Defaults: map[string]string{
		"ASSESSMENT": "unknown",
		"REASONING":  "",
	},
}

// Candidate is one dead-code candidate, before or after refinement.
type Candidate struct {
	Ref        knowledge.FunctionRef `json:"ref"`
	Confidence float64               `json:"confidence"`
	Reasoning  string                `json:"reasoning,omitempty"`
	Refined    bool                  `json:"refined"`
}

// DeadCodeRefiner refines dead-code confidence scores in batches through a
// bounded worker pool. A timed-out or failed item keeps its original value;
// one failure never aborts the batch.
type DeadCodeRefiner struct {
	client *Client

	maxConcurrent int
	itemTimeout   time.Duration
}

// NewDeadCodeRefiner creates a refiner. Non-positive limits fall back to
// 3 concurrent items and 5s per item.
func NewDeadCodeRefiner(client *Client, maxConcurrent int, itemTimeout time.Duration) *DeadCodeRefiner {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if itemTimeout <= 0 {
		itemTimeout = 5 * time.Second
	}
	return &DeadCodeRefiner{
		client:        client,
		maxConcurrent: maxConcurrent,
		itemTimeout:   itemTimeout,
	}
}

// Refine runs confidence refinement over the candidates, at most
// maxConcurrent in flight, each bounded by the per-item timeout, the whole
// batch bounded by perItem × N. The returned slice preserves input order;
// unrefined entries carry their original values.
func (r *DeadCodeRefiner) Refine(ctx context.Context, candidates []Candidate, opts features.CallOptions) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	if !r.client.svc.Enabled(features.DeadCodeAnalysis, opts) {
		return out
	}

	batchCtx, cancel := context.WithTimeout(ctx, r.itemTimeout*time.Duration(len(candidates)))
	defer cancel()

	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-batchCtx.Done():
				// Batch deadline hit before this item started; it keeps
				// its original value.
				return
			}

			itemCtx, cancel := context.WithTimeout(batchCtx, r.itemTimeout)
			defer cancel()
			if refined, ok := r.refineOne(itemCtx, candidates[i], opts); ok {
				out[i] = refined
			}
		}(i)
	}
	wg.Wait()

	return out
}

// refineOne refines a single candidate. The second return is false when the
// provider call failed or timed out, in which case the caller keeps the
// original candidate.
func (r *DeadCodeRefiner) refineOne(ctx context.Context, cand Candidate, opts features.CallOptions) (Candidate, bool) {
	pctx := r.client.assembler.BuildDeadCode(cand.Ref, cand.Confidence)
	contextStr := promptctx.ToPromptString(pctx)
	prompt := fmt.Sprintf(
		"%s\nAssess whether this symbol is truly dead code. Respond with exactly these labeled sections:\nASSESSMENT: <categorical judgment>\nREASONING: <key evidence>\nCONFIDENCE: <number between 0 and 1>",
		contextStr)

	resp, err := r.client.svc.Fetch(ctx, features.DeadCodeAnalysis, cand.Ref.ID, contextStr, opts,
		r.client.generator(prompt, "You assess dead-code candidates using call-graph evidence.", opts))
	if err != nil {
		r.client.logger.Debug("Dead-code refinement skipped",
			"function", cand.Ref.Name,
			"error", err.Error())
		return Candidate{}, false
	}

	parsed := respparse.Parse(resp.Content, refineSpec)
	inferred := respparse.ConfidenceFromAssessment(parsed.Section("ASSESSMENT"), cand.Confidence)
	refined := cand
	refined.Confidence = parsed.Float("CONFIDENCE", inferred)
	refined.Reasoning = parsed.Section("REASONING")
	refined.Refined = true
	return refined, true
}
