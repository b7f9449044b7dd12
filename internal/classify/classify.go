// Package classify assigns categories to canonical transactions. Keyword
// rules run first; whatever they leave unlabeled goes to the external
// reasoning service in bounded batches, with retries on transient failure and
// a fallback category when the service cannot produce a valid label. Every
// decision is recorded in the audit log.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jemadeira/extrato/internal/audit"
	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/domain"
	"github.com/jemadeira/extrato/internal/logger"
)

// Adapter batches transactions, drives the reasoning service and merges
// labels back. One Adapter serves one configuration; it holds no per-run
// state and is safe to reuse across uploads.
type Adapter struct {
	cfg      config.Pipeline
	reasoner Reasoner
	log      audit.Log
	vocab    map[string]string // normalized name -> canonical name
}

// NewAdapter wires the adapter from its collaborators. The configuration must
// already be validated.
func NewAdapter(cfg config.Pipeline, reasoner Reasoner, auditLog audit.Log) (*Adapter, error) {
	if reasoner == nil {
		return nil, fmt.Errorf("classify.NewAdapter: nil reasoner")
	}
	if auditLog == nil {
		return nil, fmt.Errorf("classify.NewAdapter: nil audit log")
	}

	vocab := make(map[string]string, len(cfg.Categories))
	for _, c := range cfg.Categories {
		vocab[normalizeCategory(c)] = c
	}

	return &Adapter{cfg: cfg, reasoner: reasoner, log: auditLog, vocab: vocab}, nil
}

// labelResult is a resolved category for one transaction id.
type labelResult struct {
	category   string
	source     domain.ClassificationSource
	confidence float64
	raw        string
	reason     string
}

// Classify labels every transaction in txs and returns a new slice in the
// same order. It never leaves a transaction unlabeled: transactions the
// service cannot validly label receive the fallback category. The only error
// it returns is context cancellation.
func (a *Adapter) Classify(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)

	results := make(map[string]labelResult, len(txs))

	// Rule pass: configured keyword rules bypass the reasoning service.
	var pending []domain.Transaction
	for _, tx := range out {
		if m := matchRule(a.cfg.KeywordRules, tx); m != nil {
			results[tx.ID] = labelResult{
				category:   m.Category,
				source:     domain.SourceRule,
				confidence: 1.0,
				reason:     m.Reason,
			}
			continue
		}
		pending = append(pending, tx)
	}

	if err := a.classifyPending(ctx, pending, results); err != nil {
		return nil, err
	}

	// Merge by transaction id, preserving input order. Batches may have
	// completed in any order; this step makes the output deterministic.
	for i := range out {
		res, ok := results[out[i].ID]
		if !ok {
			// Should be unreachable: every pending id gets at least the
			// fallback result.
			res = a.fallbackResult("no classification result merged")
		}
		out[i].Category = res.category
		out[i].Source = res.source
		out[i].Confidence = res.confidence
	}

	a.recordDecisions(ctx, out, results)
	return out, nil
}

// classifyPending dispatches the unlabeled transactions in batches. Batches
// run concurrently under a bounded pool; each writes its labels into results
// under the mutex. A batch that exhausts its retries degrades to the fallback
// path instead of failing the run.
func (a *Adapter) classifyPending(ctx context.Context, pending []domain.Transaction, results map[string]labelResult) error {
	if len(pending) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)

	for _, batch := range chunk(pending, a.cfg.BatchSize) {
		g.Go(func() error {
			labels, err := a.classifyBatch(gctx, batch)
			if err != nil {
				// Only cancellation propagates; everything else already
				// degraded inside classifyBatch.
				return err
			}
			mu.Lock()
			for id, res := range labels {
				results[id] = res
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// classifyBatch calls the reasoning service for one batch with retry and
// per-call timeout, then validates the returned labels. On exhausted retries
// the whole batch falls back; on per-id protocol violations only the affected
// ids fall back.
func (a *Adapter) classifyBatch(ctx context.Context, batch []domain.Transaction) (map[string]labelResult, error) {
	req := Request{
		Transactions: batch,
		Categories:   a.cfg.Categories,
		RuleText:     a.cfg.RuleText,
	}

	resp, err := a.callWithRetry(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Int("batch_size", len(batch)).
			Msg("classification batch degraded to fallback")

		out := make(map[string]labelResult, len(batch))
		for _, tx := range batch {
			out[tx.ID] = a.fallbackResult(fmt.Sprintf("reasoning service unavailable: %v", err))
		}
		return out, nil
	}

	out := make(map[string]labelResult, len(batch))
	for _, tx := range batch {
		label, ok := resp.Labels[tx.ID]
		if !ok {
			perr := &domain.ClassificationProtocolError{TransactionID: tx.ID, Reason: "no label in response"}
			res := a.fallbackResult(perr.Error())
			res.raw = audit.Excerpt(resp.Raw)
			out[tx.ID] = res
			continue
		}
		canonical, ok := a.vocab[normalizeCategory(label)]
		if !ok {
			perr := &domain.ClassificationProtocolError{TransactionID: tx.ID, Reason: fmt.Sprintf("label %q outside vocabulary", label)}
			res := a.fallbackResult(perr.Error())
			res.raw = audit.Excerpt(resp.Raw)
			out[tx.ID] = res
			continue
		}
		out[tx.ID] = labelResult{
			category:   canonical,
			source:     domain.SourceAI,
			confidence: 0.9,
			raw:        audit.Excerpt(resp.Raw),
		}
	}
	return out, nil
}

// callWithRetry retries transient failures with exponential backoff, bounded
// by MaxAttempts. Non-transient errors stop immediately.
func (a *Adapter) callWithRetry(ctx context.Context, req Request) (Response, error) {
	var resp Response

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout.Std())
		defer cancel()

		r, err := a.reasoner.Classify(callCtx, req)
		if err != nil {
			if domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(a.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (a *Adapter) fallbackResult(reason string) labelResult {
	return labelResult{
		category:   a.cfg.FallbackCategory,
		source:     domain.SourceFallback,
		confidence: 0,
		reason:     reason,
	}
}

// recordDecisions appends one audit entry per transaction, in output order.
// A failed append never aborts the run, but it must not pass silently: the
// audit trail is the traceability record.
func (a *Adapter) recordDecisions(ctx context.Context, out []domain.Transaction, results map[string]labelResult) {
	for _, tx := range out {
		res := results[tx.ID]
		err := a.log.Record(audit.Entry{
			Kind:          audit.KindClassification,
			TransactionID: tx.ID,
			Description:   tx.Description,
			Category:      tx.Category,
			Source:        tx.Source,
			Confidence:    tx.Confidence,
			Reasoning:     res.reason,
			RawResponse:   res.raw,
			Flagged:       tx.Source == domain.SourceFallback,
		})
		if err != nil {
			log := logger.FromContext(ctx)
			log.Warn().
				Err(err).
				Str("transaction_id", tx.ID).
				Msg("audit append failed")
		}
	}
}

// chunk splits txs into batches of at most size, preserving order.
func chunk(txs []domain.Transaction, size int) [][]domain.Transaction {
	if size <= 0 {
		size = len(txs)
	}
	var batches [][]domain.Transaction
	for start := 0; start < len(txs); start += size {
		end := start + size
		if end > len(txs) {
			end = len(txs)
		}
		batches = append(batches, txs[start:end])
	}
	return batches
}

// normalizeCategory uppercases and trims a category name so vocabulary
// matching tolerates case and whitespace drift in model output.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
