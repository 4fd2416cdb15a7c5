// Package claims implements the dedup claim store: an idempotency ledger
// keyed by (condition type, condition instance, event kind, recipient).
//
// It is the only cross-process coordination primitive in the service.
// Every "has this already been handled" decision is an insert that the
// backing store's unique index accepts or rejects; nothing here ever does a
// read-then-write existence check on its own.
package claims

import (
	"context"
	"fmt"

	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

// Hooks carries metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnClaimed   func(ct domain.ConditionType, newCount, existingCount int)
	OnRetracted func(ct domain.ConditionType)
}

// Store wraps a ClaimRepository with the claim, batch-claim and retract
// operations the detectors use.
type Store struct {
	repo  repository.ClaimRepository
	hooks Hooks
}

func NewStore(repo repository.ClaimRepository, hooks Hooks) *Store {
	if hooks.OnClaimed == nil {
		hooks.OnClaimed = func(domain.ConditionType, int, int) {}
	}
	if hooks.OnRetracted == nil {
		hooks.OnRetracted = func(domain.ConditionType) {}
	}
	return &Store{repo: repo, hooks: hooks}
}

// Claim attempts to take one slot. It returns true only for the caller whose
// insert created the row; an existing row yields false with a nil error.
func (s *Store) Claim(ctx context.Context, key domain.ClaimKey) (bool, error) {
	ok, err := s.repo.Insert(ctx, key)
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", key.ConditionType, key.InstanceID, err)
	}
	if ok {
		s.hooks.OnClaimed(key.ConditionType, 1, 0)
	} else {
		s.hooks.OnClaimed(key.ConditionType, 0, 1)
	}
	return ok, nil
}

// ClaimBatch claims many slots at once and returns only those this call
// newly claimed, in input order.
//
// Existing claims for the whole candidate set are fetched in one query and
// diffed in memory; the complement is inserted with duplicate-tolerant
// semantics, so a concurrent batch racing for the same slots never errors
// and never double-claims: whichever insert lands first owns the row.
func (s *Store) ClaimBatch(ctx context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	candidates := dedupe(keys)
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := s.repo.FindExisting(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("fetch existing claims: %w", err)
	}
	taken := make(map[domain.ClaimKey]struct{}, len(existing))
	for _, k := range existing {
		taken[k] = struct{}{}
	}

	complement := make([]domain.ClaimKey, 0, len(candidates))
	for _, k := range candidates {
		if _, ok := taken[k]; !ok {
			complement = append(complement, k)
		}
	}
	if len(complement) == 0 {
		s.report(candidates, nil)
		return nil, nil
	}

	inserted, err := s.repo.InsertMany(ctx, complement)
	if err != nil {
		return nil, fmt.Errorf("insert claims: %w", err)
	}

	won := make(map[domain.ClaimKey]struct{}, len(inserted))
	for _, k := range inserted {
		won[k] = struct{}{}
	}
	claimed := make([]domain.ClaimKey, 0, len(won))
	for _, k := range complement {
		if _, ok := won[k]; ok {
			claimed = append(claimed, k)
		}
	}

	s.report(candidates, claimed)
	return claimed, nil
}

// Retract deletes a claim so the slot can be claimed again. Only the
// chat-backlog cleanup uses it; every other claim kind is permanent.
func (s *Store) Retract(ctx context.Context, key domain.ClaimKey) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("retract %s/%s: %w", key.ConditionType, key.InstanceID, err)
	}
	s.hooks.OnRetracted(key.ConditionType)
	return nil
}

// Live lists every claim of one condition type and event kind.
func (s *Store) Live(ctx context.Context, ct domain.ConditionType, kind domain.EventKind) ([]domain.Claim, error) {
	live, err := s.repo.ListByKind(ctx, ct, kind)
	if err != nil {
		return nil, fmt.Errorf("list live claims: %w", err)
	}
	return live, nil
}

func (s *Store) report(candidates, claimed []domain.ClaimKey) {
	byType := make(map[domain.ConditionType][2]int)
	for _, k := range candidates {
		c := byType[k.ConditionType]
		c[1]++
		byType[k.ConditionType] = c
	}
	for _, k := range claimed {
		c := byType[k.ConditionType]
		c[0]++
		c[1]--
		byType[k.ConditionType] = c
	}
	for ct, c := range byType {
		s.hooks.OnClaimed(ct, c[0], c[1])
	}
}

func dedupe(keys []domain.ClaimKey) []domain.ClaimKey {
	seen := make(map[domain.ClaimKey]struct{}, len(keys))
	out := make([]domain.ClaimKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
