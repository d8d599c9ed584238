// Package blockstore serves blocked-IP and domain-list decisions from an
// in-memory snapshot backed by durable storage. The request path only ever
// touches the snapshot; writes go through the repository and then reload it.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"gatehouse/internal/config"
	"gatehouse/internal/domain"
	"gatehouse/internal/protection/scorer"
)

// Repository is the durable backend. Implementations live in
// internal/database; tests use an in-memory fake.
type Repository interface {
	ActiveBlocks(ctx context.Context) ([]domain.BlockedIP, error)
	UpsertBlock(ctx context.Context, block domain.BlockedIP) error
	DeleteBlock(ctx context.Context, ipAddress string) (bool, error)
	DeleteExpiredBlocks(ctx context.Context, now time.Time) (int64, error)

	UpsertDomain(ctx context.Context, entry domain.DomainListEntry) error
	DeleteDomain(ctx context.Context, name string) (bool, error)
	ListDomains(ctx context.Context, listType string) ([]domain.DomainListEntry, error)
}

var ErrNotFound = errors.New("blockstore: entry not found")

// blockSnapshot holds per-IP expiries; the zero time marks a permanent block.
type blockSnapshot map[string]time.Time

type domainSnapshot map[string]string

type Store struct {
	repo Repository

	blocks  atomic.Value // blockSnapshot
	domains atomic.Value // domainSnapshot

	reloadGroup singleflight.Group
	now         func() time.Time
}

func New(repo Repository) *Store {
	s := &Store{repo: repo, now: time.Now}
	s.blocks.Store(blockSnapshot{})
	s.domains.Store(domainSnapshot{})
	return s
}

// Load hydrates both snapshots. The caller decides what a failure means;
// at startup it should be fatal so the block check fails closed rather
// than running with an empty list.
func (s *Store) Load(ctx context.Context) error {
	_, err, _ := s.reloadGroup.Do("reload", func() (interface{}, error) {
		return nil, s.doLoad(ctx)
	})
	return err
}

func (s *Store) doLoad(ctx context.Context) error {
	blocks, err := s.repo.ActiveBlocks(ctx)
	if err != nil {
		return fmt.Errorf("load blocked ips: %w", err)
	}

	blockMap := make(blockSnapshot, len(blocks))
	for _, b := range blocks {
		if b.ExpiresAt == nil {
			blockMap[b.IPAddress] = time.Time{}
			continue
		}
		blockMap[b.IPAddress] = *b.ExpiresAt
	}

	entries, err := s.repo.ListDomains(ctx, "")
	if err != nil {
		return fmt.Errorf("load domain lists: %w", err)
	}

	domainMap := make(domainSnapshot, len(entries))
	for _, e := range entries {
		domainMap[e.Domain] = e.ListType
	}

	s.blocks.Store(blockMap)
	s.domains.Store(domainMap)
	return nil
}

// IsBlocked reports whether the IP has a live block. Expired records are
// treated as absent at read time; the sweep deletes them later.
func (s *Store) IsBlocked(ipAddress string) bool {
	expiry, found := s.blocks.Load().(blockSnapshot)[ipAddress]
	if !found {
		return false
	}
	if expiry.IsZero() {
		return true
	}
	return expiry.After(s.now())
}

// DomainList reports the list membership for a registrable email domain.
func (s *Store) DomainList(name string) scorer.ListMembership {
	switch s.domains.Load().(domainSnapshot)[name] {
	case domain.ListTypeBlacklist:
		return scorer.ListBlacklist
	case domain.ListTypeWhitelist:
		return scorer.ListWhitelist
	default:
		return scorer.ListNone
	}
}

// Block records a block for the IP. A zero duration makes it permanent.
func (s *Store) Block(ctx context.Context, ipAddress string, duration time.Duration, reason, actor string) error {
	block := domain.BlockedIP{
		IPAddress: ipAddress,
		Reason:    reason,
		BlockedBy: actor,
		BlockedAt: s.now(),
	}
	if duration > 0 {
		expires := s.now().Add(duration)
		block.ExpiresAt = &expires
	}

	if err := s.repo.UpsertBlock(ctx, block); err != nil {
		return fmt.Errorf("persist block: %w", err)
	}
	return s.Load(ctx)
}

func (s *Store) Unblock(ctx context.Context, ipAddress string) error {
	found, err := s.repo.DeleteBlock(ctx, ipAddress)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return s.Load(ctx)
}

// Blacklist puts the domain on the blacklist, replacing any whitelist entry:
// a domain is on at most one list at a time.
func (s *Store) Blacklist(ctx context.Context, name, reason, actor string) error {
	return s.upsertDomain(ctx, name, domain.ListTypeBlacklist, reason, actor)
}

// Whitelist puts the domain on the whitelist, replacing any blacklist entry.
func (s *Store) Whitelist(ctx context.Context, name, reason, actor string) error {
	return s.upsertDomain(ctx, name, domain.ListTypeWhitelist, reason, actor)
}

func (s *Store) upsertDomain(ctx context.Context, name, listType, reason, actor string) error {
	entry := domain.DomainListEntry{
		Domain:   name,
		ListType: listType,
		Reason:   reason,
		AddedBy:  actor,
		AddedAt:  s.now(),
	}

	if err := s.repo.UpsertDomain(ctx, entry); err != nil {
		return fmt.Errorf("persist domain list entry: %w", err)
	}
	return s.Load(ctx)
}

func (s *Store) RemoveDomain(ctx context.Context, name string) error {
	found, err := s.repo.DeleteDomain(ctx, name)
	if err != nil {
		return fmt.Errorf("delete domain list entry: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return s.Load(ctx)
}

// StartRefreshRoutine reloads the snapshots and sweeps expired blocks until
// ctx is done. Reloading on an interval keeps instances convergent when an
// admin acts on a different instance.
func (s *Store) StartRefreshRoutine(ctx context.Context) {
	interval := config.GetBlockRefreshInterval()
	updates := config.BlockRefreshIntervalUpdates()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case newInterval := <-updates:
			if newInterval <= 0 || newInterval == interval {
				continue
			}
			interval = newInterval
			ticker.Reset(interval)
		case <-ticker.C:
			if removed, err := s.repo.DeleteExpiredBlocks(ctx, s.now()); err != nil {
				log.Warn("Block store: expired sweep failed", "error", err)
			} else if removed > 0 {
				log.Info("Block store: swept expired blocks", "removed", removed)
			}

			if err := s.Load(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Error("Block store: refresh failed", "error", err)
			}
		}
	}
}
