package blockstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatehouse/internal/domain"
	"gatehouse/internal/protection/scorer"
)

type fakeRepo struct {
	blocks  map[string]domain.BlockedIP
	domains map[string]domain.DomainListEntry

	failLoad bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		blocks:  make(map[string]domain.BlockedIP),
		domains: make(map[string]domain.DomainListEntry),
	}
}

func (f *fakeRepo) ActiveBlocks(context.Context) ([]domain.BlockedIP, error) {
	if f.failLoad {
		return nil, errors.New("repo down")
	}
	blocks := make([]domain.BlockedIP, 0, len(f.blocks))
	for _, b := range f.blocks {
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (f *fakeRepo) UpsertBlock(_ context.Context, block domain.BlockedIP) error {
	f.blocks[block.IPAddress] = block
	return nil
}

func (f *fakeRepo) DeleteBlock(_ context.Context, ip string) (bool, error) {
	_, found := f.blocks[ip]
	delete(f.blocks, ip)
	return found, nil
}

func (f *fakeRepo) DeleteExpiredBlocks(_ context.Context, now time.Time) (int64, error) {
	var removed int64
	for ip, block := range f.blocks {
		if block.ExpiresAt != nil && !block.ExpiresAt.After(now) {
			delete(f.blocks, ip)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeRepo) UpsertDomain(_ context.Context, entry domain.DomainListEntry) error {
	f.domains[entry.Domain] = entry
	return nil
}

func (f *fakeRepo) DeleteDomain(_ context.Context, name string) (bool, error) {
	_, found := f.domains[name]
	delete(f.domains, name)
	return found, nil
}

func (f *fakeRepo) ListDomains(_ context.Context, listType string) ([]domain.DomainListEntry, error) {
	if f.failLoad {
		return nil, errors.New("repo down")
	}
	entries := make([]domain.DomainListEntry, 0, len(f.domains))
	for _, e := range f.domains {
		if listType == "" || e.ListType == listType {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func TestIsBlocked_PermanentAndTemporary(t *testing.T) {
	repo := newFakeRepo()
	store := New(repo)
	ctx := context.Background()

	if err := store.Block(ctx, "1.1.1.1", 0, "spam wave", "alice"); err != nil {
		t.Fatalf("permanent block failed: %v", err)
	}
	if err := store.Block(ctx, "2.2.2.2", time.Hour, "burst", domain.SystemActor); err != nil {
		t.Fatalf("temporary block failed: %v", err)
	}

	if !store.IsBlocked("1.1.1.1") {
		t.Fatal("permanent block not in effect")
	}
	if !store.IsBlocked("2.2.2.2") {
		t.Fatal("temporary block not in effect")
	}
	if store.IsBlocked("3.3.3.3") {
		t.Fatal("unknown IP reported blocked")
	}
}

func TestIsBlocked_ExpiryAppliesAtReadTime(t *testing.T) {
	repo := newFakeRepo()
	store := New(repo)
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	if err := store.Block(ctx, "1.1.1.1", time.Minute, "short block", "alice"); err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if !store.IsBlocked("1.1.1.1") {
		t.Fatal("fresh block not in effect")
	}

	// No sweep, no reload: the snapshot still carries the row, but the
	// expiry must win at read time.
	current = current.Add(2 * time.Minute)
	if store.IsBlocked("1.1.1.1") {
		t.Fatal("expired block still in effect")
	}
}

func TestBlock_ReblockExtendsInsteadOfErroring(t *testing.T) {
	repo := newFakeRepo()
	store := New(repo)
	ctx := context.Background()

	if err := store.Block(ctx, "1.1.1.1", time.Minute, "first", "alice"); err != nil {
		t.Fatalf("first block failed: %v", err)
	}
	if err := store.Block(ctx, "1.1.1.1", 0, "second", "bob"); err != nil {
		t.Fatalf("re-block failed: %v", err)
	}

	stored := repo.blocks["1.1.1.1"]
	if stored.ExpiresAt != nil {
		t.Fatal("re-block with zero duration should become permanent")
	}
	if stored.BlockedBy != "bob" {
		t.Fatalf("re-block kept actor %q, want bob", stored.BlockedBy)
	}
}

func TestUnblock(t *testing.T) {
	repo := newFakeRepo()
	store := New(repo)
	ctx := context.Background()

	if err := store.Block(ctx, "1.1.1.1", 0, "spam", "alice"); err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if err := store.Unblock(ctx, "1.1.1.1"); err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if store.IsBlocked("1.1.1.1") {
		t.Fatal("unblocked IP still reported blocked")
	}

	if err := store.Unblock(ctx, "9.9.9.9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unblock of unknown IP returned %v, want ErrNotFound", err)
	}
}

func TestDomainList_SingleListInvariant(t *testing.T) {
	repo := newFakeRepo()
	store := New(repo)
	ctx := context.Background()

	if err := store.Blacklist(ctx, "mailinator.com", "disposable", "alice"); err != nil {
		t.Fatalf("blacklist failed: %v", err)
	}
	if got := store.DomainList("mailinator.com"); got != scorer.ListBlacklist {
		t.Fatalf("membership %v, want blacklist", got)
	}

	// Moving the domain to the other list must replace, not duplicate.
	if err := store.Whitelist(ctx, "mailinator.com", "false positive", "bob"); err != nil {
		t.Fatalf("whitelist failed: %v", err)
	}
	if got := store.DomainList("mailinator.com"); got != scorer.ListWhitelist {
		t.Fatalf("membership %v, want whitelist", got)
	}
	if len(repo.domains) != 1 {
		t.Fatalf("domain stored %d times, want 1", len(repo.domains))
	}

	if err := store.RemoveDomain(ctx, "mailinator.com"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if got := store.DomainList("mailinator.com"); got != scorer.ListNone {
		t.Fatalf("membership %v after removal, want none", got)
	}

	if err := store.RemoveDomain(ctx, "unknown.test"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removal of unknown domain returned %v, want ErrNotFound", err)
	}
}

func TestLoad_PropagatesRepositoryFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failLoad = true

	store := New(repo)
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("load against a failing repository should error")
	}
}

func TestLoad_KeepsServingOldSnapshotOnFailure(t *testing.T) {
	repo := newFakeRepo()
	store := New(repo)
	ctx := context.Background()

	if err := store.Block(ctx, "1.1.1.1", 0, "spam", "alice"); err != nil {
		t.Fatalf("block failed: %v", err)
	}

	repo.failLoad = true
	if err := store.Load(ctx); err == nil {
		t.Fatal("expected reload failure")
	}

	if !store.IsBlocked("1.1.1.1") {
		t.Fatal("failed reload wiped the previous snapshot")
	}
}
