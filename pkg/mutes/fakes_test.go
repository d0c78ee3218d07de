package mutes

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/store"
	"github.com/sadbox/boltbot/pkg/testutil"
)

const (
	testGuild snowflake.ID = 726985544038612993
	muteRole  snowflake.ID = 900
	userA     snowflake.ID = 101
	userB     snowflake.ID = 102
	moderator snowflake.ID = 300
)

type roleChange struct {
	UserID snowflake.ID
	RoleID snowflake.ID
}

// fakeMembers is an in-memory guild with a set of roles and members.
type fakeMembers struct {
	mu        sync.Mutex
	roles     map[snowflake.ID]discord.Role
	members   map[snowflake.ID]*discord.Member
	added     []roleChange
	removed   []roleChange
	removeErr map[snowflake.ID]error
	removedCh chan snowflake.ID
}

func newFakeMembers(users ...snowflake.ID) *fakeMembers {
	f := &fakeMembers{
		roles:     map[snowflake.ID]discord.Role{muteRole: {ID: muteRole, Name: "Muted"}},
		members:   make(map[snowflake.ID]*discord.Member),
		removeErr: make(map[snowflake.ID]error),
		removedCh: make(chan snowflake.ID, 16),
	}
	for _, u := range users {
		f.members[u] = &discord.Member{User: discord.User{ID: u}, GuildID: testGuild}
	}
	return f
}

func (f *fakeMembers) ResolveRole(_ context.Context, _, roleID snowflake.ID) (discord.Role, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[roleID]
	return r, ok, nil
}

func (f *fakeMembers) ResolveMember(_ context.Context, _, userID snowflake.ID) (discord.Member, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return discord.Member{}, false, nil
	}
	cp := *m
	cp.RoleIDs = slices.Clone(m.RoleIDs)
	return cp, true, nil
}

func (f *fakeMembers) AddRole(_ context.Context, member discord.Member, role discord.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, roleChange{member.User.ID, role.ID})
	if m, ok := f.members[member.User.ID]; ok {
		m.RoleIDs = append(m.RoleIDs, role.ID)
	}
	return nil
}

func (f *fakeMembers) RemoveRole(_ context.Context, member discord.Member, role discord.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[member.User.ID]; err != nil {
		return err
	}
	f.removed = append(f.removed, roleChange{member.User.ID, role.ID})
	if m, ok := f.members[member.User.ID]; ok {
		m.RoleIDs = slices.DeleteFunc(m.RoleIDs, func(id snowflake.ID) bool { return id == role.ID })
	}
	f.removedCh <- member.User.ID
	return nil
}

func (f *fakeMembers) removals() []roleChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.removed)
}

func (f *fakeMembers) hasRole(userID, roleID snowflake.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	return ok && slices.Contains(m.RoleIDs, roleID)
}

// countingStore reports every sweep on a channel.
type countingStore struct {
	SweepStore
	sweeps chan struct{}
}

func (c *countingStore) ActiveMutesOrderedByExpiry(ctx context.Context) ([]store.Mute, error) {
	select {
	case c.sweeps <- struct{}{}:
	default:
	}
	return c.SweepStore.ActiveMutesOrderedByExpiry(ctx)
}

type countingRestarter struct {
	mu    sync.Mutex
	count int
}

func (r *countingRestarter) Restart() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func newTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "mutes.db"), testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
