package bot

import (
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/botutil"
	"github.com/sadbox/boltbot/pkg/store"
	"github.com/sadbox/boltbot/pkg/testutil"
)

const (
	testGuild  snowflake.ID = 1013566342345019512
	logChannel snowflake.ID = 1015659489610960987
	muteRole   snowflake.ID = 900
	userA      snowflake.ID = 101
	userB      snowflake.ID = 102
	moderator  snowflake.ID = 300
)

var errRefused = errors.New("403 Forbidden: Missing Permissions")

type ban struct {
	UserID snowflake.ID
	Prune  time.Duration
}

// fakeRest is an in-memory Discord guild behind the REST calls the bot makes.
type fakeRest struct {
	mu       sync.Mutex
	roles    []discord.Role
	members  map[snowflake.ID]*discord.Member
	users    map[snowflake.ID]discord.User
	posted   []snowflake.ID
	kicked   []snowflake.ID
	banned   []ban
	kickErr  error
	banErr   error
	postErrs int
}

func newFakeRest(users ...discord.User) *fakeRest {
	f := &fakeRest{
		roles:   []discord.Role{{ID: testGuild, Name: "@everyone"}, {ID: muteRole, Name: "Muted"}},
		members: make(map[snowflake.ID]*discord.Member),
		users:   make(map[snowflake.ID]discord.User),
	}
	for _, u := range users {
		f.members[u.ID] = &discord.Member{User: u}
		f.users[u.ID] = u
	}
	return f
}

func notFound() error {
	return &rest.Error{Response: &http.Response{StatusCode: http.StatusNotFound}}
}

func (f *fakeRest) GetMember(_, userID snowflake.ID, _ ...rest.RequestOpt) (*discord.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return nil, notFound()
	}
	cp := *m
	cp.RoleIDs = slices.Clone(m.RoleIDs)
	return &cp, nil
}

func (f *fakeRest) GetRoles(_ snowflake.ID, _ ...rest.RequestOpt) ([]discord.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.roles), nil
}

func (f *fakeRest) AddMemberRole(_, userID, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return notFound()
	}
	m.RoleIDs = append(m.RoleIDs, roleID)
	return nil
}

func (f *fakeRest) RemoveMemberRole(_, userID, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return notFound()
	}
	m.RoleIDs = slices.DeleteFunc(m.RoleIDs, func(id snowflake.ID) bool { return id == roleID })
	return nil
}

func (f *fakeRest) GetUser(userID snowflake.ID, _ ...rest.RequestOpt) (*discord.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, notFound()
	}
	return &u, nil
}

func (f *fakeRest) CreateMessage(channelID snowflake.ID, msg discord.MessageCreate, _ ...rest.RequestOpt) (*discord.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErrs > 0 {
		f.postErrs--
		return nil, errors.New("502 Bad Gateway")
	}
	f.posted = append(f.posted, channelID)
	return &discord.Message{ChannelID: channelID, Embeds: msg.Embeds}, nil
}

func (f *fakeRest) RemoveMember(_, userID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kickErr != nil {
		return f.kickErr
	}
	f.kicked = append(f.kicked, userID)
	delete(f.members, userID)
	return nil
}

func (f *fakeRest) AddBan(_, userID snowflake.ID, prune time.Duration, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banErr != nil {
		return f.banErr
	}
	f.banned = append(f.banned, ban{userID, prune})
	delete(f.members, userID)
	return nil
}

func (f *fakeRest) hasRole(userID, roleID snowflake.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	return ok && slices.Contains(m.RoleIDs, roleID)
}

func (f *fakeRest) leave(userID snowflake.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, userID)
}

// Users without a legacy tag carry discriminator "0", as Discord sends them.
var (
	alice = discord.User{ID: userA, Username: "alice", Discriminator: "0"}
	bob   = discord.User{ID: userB, Username: "bob", Discriminator: "0"}
	mod   = discord.User{ID: moderator, Username: "mod", Discriminator: "0"}
)

func newTestBot(t *testing.T, users ...discord.User) (*Bot, *fakeRest) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "boltbot.db"), testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	b := &Bot{
		BaseBot:        &botutil.BaseBot{Log: testutil.DiscardLogger()},
		store:          db,
		eventLogConfig: map[snowflake.ID]eventLogChannelConfig{testGuild: {ChannelID: logChannel}},
		now:            time.Now,
		started:        time.Now(),
	}
	fr := newFakeRest(append(users, mod)...)
	b.wire(fr)
	return b, fr
}

func testInvocation() invocation {
	return invocation{GuildID: testGuild, ChannelID: 555, User: mod}
}

func replyEmbed(t *testing.T, r reply) discord.Embed {
	t.Helper()
	if len(r.msg.Embeds) != 1 {
		t.Fatalf("reply has %d embeds, want 1", len(r.msg.Embeds))
	}
	return r.msg.Embeds[0]
}

func isFailure(r reply) bool {
	return len(r.msg.Embeds) == 1 && r.msg.Embeds[0].Color == colorRed
}
