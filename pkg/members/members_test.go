package members

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/boltbot/pkg/testutil"
)

const testGuild snowflake.ID = 726985544038612993

func notFound() error {
	return &rest.Error{Response: &http.Response{StatusCode: http.StatusNotFound}}
}

type fakeClient struct {
	roles       []discord.Role
	members     map[snowflake.ID]discord.Member
	users       map[snowflake.ID]discord.User
	err         error
	userCalls   int
	roleChanges []string
}

func (f *fakeClient) GetMember(_, userID snowflake.ID, _ ...rest.RequestOpt) (*discord.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[userID]
	if !ok {
		return nil, notFound()
	}
	return &m, nil
}

func (f *fakeClient) GetRoles(_ snowflake.ID, _ ...rest.RequestOpt) ([]discord.Role, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roles, nil
}

func (f *fakeClient) AddMemberRole(guildID, userID, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.roleChanges = append(f.roleChanges, fmt.Sprintf("+%d/%d/%d", guildID, userID, roleID))
	return f.err
}

func (f *fakeClient) RemoveMemberRole(guildID, userID, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.roleChanges = append(f.roleChanges, fmt.Sprintf("-%d/%d/%d", guildID, userID, roleID))
	return f.err
}

func (f *fakeClient) GetUser(userID snowflake.ID, _ ...rest.RequestOpt) (*discord.User, error) {
	f.userCalls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, notFound()
	}
	return &u, nil
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"404", notFound(), true},
		{"wrapped 404", fmt.Errorf("fetching: %w", notFound()), true},
		{"403", &rest.Error{Response: &http.Response{StatusCode: http.StatusForbidden}}, false},
		{"no response", &rest.Error{}, false},
		{"other error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveRole(t *testing.T) {
	fc := &fakeClient{roles: []discord.Role{{ID: 1, Name: "everyone"}, {ID: 2, Name: "Muted"}}}
	s := New(fc, testutil.DiscardLogger())
	ctx := context.Background()

	r, ok, err := s.ResolveRole(ctx, testGuild, 2)
	if err != nil || !ok {
		t.Fatalf("ResolveRole(2) = %v, %v", ok, err)
	}
	if r.Name != "Muted" {
		t.Errorf("Name = %q, want %q", r.Name, "Muted")
	}
	if _, ok, err := s.ResolveRole(ctx, testGuild, 3); ok || err != nil {
		t.Errorf("ResolveRole(3) = %v, %v; want not found", ok, err)
	}

	fc.err = errors.New("rate limited")
	if _, _, err := s.ResolveRole(ctx, testGuild, 2); err == nil {
		t.Error("ResolveRole should surface non-404 errors")
	}
}

func TestResolveMember(t *testing.T) {
	fc := &fakeClient{members: map[snowflake.ID]discord.Member{
		10: {User: discord.User{ID: 10, Username: "alice"}},
	}}
	s := New(fc, testutil.DiscardLogger())
	ctx := context.Background()

	m, ok, err := s.ResolveMember(ctx, testGuild, 10)
	if err != nil || !ok {
		t.Fatalf("ResolveMember(10) = %v, %v", ok, err)
	}
	if m.GuildID != testGuild {
		t.Errorf("GuildID = %d, want %d", m.GuildID, testGuild)
	}
	if _, ok, err := s.ResolveMember(ctx, testGuild, 11); ok || err != nil {
		t.Errorf("ResolveMember(11) = %v, %v; want not found", ok, err)
	}

	// Resolving a member primes the user cache.
	if _, ok, _ := s.User(ctx, 10); !ok {
		t.Error("User(10) should come from the cache")
	}
	if fc.userCalls != 0 {
		t.Errorf("GetUser calls = %d, want 0", fc.userCalls)
	}
}

func TestAddRemoveRole(t *testing.T) {
	fc := &fakeClient{}
	s := New(fc, testutil.DiscardLogger())
	member := discord.Member{User: discord.User{ID: 10}, GuildID: testGuild}
	role := discord.Role{ID: 2}

	if err := s.AddRole(context.Background(), member, role); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	if err := s.RemoveRole(context.Background(), member, role); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	want := []string{
		fmt.Sprintf("+%d/10/2", testGuild),
		fmt.Sprintf("-%d/10/2", testGuild),
	}
	if len(fc.roleChanges) != len(want) {
		t.Fatalf("role changes = %v, want %v", fc.roleChanges, want)
	}
	for i := range want {
		if fc.roleChanges[i] != want[i] {
			t.Errorf("change[%d] = %q, want %q", i, fc.roleChanges[i], want[i])
		}
	}
}

func TestUserCaching(t *testing.T) {
	fc := &fakeClient{users: map[snowflake.ID]discord.User{20: {ID: 20, Username: "bob"}}}
	s := New(fc, testutil.DiscardLogger())
	ctx := context.Background()

	for range 3 {
		u, ok, err := s.User(ctx, 20)
		if err != nil || !ok || u.Username != "bob" {
			t.Fatalf("User(20) = %+v, %v, %v", u, ok, err)
		}
	}
	if fc.userCalls != 1 {
		t.Errorf("GetUser calls = %d, want 1", fc.userCalls)
	}
}

func TestUserLabel(t *testing.T) {
	fc := &fakeClient{users: map[snowflake.ID]discord.User{20: {ID: 20, Username: "bob"}}}
	s := New(fc, testutil.DiscardLogger())
	ctx := context.Background()

	if got, want := s.UserLabel(ctx, 20), "`bob` (`20`)"; got != want {
		t.Errorf("UserLabel(20) = %q, want %q", got, want)
	}
	if got, want := s.UserLabel(ctx, 21), "unknown user (`21`)"; got != want {
		t.Errorf("UserLabel(21) = %q, want %q", got, want)
	}
}
