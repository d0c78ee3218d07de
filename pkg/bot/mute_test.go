package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/sadbox/boltbot/pkg/mutes"
)

func TestMuteAndUnmute(t *testing.T) {
	b, fr := newTestBot(t, alice)
	ctx := context.Background()
	if err := b.store.SetMuteRole(ctx, testGuild, muteRole); err != nil {
		t.Fatalf("SetMuteRole: %v", err)
	}

	r := b.mute(ctx, testInvocation(), alice, "2h", "spamming")
	if isFailure(r) {
		t.Fatalf("mute failed: %+v", replyEmbed(t, r))
	}
	embed := replyEmbed(t, r)
	if want := "Muted `alice` (`101`)"; embed.Title != want {
		t.Errorf("Title = %q, want %q", embed.Title, want)
	}
	if !strings.Contains(embed.Description, "in 2 hours") {
		t.Errorf("Description = %q, should mention the remaining time", embed.Description)
	}
	if r.eventLog == nil || r.eventLog.Title != "Member Muted" {
		t.Errorf("eventLog = %+v, want a Member Muted entry", r.eventLog)
	}
	if !fr.hasRole(userA, muteRole) {
		t.Error("mute role not added")
	}
	m, ok, err := b.store.ActiveMute(ctx, testGuild, userA)
	if err != nil || !ok {
		t.Fatalf("ActiveMute = %v, %v", ok, err)
	}

	// The member now has the role, so a second mute is refused.
	if r := b.mute(ctx, testInvocation(), alice, "1h", ""); !isFailure(r) {
		t.Error("second mute should fail")
	}

	r = b.unmute(ctx, testInvocation(), alice)
	if isFailure(r) {
		t.Fatalf("unmute failed: %+v", replyEmbed(t, r))
	}
	if got := replyEmbed(t, r).Description; !strings.Contains(got, fmt.Sprintf("#`%d`", m.InfractionID)) {
		t.Errorf("Description = %q, should name infraction %d", got, m.InfractionID)
	}
	if fr.hasRole(userA, muteRole) {
		t.Error("mute role not removed")
	}
	if _, ok, _ := b.store.ActiveMute(ctx, testGuild, userA); ok {
		t.Error("mute still active after unmute")
	}
}

func TestMuteFailures(t *testing.T) {
	tests := []struct {
		name     string
		setRole  bool
		target   discord.User
		expiry   string
		contains string
	}{
		{"no mute role", false, alice, "1h", "/muterole set"},
		{"unparseable expiry", true, alice, "soon", "Couldn't read `soon`"},
		{"zero duration", true, alice, "0m", "Couldn't read"},
		{"not a member", true, bob, "1h", "not a member"},
		{"self", true, mod, "1h", "yourself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, fr := newTestBot(t, alice)
			ctx := context.Background()
			if tt.setRole {
				b.store.SetMuteRole(ctx, testGuild, muteRole)
			}
			r := b.mute(ctx, testInvocation(), tt.target, tt.expiry, "")
			if !isFailure(r) {
				t.Fatalf("mute succeeded, want failure")
			}
			if got := replyEmbed(t, r).Description; !strings.Contains(got, tt.contains) {
				t.Errorf("Description = %q, want it to contain %q", got, tt.contains)
			}
			if r.eventLog != nil {
				t.Error("failed mute should not be logged")
			}
			if fr.hasRole(tt.target.ID, muteRole) {
				t.Error("mute role added despite failure")
			}
		})
	}
}

func TestUnmuteWithoutMute(t *testing.T) {
	b, _ := newTestBot(t, alice)
	b.store.SetMuteRole(context.Background(), testGuild, muteRole)
	r := b.unmute(context.Background(), testInvocation(), alice)
	if !isFailure(r) || !strings.Contains(replyEmbed(t, r).Description, "no active mute") {
		t.Errorf("unmute = %+v, want a no active mute failure", replyEmbed(t, r))
	}
}

func TestSetMuteRole(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	if r := b.setMuteRole(ctx, testInvocation(), discord.Role{ID: testGuild}); !isFailure(r) {
		t.Error("@everyone should be rejected")
	}
	if r := b.setMuteRole(ctx, testInvocation(), discord.Role{ID: 901, Managed: true}); !isFailure(r) {
		t.Error("managed role should be rejected")
	}
	if r := b.setMuteRole(ctx, testInvocation(), discord.Role{ID: muteRole}); isFailure(r) {
		t.Fatalf("setMuteRole failed: %+v", replyEmbed(t, r))
	}
	got, ok, err := b.store.GetMuteRole(ctx, testGuild)
	if err != nil || !ok || got != muteRole {
		t.Errorf("GetMuteRole = %d, %v, %v; want %d", got, ok, err, muteRole)
	}
	show := replyEmbed(t, b.handleMuteRoleShow(ctx, testInvocation(), discord.SlashCommandInteractionData{}))
	if !strings.Contains(show.Description, "<@&900>") {
		t.Errorf("show Description = %q, want the role mention", show.Description)
	}
}

func TestUserError(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := &Bot{now: func() time.Time { return now }}
	tests := []struct {
		err      error
		ok       bool
		contains string
	}{
		{&mutes.ActiveMuteError{InfractionID: 7, Expiry: now.Add(3 * time.Hour)}, true, "#`7`, expiring in 3 hours"},
		{fmt.Errorf("muting: %w", mutes.ErrNoMuteRole), true, "No mute role"},
		{mutes.ErrMuteRoleMissing, true, "no longer exists"},
		{mutes.ErrAlreadyMuted, true, "already has the mute role"},
		{mutes.ErrMemberNotFound, true, "not a member"},
		{mutes.ErrNotMuted, true, "no active mute"},
		{mutes.ErrExpiryNotInFuture, true, "future"},
		{mutes.ErrInfractionNotFound, true, "no infraction"},
		{errors.New("database is locked"), false, ""},
	}
	for _, tt := range tests {
		msg, ok := b.userError(tt.err)
		if ok != tt.ok {
			t.Errorf("userError(%v) ok = %v, want %v", tt.err, ok, tt.ok)
		}
		if !strings.Contains(msg, tt.contains) {
			t.Errorf("userError(%v) = %q, want it to contain %q", tt.err, msg, tt.contains)
		}
	}
}
