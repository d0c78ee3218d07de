package bot

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/dustin/go-humanize"

	"github.com/sadbox/boltbot/pkg/store"
)

const (
	maxDescriptionLen = 4096
	maxFieldLen       = 1024
	timestampLayout   = "02.01.06 15:04"
)

var infractionEmoji = map[store.InfractionType]string{
	store.InfractionNote:    "📔",
	store.InfractionWarning: "⚠",
	store.InfractionMute:    "🔇",
	store.InfractionKick:    "👢",
	store.InfractionBan:     "🔨",
}

func typeLabel(t store.InfractionType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return infractionEmoji[t] + " " + strings.ToUpper(s[:1]) + s[1:]
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// naturalDelta renders a duration the way a moderator would say it,
// e.g. "3 hours" or "2 days".
func naturalDelta(d time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d.Abs()), "", ""))
}

// limitLines joins lines with newlines. If hidden lines were left out, or
// the result would exceed max bytes, lines are dropped from the end and
// replaced by a count.
func limitLines(lines []string, hidden, max int) string {
	if all := strings.Join(lines, "\n"); hidden == 0 && len(all) <= max {
		return all
	}
	var kept []string
	size := 0
	for i, line := range lines {
		more := fmt.Sprintf("\n… and %d more", len(lines)-i-1+hidden)
		if size+len(line)+len(more) > max {
			break
		}
		kept = append(kept, line)
		size += len(line) + 1
	}
	return strings.Join(append(kept, fmt.Sprintf("… and %d more", len(lines)-len(kept)+hidden)), "\n")
}

// infractionListEmbed lists at most limit infractions. label renders the
// user an infraction is about.
func infractionListEmbed(title string, infractions []store.Infraction, limit int, label func(store.Infraction) string) discord.Embed {
	embed := discord.Embed{Title: title, Color: colorBlue}
	if len(infractions) == 0 {
		embed.Description = "Seems like there's nothing here yet."
		return embed
	}
	shown := infractions[:min(len(infractions), limit)]
	lines := make([]string, 0, len(shown))
	for _, inf := range shown {
		lines = append(lines, fmt.Sprintf("• [`%d`] %s on %s created %s",
			inf.ID, infractionEmoji[inf.Type], label(inf), formatTimestamp(inf.CreatedOn)))
	}
	embed.Description = limitLines(lines, len(infractions)-len(shown), maxDescriptionLen)
	return embed
}

// userInfractionsEmbed groups a user's infractions by type. infractions must
// be ordered by type, as UserInfractions returns them.
func userInfractionsEmbed(userLabel string, infractions []store.Infraction, now time.Time) discord.Embed {
	if len(infractions) == 0 {
		return discord.Embed{
			Title: fmt.Sprintf("No recorded infractions for %s.", userLabel),
			Color: colorBlue,
		}
	}
	latest := slices.MaxFunc(infractions, func(a, b store.Infraction) int {
		return cmp.Or(a.CreatedOn.Compare(b.CreatedOn), cmp.Compare(a.ID, b.ID))
	})
	embed := discord.Embed{
		Title: fmt.Sprintf("Infractions for %s", userLabel),
		Color: colorBlue,
		Footer: &discord.EmbedFooter{
			Text: fmt.Sprintf("total infractions: %d, most recent: #%d at %s",
				len(infractions), latest.ID, formatTimestamp(latest.CreatedOn)),
		},
	}
	for group := range chunkByType(infractions) {
		lines := make([]string, 0, len(group))
		for _, inf := range group {
			lines = append(lines, fmt.Sprintf("• [`%d`] added %s ago", inf.ID, naturalDelta(now.Sub(inf.CreatedOn))))
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  fmt.Sprintf("%s %ss", infractionEmoji[group[0].Type], group[0].Type),
			Value: limitLines(lines, 0, maxFieldLen),
		})
	}
	return embed
}

func chunkByType(infractions []store.Infraction) iter.Seq[[]store.Infraction] {
	return func(yield func([]store.Infraction) bool) {
		start := 0
		for i := 1; i <= len(infractions); i++ {
			if i == len(infractions) || infractions[i].Type != infractions[start].Type {
				if !yield(infractions[start:i]) {
					return
				}
				start = i
			}
		}
	}
}

// infractionDetailEmbed shows one infraction. mute is nil unless the
// infraction is a mute.
func infractionDetailEmbed(inf store.Infraction, mute *store.Mute, userLabel, moderatorLabel string, now time.Time) discord.Embed {
	edited := "never"
	if inf.EditedOn != nil {
		edited = formatTimestamp(*inf.EditedOn)
	}
	embed := discord.Embed{
		Title: fmt.Sprintf("Infraction: `%d`", inf.ID),
		Color: colorBlue,
		Fields: []discord.EmbedField{
			{Name: "User", Value: userLabel, Inline: boolPtr(true)},
			{Name: "Type", Value: typeLabel(inf.Type), Inline: boolPtr(true)},
			{Name: "Creation", Value: formatTimestamp(inf.CreatedOn), Inline: boolPtr(true)},
			{Name: "Last edited", Value: edited, Inline: boolPtr(true)},
		},
		Footer: &discord.EmbedFooter{Text: "Authored by " + moderatorLabel},
	}
	if mute != nil {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name: "Mute", Value: muteStatus(*mute, now), Inline: boolPtr(true),
		})
	}
	embed.Fields = append(embed.Fields, discord.EmbedField{
		Name: "Reason", Value: truncate(cmp.Or(inf.ReasonText(), "*no reason given*"), maxFieldLen),
	})
	return embed
}

func muteStatus(m store.Mute, now time.Time) string {
	switch {
	case !m.Active:
		return fmt.Sprintf("inactive, set to expire %s", formatTimestamp(m.Expiry))
	case m.Expiry.After(now):
		return fmt.Sprintf("active, expires %s (in %s)", formatTimestamp(m.Expiry), naturalDelta(m.Expiry.Sub(now)))
	default:
		return fmt.Sprintf("active, overdue since %s", formatTimestamp(m.Expiry))
	}
}
