package bot

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type botStats struct {
	Platform    string
	Kernel      string
	CPUs        int
	CPUPercent  float64
	MemPercent  float64
	MemUsed     uint64
	MemTotal    uint64
	Goroutines  int
	DBSize      int64
	ActiveMutes int
	Uptime      time.Duration
}

func (b *Bot) handleStats(ctx context.Context, _ invocation, _ discord.SlashCommandInteractionData) reply {
	return embedReply(statsEmbed(b.collectStats(ctx), b.now()))
}

// collectStats never fails; values that cannot be read stay zero.
func (b *Bot) collectStats(ctx context.Context) botStats {
	s := botStats{
		Goroutines: runtime.NumGoroutine(),
		Uptime:     b.now().Sub(b.started),
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.CPUs = n
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemPercent, s.MemUsed, s.MemTotal = vm.UsedPercent, vm.Used, vm.Total
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		s.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		s.Kernel = info.KernelVersion
	}
	if size, err := b.store.Size(); err == nil {
		s.DBSize = size
	} else {
		b.Log.Warn("Failed to read database size", "error", err)
	}
	if n, err := b.store.CountActiveMutes(ctx); err == nil {
		s.ActiveMutes = n
	} else {
		b.Log.Warn("Failed to count active mutes", "error", err)
	}
	return s
}

func statsEmbed(s botStats, now time.Time) discord.Embed {
	inline := boolPtr(true)
	return discord.Embed{
		Title: "Statistics",
		Color: colorBlue,
		Fields: []discord.EmbedField{
			{Name: "💻 OS", Value: orUnknown(s.Platform), Inline: inline},
			{Name: "🔧 Kernel", Value: orUnknown(s.Kernel), Inline: inline},
			{Name: "🐹 Go", Value: runtime.Version(), Inline: inline},
			{Name: "🔼 CPUs", Value: fmt.Sprintf("%d", s.CPUs), Inline: inline},
			{Name: "🔥 CPU usage", Value: fmt.Sprintf("%.1f%%", s.CPUPercent), Inline: inline},
			{Name: "🧠 Memory", Value: fmt.Sprintf("%.1f%% (%s / %s)", s.MemPercent, humanize.IBytes(s.MemUsed), humanize.IBytes(s.MemTotal)), Inline: inline},
			{Name: "🗃️ Database", Value: humanize.Bytes(uint64(s.DBSize)), Inline: inline},
			{Name: "🔇 Active mutes", Value: humanize.Comma(int64(s.ActiveMutes)), Inline: inline},
			{Name: "🚀 Goroutines", Value: fmt.Sprintf("%d", s.Goroutines), Inline: inline},
			{Name: "⏱️ Uptime", Value: naturalDelta(s.Uptime), Inline: inline},
		},
		Footer: &discord.EmbedFooter{Text: "as of " + formatTimestamp(now) + " UTC"},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
