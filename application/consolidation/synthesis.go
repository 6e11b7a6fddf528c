package consolidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
)

// Synthesis is the textual output composed for one group
type Synthesis struct {
	Title    string
	Content  string
	Insights []string
}

// Synthesize composes a deterministic summary from the group and its
// extracted patterns. When patterns are missing (the extraction stage
// failed), the summary falls back to the raw candidate data alone.
func Synthesize(group *entities.Group, patterns *GroupPatterns, cfg *config.DomainConfig) Synthesis {
	insights := deriveInsights(group, patterns, cfg)

	var b strings.Builder
	fmt.Fprintf(&b, "Consolidated %d related memories spanning %s.",
		group.Size(), humanSpan(group.Span()))

	if domains := group.CommonDomains(); len(domains) > 0 {
		fmt.Fprintf(&b, " Primary domains: %s.", strings.Join(domains, ", "))
	}
	if patterns != nil {
		if ps := patterns.Patterns(); len(ps) > 0 {
			fmt.Fprintf(&b, " Patterns: %s.", strings.Join(topN(ps, 3), "; "))
		}
	}
	if len(insights) > 0 {
		fmt.Fprintf(&b, " Insights: %s.", strings.Join(topN(insights, 3), "; "))
	}
	fmt.Fprintf(&b, " Group coherence %.2f.", group.Coherence().Value())

	return Synthesis{
		Title:    synthesizeTitle(group, patterns),
		Content:  b.String(),
		Insights: insights,
	}
}

// Enhance optionally rewrites the deterministic content with a synthesizer.
// Any failure leaves the deterministic synthesis untouched.
func Enhance(ctx context.Context, s Synthesis, synth ports.Synthesizer) Synthesis {
	if synth == nil {
		return s
	}
	prompt := "Rewrite this memory consolidation summary as flowing prose, preserving every fact:\n" + s.Content
	enhanced, err := synth.Synthesize(ctx, prompt)
	if err != nil || strings.TrimSpace(enhanced) == "" {
		return s
	}
	s.Content = strings.TrimSpace(enhanced)
	return s
}

func synthesizeTitle(group *entities.Group, patterns *GroupPatterns) string {
	if patterns != nil && len(patterns.RecurringTags) > 0 {
		return "Recurring theme: " + patterns.RecurringTags[0]
	}
	if domains := group.CommonDomains(); len(domains) > 0 {
		return "Consolidated memories: " + strings.Join(topN(domains, 2), ", ")
	}
	return fmt.Sprintf("Consolidated memories (%d)", group.Size())
}

func deriveInsights(group *entities.Group, patterns *GroupPatterns, cfg *config.DomainConfig) []string {
	var insights []string
	if patterns == nil {
		return insights
	}
	if len(patterns.RecurringTags) > 0 {
		insights = append(insights, fmt.Sprintf("%d recurring themes across %d memories",
			len(patterns.RecurringTags), group.Size()))
	}
	if patterns.ImportanceTrend == "increasing" {
		insights = append(insights, "this topic is gaining importance over time")
	}
	if patterns.ImportanceTrend == "decreasing" {
		insights = append(insights, "this topic is fading in importance")
	}
	if patterns.DomainConvergence {
		insights = append(insights, fmt.Sprintf("at least %d domains converge here", cfg.DomainConvergenceMin))
	}
	if patterns.FrequentlyRevisited {
		insights = append(insights, "these memories are revisited often")
	}
	return insights
}

func humanSpan(span time.Duration) string {
	days := int(span.Hours() / 24)
	switch {
	case days < 1:
		return "less than a day"
	case days == 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}

func topN(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
