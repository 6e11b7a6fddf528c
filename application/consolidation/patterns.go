package consolidation

import (
	"fmt"
	"sort"
	"time"

	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
)

// GroupPatterns is the structured output of pattern extraction for one group
type GroupPatterns struct {
	RecurringTags       []string
	TemporalClass       string
	ImportanceTrend     string
	DomainConvergence   bool
	FrequentlyRevisited bool
}

// Patterns flattens the extraction into the strings stored on the record
func (p GroupPatterns) Patterns() []string {
	var out []string
	for _, tag := range p.RecurringTags {
		out = append(out, "recurring theme: "+tag)
	}
	if p.TemporalClass != "" {
		out = append(out, p.TemporalClass)
	}
	if p.ImportanceTrend != "" {
		out = append(out, "importance "+p.ImportanceTrend)
	}
	if p.DomainConvergence {
		out = append(out, "domain convergence")
	}
	if p.FrequentlyRevisited {
		out = append(out, "frequently revisited")
	}
	return out
}

// ExtractPatterns runs the five extraction passes over a group
func ExtractPatterns(group *entities.Group, cfg *config.DomainConfig) GroupPatterns {
	members := group.Members()
	return GroupPatterns{
		RecurringTags:       recurringTags(members, cfg.RecurringTagRatio),
		TemporalClass:       temporalClass(group.Span()),
		ImportanceTrend:     importanceTrend(members),
		DomainConvergence:   len(group.CommonDomains()) >= cfg.DomainConvergenceMin,
		FrequentlyRevisited: frequentlyRevisited(members, cfg),
	}
}

// recurringTags returns tags present in at least ratio of the members,
// sorted for deterministic output
func recurringTags(members []*entities.Candidate, ratio float64) []string {
	counts := make(map[string]int)
	for _, m := range members {
		for _, tag := range m.Tags() {
			counts[tag]++
		}
	}
	need := ratio * float64(len(members))
	var out []string
	for tag, n := range counts {
		if float64(n) >= need {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func temporalClass(span time.Duration) string {
	switch {
	case span <= 24*time.Hour:
		return "burst"
	case span <= 7*24*time.Hour:
		return "weekly cycle"
	default:
		days := int(span.Hours() / 24)
		return fmt.Sprintf("extended exploration over %d days", days)
	}
}

// importanceTrend compares the first and last member by occurrence order
func importanceTrend(members []*entities.Candidate) string {
	if len(members) < 2 {
		return ""
	}
	ordered := make([]*entities.Candidate, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt().Before(ordered[j].OccurredAt())
	})

	first := ordered[0].Importance().Value()
	last := ordered[len(ordered)-1].Importance().Value()
	switch {
	case last > first:
		return "increasing"
	case last < first:
		return "decreasing"
	default:
		return ""
	}
}

func frequentlyRevisited(members []*entities.Candidate, cfg *config.DomainConfig) bool {
	var above int
	for _, m := range members {
		if m.AccessCount() > cfg.FrequentAccessCount {
			above++
		}
	}
	return float64(above) > cfg.FrequentAccessRatio*float64(len(members))
}
