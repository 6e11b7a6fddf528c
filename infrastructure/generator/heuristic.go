// Package generator provides heuristic perspective generators. They reflect
// on candidates with lexical and temporal rules only, so reflection works
// without any model service. Each declares the capabilities it serves.
package generator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
)

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

var positiveWords = map[string]bool{
	"accomplished": true, "achieved": true, "delighted": true, "excellent": true,
	"excited": true, "glad": true, "good": true, "great": true, "happy": true,
	"improved": true, "love": true, "progress": true, "resolved": true,
	"succeeded": true, "success": true, "wonderful": true,
}

var negativeWords = map[string]bool{
	"angry": true, "anxious": true, "bad": true, "blocked": true, "broken": true,
	"failed": true, "failure": true, "frustrated": true, "regret": true,
	"sad": true, "stressed": true, "stuck": true, "terrible": true,
	"worried": true, "worse": true, "wrong": true,
}

// Analytical examines structure: length, specificity, open questions
type Analytical struct{}

var _ ports.PerspectiveGenerator = (*Analytical)(nil)

// NewAnalytical creates the analytical generator
func NewAnalytical() *Analytical { return &Analytical{} }

// ID identifies the generator
func (g *Analytical) ID() string { return "heuristic-analytical" }

// Capabilities declares what this generator serves
func (g *Analytical) Capabilities() []ports.Capability {
	return []ports.Capability{ports.CapabilityAnalytical}
}

// Reflect produces one analysis fragment
func (g *Analytical) Reflect(ctx context.Context, candidate *entities.Candidate, hints map[string]interface{}) ([]*entities.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := candidate.Content()
	words := strings.Fields(content)
	sentences := sentenceSplit.Split(content, -1)

	var questions []string
	for _, s := range sentences {
		if strings.Contains(s, "?") {
			questions = append(questions, strings.TrimSpace(s))
		}
	}

	// longer, multi-sentence memories carry more analyzable structure
	richness := clamp01(float64(len(words)) / 120.0)
	specificity := clamp01(float64(len(candidate.Tags())+len(candidate.Domains())) / 6.0)

	summary := fmt.Sprintf("Memory spans %d words across %d sentences in domains [%s].",
		len(words), len(sentences), strings.Join(candidate.Domains(), ", "))
	if len(questions) > 0 {
		summary += fmt.Sprintf(" Contains %d unresolved question(s).", len(questions))
	}

	fragment, err := entities.NewFragment(entities.FragmentParams{
		GeneratorID: g.ID(),
		CandidateID: candidate.ID(),
		Content:     summary,
		Kind:        entities.KindAnalysis,
		Confidence:  0.4 + 0.4*richness,
		Relevance:   0.5 + 0.3*specificity,
		Coherence:   0.5 + 0.3*richness,
		Questions:   questions,
		SignalTag:   "structure",
		Modulation:  0.2*richness + 0.2*specificity,
	})
	if err != nil {
		return nil, err
	}
	return []*entities.Fragment{fragment}, nil
}

// Pattern looks for recurring tags and lexical repetition
type Pattern struct{}

var _ ports.PerspectiveGenerator = (*Pattern)(nil)

// NewPattern creates the pattern generator
func NewPattern() *Pattern { return &Pattern{} }

// ID identifies the generator
func (g *Pattern) ID() string { return "heuristic-pattern" }

// Capabilities declares what this generator serves
func (g *Pattern) Capabilities() []ports.Capability {
	return []ports.Capability{ports.CapabilityPattern, ports.CapabilityConnection}
}

// Reflect produces a pattern fragment from repeated terms and tags
func (g *Pattern) Reflect(ctx context.Context, candidate *entities.Candidate, hints map[string]interface{}) ([]*entities.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repeats := repeatedTerms(candidate.Content(), 3)
	patterns := make([]string, 0, len(repeats))
	for _, term := range repeats {
		patterns = append(patterns, "recurring term: "+term)
	}

	connections := make([]string, 0, len(candidate.Tags()))
	for _, tag := range candidate.Tags() {
		connections = append(connections, "tagged: "+tag)
	}

	strength := clamp01(float64(len(repeats))/4.0 + float64(len(connections))/10.0)
	content := "No strong repetition detected in this memory."
	if len(repeats) > 0 {
		content = fmt.Sprintf("Recurring terms suggest a theme: %s.", strings.Join(repeats, ", "))
	}

	fragment, err := entities.NewFragment(entities.FragmentParams{
		GeneratorID: g.ID(),
		CandidateID: candidate.ID(),
		Content:     content,
		Kind:        entities.KindPattern,
		Confidence:  0.3 + 0.5*strength,
		Relevance:   0.4 + 0.4*strength,
		Coherence:   0.6,
		Patterns:    patterns,
		Connections: connections,
		SignalTag:   "repetition",
		Modulation:  0.4 * strength,
	})
	if err != nil {
		return nil, err
	}
	return []*entities.Fragment{fragment}, nil
}

// Temporal relates the memory's age and access history to its importance
type Temporal struct {
	now func() time.Time
}

var _ ports.PerspectiveGenerator = (*Temporal)(nil)

// NewTemporal creates the temporal generator
func NewTemporal() *Temporal {
	return &Temporal{now: time.Now}
}

// ID identifies the generator
func (g *Temporal) ID() string { return "heuristic-temporal" }

// Capabilities declares what this generator serves
func (g *Temporal) Capabilities() []ports.Capability {
	return []ports.Capability{ports.CapabilityTemporal, ports.CapabilityEmotional}
}

// Reflect produces an insight fragment about recency, access and tone
func (g *Temporal) Reflect(ctx context.Context, candidate *entities.Candidate, hints map[string]interface{}) ([]*entities.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := g.now()
	ageDays := now.Sub(candidate.OccurredAt()).Hours() / 24
	idleDays := now.Sub(candidate.LastAccessedAt()).Hours() / 24

	freshness := clamp01(1 - ageDays/90)
	engagement := clamp01(float64(candidate.AccessCount()) / 10.0)
	valence := lexicalValence(candidate.Content())

	var recommendations []string
	if idleDays > 30 && candidate.Importance().Value() > 0.6 {
		recommendations = append(recommendations, "revisit: important memory untouched for over a month")
	}

	content := fmt.Sprintf("Memory is %.0f days old, last accessed %.0f days ago, %d total accesses.",
		ageDays, idleDays, candidate.AccessCount())

	fragment, err := entities.NewFragment(entities.FragmentParams{
		GeneratorID:     g.ID(),
		CandidateID:     candidate.ID(),
		Content:         content,
		Kind:            entities.KindInsight,
		Confidence:      0.7,
		Relevance:       0.3 + 0.4*freshness + 0.3*engagement,
		Coherence:       0.7,
		Recommendations: recommendations,
		SignalTag:       "recency",
		Modulation:      0.5*freshness + 0.3*engagement - 0.2,
		Valence:         &valence,
	})
	if err != nil {
		return nil, err
	}
	return []*entities.Fragment{fragment}, nil
}

// repeatedTerms returns terms of four or more letters appearing at least
// minCount times, most frequent first
func repeatedTerms(text string, minCount int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) >= 4 {
			counts[word]++
		}
	}

	var terms []string
	for word, n := range counts {
		if n >= minCount {
			terms = append(terms, word)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	return terms
}

// lexicalValence scores tone in [-1,1] from sentiment word counts
func lexicalValence(text string) float64 {
	var pos, neg int
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if positiveWords[word] {
			pos++
		}
		if negativeWords[word] {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	return float64(pos-neg) / float64(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
