package consolidation

import (
	"time"

	"mnemo-backend/domain/config"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/vectors"
)

// Similarity scores a candidate pair in [0,1]: weighted domain overlap, tag
// overlap, temporal proximity and importance agreement, plus an embedding
// cosine contribution when both vectors are present. The sum is capped.
func Similarity(a, b *entities.Candidate, cfg *config.DomainConfig) float64 {
	s := cfg.DomainWeight * jaccard(a.Domains(), b.Domains())
	s += cfg.TagWeight * jaccard(a.Tags(), b.Tags())
	s += cfg.TemporalWeight * temporalProximity(a.OccurredAt(), b.OccurredAt(), cfg.TemporalWindow)

	delta := a.Importance().Value() - b.Importance().Value()
	if delta < 0 {
		delta = -delta
	}
	s += cfg.ImportanceWeight * (1 - delta)

	if a.HasEmbedding() && b.HasEmbedding() {
		if cos := vectors.Cosine(a.Embedding(), b.Embedding()); cos > 0 {
			s += cfg.EmbeddingWeight * cos
		}
	}

	if s > 1 {
		s = 1
	}
	return s
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	var inter int
	for _, s := range b {
		if _, ok := set[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// temporalProximity decays linearly from 1 to 0 across the window
func temporalProximity(a, b time.Time, window time.Duration) float64 {
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	if gap >= window {
		return 0
	}
	return 1 - float64(gap)/float64(window)
}

// Cluster groups candidates with greedy single linkage: walk the input in
// order, seed a group from each unassigned candidate, and pull in every
// later unassigned candidate whose mean similarity to the current members
// clears the threshold. Deterministic for a fixed input order; there is no
// randomness anywhere in the pass.
func Cluster(candidates []*entities.Candidate, cfg *config.DomainConfig) ([]*entities.Group, error) {
	assigned := make([]bool, len(candidates))
	var groups []*entities.Group

	for i := range candidates {
		if assigned[i] {
			continue
		}
		members := []*entities.Candidate{candidates[i]}
		assigned[i] = true

		for j := i + 1; j < len(candidates); j++ {
			if assigned[j] {
				continue
			}
			if len(members) >= cfg.MaxGroupSize {
				break
			}
			if meanSimilarityTo(candidates[j], members, cfg) > cfg.SimilarityThreshold {
				members = append(members, candidates[j])
				assigned[j] = true
			}
		}

		if len(members) < cfg.MinGroupSize {
			continue
		}
		group, err := entities.NewGroup(members, groupCoherence(members, cfg), cfg.MinGroupSize)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func meanSimilarityTo(c *entities.Candidate, members []*entities.Candidate, cfg *config.DomainConfig) float64 {
	var sum float64
	for _, m := range members {
		sum += Similarity(c, m, cfg)
	}
	return sum / float64(len(members))
}

// groupCoherence is the mean pairwise similarity across the members
func groupCoherence(members []*entities.Candidate, cfg *config.DomainConfig) valueobjects.UnitScore {
	if len(members) < 2 {
		return valueobjects.NewUnitScore(1)
	}
	var sum float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += Similarity(members[i], members[j], cfg)
			pairs++
		}
	}
	return valueobjects.NewUnitScore(sum / float64(pairs))
}
