package config

import "errors"

var (
	errMinGroupSize        = errors.New("minimum group size must be at least 2")
	errSimilarityThreshold = errors.New("similarity threshold must be in (0, 1]")
)
