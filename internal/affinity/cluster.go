// Package affinity derives a listener's preferred genres from their top
// artists.
package affinity

import (
	"sort"
	"strings"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"go.uber.org/zap"

	"github.com/justestif/moodtunes/internal/catalog"
)

// ClusterConfig holds genre clustering parameters.
type ClusterConfig struct {
	MaxClusters       int // Upper bound on k (default: 3)
	ArtistsPerCluster int // Artists needed per additional cluster (default: 4)
	MaxGenres         int // Genres returned (default: 3)
	VocabularySize    int // Maximum genres used in vectors (default: 50)
}

// DefaultClusterConfig returns the recommended default configuration.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		MaxClusters:       3,
		ArtistsPerCluster: 4,
		MaxGenres:         3,
		VocabularySize:    50,
	}
}

func (c ClusterConfig) withDefaults() ClusterConfig {
	d := DefaultClusterConfig()
	if c.MaxClusters <= 0 {
		c.MaxClusters = d.MaxClusters
	}
	if c.ArtistsPerCluster <= 0 {
		c.ArtistsPerCluster = d.ArtistsPerCluster
	}
	if c.MaxGenres <= 0 {
		c.MaxGenres = d.MaxGenres
	}
	if c.VocabularySize <= 0 {
		c.VocabularySize = d.VocabularySize
	}
	return c
}

// artistObservation wraps an artist's genre vector to implement
// clusters.Observation.
type artistObservation struct {
	coords clusters.Coordinates
}

func (o artistObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o artistObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// TopGenres clusters artists by their genre vectors and returns the dominant
// genres of the largest cluster, strongest first. Artists without genres are
// ignored. Returns nil when no artist has a genre.
//
// Centroid seeding comes from the clustering library's clock-seeded global
// source, so when artists split into clusters of similar size the chosen
// cluster, and therefore the genre order, can differ between calls.
func TopGenres(artists []catalog.Artist, cfg ClusterConfig, logger *zap.Logger) []string {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var tagged []*catalog.Artist
	for i := range artists {
		if len(artists[i].Genres) > 0 {
			tagged = append(tagged, &artists[i])
		}
	}
	if len(tagged) == 0 {
		return nil
	}

	vocabulary := buildVocabulary(tagged, cfg.VocabularySize)

	var obs clusters.Observations
	for _, a := range tagged {
		obs = append(obs, artistObservation{coords: buildGenreVector(a, vocabulary)})
	}

	k := clusterCount(len(tagged), cfg)
	if k == 1 {
		return extractTopGenres(centroid(obs, len(vocabulary)), vocabulary, cfg.MaxGenres)
	}

	km := kmeans.New()
	result, err := km.Partition(obs, k)
	if err != nil {
		// Fall back to the genre profile of all artists.
		logger.Warn("k-means clustering failed", zap.Error(err))
		return extractTopGenres(centroid(obs, len(vocabulary)), vocabulary, cfg.MaxGenres)
	}

	largest := result[0]
	for _, c := range result[1:] {
		if len(c.Observations) > len(largest.Observations) {
			largest = c
		}
	}
	return extractTopGenres(centroid(largest.Observations, len(vocabulary)), vocabulary, cfg.MaxGenres)
}

// clusterCount picks k from the number of artists, at least 1.
func clusterCount(n int, cfg ClusterConfig) int {
	return max(1, min(cfg.MaxClusters, n/cfg.ArtistsPerCluster))
}

// genreCount tracks a genre and how many artists carry it.
type genreCount struct {
	name  string
	count int
}

// buildVocabulary collects all genres and returns the top N most common.
// Ties are broken by name so vectors are stable across runs.
func buildVocabulary(artists []*catalog.Artist, size int) []string {
	counts := make(map[string]int)
	for _, a := range artists {
		for _, g := range distinctGenres(a.Genres) {
			counts[g]++
		}
	}

	genreCounts := make([]genreCount, 0, len(counts))
	for name, count := range counts {
		genreCounts = append(genreCounts, genreCount{name: name, count: count})
	}
	sort.Slice(genreCounts, func(i, j int) bool {
		if genreCounts[i].count != genreCounts[j].count {
			return genreCounts[i].count > genreCounts[j].count
		}
		return genreCounts[i].name < genreCounts[j].name
	})

	n := min(size, len(genreCounts))
	vocabulary := make([]string, n)
	for i := range n {
		vocabulary[i] = genreCounts[i].name
	}
	return vocabulary
}

// buildGenreVector marks each vocabulary genre the artist carries with 1.
func buildGenreVector(a *catalog.Artist, vocabulary []string) clusters.Coordinates {
	index := make(map[string]int, len(vocabulary))
	for i, g := range vocabulary {
		index[g] = i
	}

	vector := make(clusters.Coordinates, len(vocabulary))
	for _, g := range distinctGenres(a.Genres) {
		if idx, ok := index[g]; ok {
			vector[idx] = 1
		}
	}
	return vector
}

// centroid averages the coordinates of obs.
func centroid(obs clusters.Observations, dims int) clusters.Coordinates {
	center := make(clusters.Coordinates, dims)
	if len(obs) == 0 {
		return center
	}
	for _, o := range obs {
		for i, v := range o.Coordinates() {
			center[i] += v
		}
	}
	for i := range center {
		center[i] /= float64(len(obs))
	}
	return center
}

// extractTopGenres returns the top n genres from a centroid vector.
func extractTopGenres(center clusters.Coordinates, vocabulary []string, n int) []string {
	if len(center) == 0 || len(vocabulary) == 0 {
		return nil
	}

	type genreWeight struct {
		name   string
		weight float64
	}
	weights := make([]genreWeight, len(vocabulary))
	for i, name := range vocabulary {
		weight := 0.0
		if i < len(center) {
			weight = center[i]
		}
		weights[i] = genreWeight{name: name, weight: weight}
	}

	// Stable, so equal weights keep vocabulary order.
	sort.SliceStable(weights, func(i, j int) bool {
		return weights[i].weight > weights[j].weight
	})

	result := make([]string, 0, n)
	for i := 0; i < len(weights) && len(result) < n; i++ {
		if weights[i].weight > 0 {
			result = append(result, weights[i].name)
		}
	}
	return result
}

func distinctGenres(genres []string) []string {
	seen := make(map[string]bool, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}
