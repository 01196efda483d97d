package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtistTagRepository stores Last.fm tags per artist. Artist names are
// keyed case-insensitively.
type ArtistTagRepository struct {
	pool *pgxpool.Pool
}

func artistKey(artist string) string {
	return strings.ToLower(strings.TrimSpace(artist))
}

// Replace swaps the stored tag set of artist for tags in one transaction.
// An empty tags clears the artist.
func (r *ArtistTagRepository) Replace(ctx context.Context, artist string, tags []ArtistTag) error {
	key := artistKey(artist)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM artist_tags WHERE artist = $1`, key); err != nil {
			return fmt.Errorf("clearing tags of %q: %w", artist, err)
		}
		if len(tags) == 0 {
			return nil
		}

		names := make([]string, len(tags))
		counts := make([]int, len(tags))
		fetched := make([]time.Time, len(tags))
		for i, t := range tags {
			names[i] = t.TagName
			counts[i] = t.TagCount
			fetched[i] = t.FetchedAt
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO artist_tags (artist, tag_name, tag_count, fetched_at)
			SELECT $1, n, c, f FROM unnest($2::text[], $3::int[], $4::timestamptz[]) AS t(n, c, f)
			ON CONFLICT (artist, tag_name) DO UPDATE SET
				tag_count = GREATEST(artist_tags.tag_count, EXCLUDED.tag_count),
				fetched_at = EXCLUDED.fetched_at
		`, key, names, counts, fetched)
		if err != nil {
			return fmt.Errorf("inserting tags of %q: %w", artist, err)
		}
		return nil
	})
}

// Fresh returns the tags of artist fetched at or after since, heaviest
// first. It returns nil when the artist has no fresh tags.
func (r *ArtistTagRepository) Fresh(ctx context.Context, artist string, since time.Time) ([]ArtistTag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT artist, tag_name, tag_count, fetched_at
		FROM artist_tags
		WHERE artist = $1 AND fetched_at >= $2
		ORDER BY tag_count DESC, tag_name
	`, artistKey(artist), since)
	if err != nil {
		return nil, fmt.Errorf("querying tags of %q: %w", artist, err)
	}

	tags, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ArtistTag])
	if err != nil {
		return nil, fmt.Errorf("scanning tags of %q: %w", artist, err)
	}
	return tags, nil
}

// DeleteStale removes tags fetched before olderThan.
func (r *ArtistTagRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM artist_tags WHERE fetched_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("deleting stale tags: %w", err)
	}
	return result.RowsAffected(), nil
}
