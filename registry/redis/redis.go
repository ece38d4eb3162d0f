package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"strconv"

	"github.com/anantham/tarotgallery/models"
	"github.com/anantham/tarotgallery/registry"
	"github.com/redis/go-redis/v9"
)

// Design Choice: Split Index/Data Pattern
// Two Redis structures hold the gallery registry:
// 1. ZSet ("galleries"): locators scored by publication timestamp.
//   - Ranged, paginated reads (ZREVRANGE) and O(1) cardinality (ZCARD)
//     without scanning the full set.
// 2. Hash per locator ("gallery:{locator}"): the entry's metadata fields.
//   - Point lookup and pipelined batch resolution for a page slice.
type RedisGalleryRegistry struct {
	client redis.UniversalClient
}

func NewRedisGalleryRegistry(ctx context.Context, devMode bool, endpoint string) (*RedisGalleryRegistry, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: endpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: endpoint,
			// Managed Redis endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisGalleryRegistry{client: client}, nil
}

const indexKey = "galleries"

// Hash tags keep a locator's metadata on one slot in cluster mode.
func galleryKey(locator string) string {
	return "gallery:{" + locator + "}"
}

// Add upserts the metadata hash first, then inserts the index member.
// The two writes are deliberately not pipelined: the ordering is the
// crash-consistency guarantee.
func (r *RedisGalleryRegistry) Add(ctx context.Context, entry models.GalleryEntry) error {
	deckTypes, err := json.Marshal(entry.DeckTypes)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"author":    entry.Author,
		"cardCount": entry.CardCount,
		"deckTypes": string(deckTypes),
		"timestamp": entry.Timestamp,
	}
	if err := r.client.HSet(ctx, galleryKey(entry.Locator), fields).Err(); err != nil {
		return err
	}

	return r.client.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(entry.Timestamp),
		Member: entry.Locator,
	}).Err()
}

func (r *RedisGalleryRegistry) List(ctx context.Context, offset, limit int) ([]models.GalleryEntry, int64, error) {
	total, err := r.client.ZCard(ctx, indexKey).Result()
	if err != nil {
		return nil, 0, err
	}

	locators, err := r.client.ZRevRange(ctx, indexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(locators) == 0 {
		return []models.GalleryEntry{}, total, nil
	}

	// One round trip for the whole slice's metadata.
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(locators))
	for i, locator := range locators {
		cmds[i] = pipe.HGetAll(ctx, galleryKey(locator))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, err
	}

	entries := make([]models.GalleryEntry, 0, len(locators))
	for i, locator := range locators {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			// Index member without metadata: drop it from the page
			// rather than failing the whole listing.
			continue
		}
		entries = append(entries, parseEntry(locator, fields))
	}

	return entries, total, nil
}

func (r *RedisGalleryRegistry) Get(ctx context.Context, locator string) (models.GalleryEntry, error) {
	fields, err := r.client.HGetAll(ctx, galleryKey(locator)).Result()
	if err != nil {
		return models.GalleryEntry{}, err
	}
	if len(fields) == 0 {
		return models.GalleryEntry{}, registry.ErrNotFound
	}
	return parseEntry(locator, fields), nil
}

func parseEntry(locator string, fields map[string]string) models.GalleryEntry {
	entry := models.GalleryEntry{Locator: locator, Author: fields["author"]}
	entry.CardCount, _ = strconv.Atoi(fields["cardCount"])
	entry.Timestamp, _ = strconv.ParseInt(fields["timestamp"], 10, 64)
	if raw := fields["deckTypes"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &entry.DeckTypes)
	}
	return entry
}
