package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/achievement-api/pkg/cache"
)

// FingerprintMatch is the best overlap found for a query document.
type FingerprintMatch struct {
	Owner  string
	Shared int
	Ratio  float64
}

// FingerprintRepository keeps the plagiarism corpus in Redis: one set of shingle hashes per
// owner plus an inverted index from shingle to owners.
type FingerprintRepository struct {
	client *redis.Client
	prefix string
}

// NewFingerprintRepository constructs the corpus repository.
func NewFingerprintRepository(client *redis.Client, prefix string) *FingerprintRepository {
	return &FingerprintRepository{client: client, prefix: prefix}
}

// Overlap returns the owner sharing the largest fraction of the given shingles, ignoring
// documents registered by owner itself. Ties are broken by owner id.
func (r *FingerprintRepository) Overlap(ctx context.Context, owner string, shingles []uint64) (FingerprintMatch, error) {
	if len(shingles) == 0 {
		return FingerprintMatch{}, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(shingles))
	for i, sh := range shingles {
		cmds[i] = pipe.SMembers(ctx, r.shingleKey(sh))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return FingerprintMatch{}, fmt.Errorf("redis fingerprint lookup: %w", err)
	}

	counts := make(map[string]int)
	for _, cmd := range cmds {
		members, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return FingerprintMatch{}, fmt.Errorf("redis fingerprint lookup: %w", err)
		}
		for _, m := range members {
			if m != owner {
				counts[m]++
			}
		}
	}

	owners := make([]string, 0, len(counts))
	for o := range counts {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	var best FingerprintMatch
	for _, o := range owners {
		if counts[o] > best.Shared {
			best = FingerprintMatch{Owner: o, Shared: counts[o]}
		}
	}
	best.Ratio = float64(best.Shared) / float64(len(shingles))
	return best, nil
}

// Register stores the shingles for owner, replacing anything registered before.
func (r *FingerprintRepository) Register(ctx context.Context, owner string, shingles []uint64) error {
	if err := r.Remove(ctx, owner); err != nil {
		return err
	}
	if len(shingles) == 0 {
		return nil
	}
	members := make([]interface{}, len(shingles))
	pipe := r.client.TxPipeline()
	for i, sh := range shingles {
		members[i] = encodeShingle(sh)
		pipe.SAdd(ctx, r.shingleKey(sh), owner)
	}
	pipe.SAdd(ctx, r.docKey(owner), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis fingerprint register: %w", err)
	}
	return nil
}

// Remove deletes owner from the corpus.
func (r *FingerprintRepository) Remove(ctx context.Context, owner string) error {
	members, err := r.client.SMembers(ctx, r.docKey(owner)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("redis fingerprint read %s: %w", owner, err)
	}
	if len(members) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, m := range members {
		pipe.SRem(ctx, cache.Key(r.prefix, "fp", "sh", m), owner)
	}
	pipe.Del(ctx, r.docKey(owner))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis fingerprint remove: %w", err)
	}
	return nil
}

func (r *FingerprintRepository) docKey(owner string) string {
	return cache.Key(r.prefix, "fp", "doc", owner)
}

func (r *FingerprintRepository) shingleKey(sh uint64) string {
	return cache.Key(r.prefix, "fp", "sh", encodeShingle(sh))
}

func encodeShingle(sh uint64) string {
	return strconv.FormatUint(sh, 16)
}
