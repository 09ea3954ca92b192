// Package leaderboard ranks players per stage in Redis sorted sets.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Entry struct {
	Rank   int    `json:"rank"`
	Player string `json:"player"`
	Score  int    `json:"score"`
}

// Board keeps each player's best score. A Board without a client is disabled:
// Submit does nothing and Top returns no entries.
type Board struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Board {
	return &Board{rdb: rdb}
}

// Connect parses a redis:// URL. An empty URL yields a nil client.
func Connect(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (b *Board) Enabled() bool { return b.rdb != nil }

func key(stageID string) string { return "leaderboard:" + stageID }

// Submit records score for player unless the player already has a higher one.
func (b *Board) Submit(ctx context.Context, stageID, player string, score int) error {
	if b.rdb == nil {
		return nil
	}
	err := b.rdb.ZAddGT(ctx, key(stageID), redis.Z{Score: float64(score), Member: player}).Err()
	if err != nil {
		return fmt.Errorf("submitting score: %w", err)
	}
	return nil
}

// Top returns the n best players of a stage.
func (b *Board) Top(ctx context.Context, stageID string, n int) ([]Entry, error) {
	if b.rdb == nil || n <= 0 {
		return []Entry{}, nil
	}
	zs, err := b.rdb.ZRevRangeWithScores(ctx, key(stageID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading leaderboard: %w", err)
	}
	out := make([]Entry, len(zs))
	for i, z := range zs {
		player, _ := z.Member.(string)
		out[i] = Entry{Rank: i + 1, Player: player, Score: int(z.Score)}
	}
	return out, nil
}

// Check pings Redis. A disabled board is always healthy.
func (b *Board) Check(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Ping(ctx).Err()
}
