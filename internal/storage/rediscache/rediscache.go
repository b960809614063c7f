// Package rediscache provides a Redis-backed balance cache. Entries live in a
// per-house hash keyed by viewer, so invalidating a house drops every viewer's
// cached balances in one DEL. A short TTL bounds staleness if an invalidation
// is ever missed.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/alpenhaus/alpenhaus/internal/lodge"
)

const entryTTL = 30 * time.Second

// BalanceCache caches computed balances in Redis. All failures degrade to a
// cache miss so a Redis outage never breaks balance reads.
type BalanceCache struct {
	client *redis.Client
	log    *slog.Logger
}

// New wraps an existing Redis client.
func New(client *redis.Client, log *slog.Logger) *BalanceCache {
	return &BalanceCache{client: client, log: log}
}

// Ready pings Redis.
func (c *BalanceCache) Ready(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(houseID uuid.UUID) string {
	return fmt.Sprintf("balances:%s", houseID)
}

// payload is the wire form of a cached balance set. Amounts are stored as
// minor units plus the house currency so they survive the JSON round trip.
type payload struct {
	Currency string          `json:"currency"`
	Members  []memberPayload `json:"members"`
	Summary  summaryPayload  `json:"summary"`
}

type memberPayload struct {
	UserID  uuid.UUID `json:"user_id"`
	Name    string    `json:"name"`
	OwesYou int64     `json:"owes_you"`
	YouOwe  int64     `json:"you_owe"`
	Net     int64     `json:"net"`
}

type summaryPayload struct {
	TotalYouOwe     int64 `json:"total_you_owe"`
	TotalYouAreOwed int64 `json:"total_you_are_owed"`
	NetBalance      int64 `json:"net_balance"`
}

func encode(balances []lodge.MemberBalance, summary lodge.BalanceSummary) (payload, error) {
	p := payload{Members: make([]memberPayload, 0, len(balances))}
	for _, b := range balances {
		owesYou, _ := b.OwesYou.MinorUnits()
		youOwe, _ := b.YouOwe.MinorUnits()
		net, _ := b.Net.MinorUnits()
		p.Currency = b.Net.Curr().Code()
		p.Members = append(p.Members, memberPayload{
			UserID:  b.UserID,
			Name:    b.Name,
			OwesYou: owesYou,
			YouOwe:  youOwe,
			Net:     net,
		})
	}
	totalYouOwe, _ := summary.TotalYouOwe.MinorUnits()
	totalOwed, _ := summary.TotalYouAreOwed.MinorUnits()
	netBalance, _ := summary.NetBalance.MinorUnits()
	p.Summary = summaryPayload{TotalYouOwe: totalYouOwe, TotalYouAreOwed: totalOwed, NetBalance: netBalance}
	if p.Currency == "" {
		p.Currency = summary.NetBalance.Curr().Code()
	}
	return p, nil
}

func decode(p payload) ([]lodge.MemberBalance, lodge.BalanceSummary, error) {
	balances := make([]lodge.MemberBalance, 0, len(p.Members))
	for _, m := range p.Members {
		owesYou, err := money.NewAmountFromMinorUnits(p.Currency, m.OwesYou)
		if err != nil {
			return nil, lodge.BalanceSummary{}, err
		}
		youOwe, err := money.NewAmountFromMinorUnits(p.Currency, m.YouOwe)
		if err != nil {
			return nil, lodge.BalanceSummary{}, err
		}
		net, err := money.NewAmountFromMinorUnits(p.Currency, m.Net)
		if err != nil {
			return nil, lodge.BalanceSummary{}, err
		}
		balances = append(balances, lodge.MemberBalance{
			UserID:  m.UserID,
			Name:    m.Name,
			OwesYou: owesYou,
			YouOwe:  youOwe,
			Net:     net,
		})
	}
	totalYouOwe, err := money.NewAmountFromMinorUnits(p.Currency, p.Summary.TotalYouOwe)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	totalOwed, err := money.NewAmountFromMinorUnits(p.Currency, p.Summary.TotalYouAreOwed)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	netBalance, err := money.NewAmountFromMinorUnits(p.Currency, p.Summary.NetBalance)
	if err != nil {
		return nil, lodge.BalanceSummary{}, err
	}
	summary := lodge.BalanceSummary{TotalYouOwe: totalYouOwe, TotalYouAreOwed: totalOwed, NetBalance: netBalance}
	return balances, summary, nil
}

// Get returns the cached balances for (house, viewer), reporting a miss on any
// absence, decode failure, or Redis error.
func (c *BalanceCache) Get(ctx context.Context, houseID, viewer uuid.UUID) ([]lodge.MemberBalance, lodge.BalanceSummary, bool) {
	val, err := c.client.HGet(ctx, key(houseID), viewer.String()).Result()
	if err == redis.Nil {
		return nil, lodge.BalanceSummary{}, false
	}
	if err != nil {
		c.log.Warn("balance cache get failed", "house_id", houseID, "error", err)
		return nil, lodge.BalanceSummary{}, false
	}
	var p payload
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		c.log.Warn("balance cache entry corrupt", "house_id", houseID, "error", err)
		return nil, lodge.BalanceSummary{}, false
	}
	balances, summary, err := decode(p)
	if err != nil {
		c.log.Warn("balance cache entry corrupt", "house_id", houseID, "error", err)
		return nil, lodge.BalanceSummary{}, false
	}
	return balances, summary, true
}

// Set stores the balances for (house, viewer) and refreshes the hash TTL.
func (c *BalanceCache) Set(ctx context.Context, houseID, viewer uuid.UUID, balances []lodge.MemberBalance, summary lodge.BalanceSummary) {
	p, err := encode(balances, summary)
	if err != nil {
		c.log.Warn("balance cache encode failed", "house_id", houseID, "error", err)
		return
	}
	val, err := json.Marshal(p)
	if err != nil {
		c.log.Warn("balance cache encode failed", "house_id", houseID, "error", err)
		return
	}
	k := key(houseID)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, k, viewer.String(), val)
	pipe.Expire(ctx, k, entryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("balance cache set failed", "house_id", houseID, "error", err)
	}
}

// Invalidate drops every viewer's cached balances for the house.
func (c *BalanceCache) Invalidate(ctx context.Context, houseID uuid.UUID) {
	if err := c.client.Del(ctx, key(houseID)).Err(); err != nil {
		c.log.Warn("balance cache invalidate failed", "house_id", houseID, "error", err)
	}
}
