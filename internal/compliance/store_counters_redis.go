package compliance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"custos/pkg/domain"
)

// RedisCounterStore shares transfer records across replicas through Redis.
// Records live in one hash per holder; reset times are stored as unix
// nanoseconds. Apply is read-modify-write without a transaction: the engine
// is the single writer per the bound-ledger invariant.
type RedisCounterStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client, keyPrefix: "custos:counters:"}
}

func (s *RedisCounterStore) key(holder domain.Address) string {
	return s.keyPrefix + holder.Hex()
}

func (s *RedisCounterStore) Record(ctx context.Context, holder domain.Address) (TransferRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(holder)).Result()
	if err != nil {
		return TransferRecord{}, fmt.Errorf("read transfer record: %w", err)
	}
	if len(fields) == 0 {
		return TransferRecord{}, nil
	}
	return decodeRecord(fields)
}

func (s *RedisCounterStore) Apply(ctx context.Context, holder domain.Address, amount uint64, now time.Time, dayWindow, monthWindow time.Duration) (TransferRecord, error) {
	rec, err := s.Record(ctx, holder)
	if err != nil {
		return TransferRecord{}, err
	}
	rec.Apply(amount, now, dayWindow, monthWindow)

	err = s.client.HSet(ctx, s.key(holder), map[string]any{
		"daily_total":      strconv.FormatUint(rec.DailyTotal, 10),
		"daily_reset_ns":   strconv.FormatInt(rec.DailyResetAt.UnixNano(), 10),
		"monthly_total":    strconv.FormatUint(rec.MonthlyTotal, 10),
		"monthly_reset_ns": strconv.FormatInt(rec.MonthlyResetAt.UnixNano(), 10),
	}).Err()
	if err != nil {
		return TransferRecord{}, fmt.Errorf("write transfer record: %w", err)
	}
	return rec, nil
}

func decodeRecord(fields map[string]string) (TransferRecord, error) {
	var rec TransferRecord
	var err error
	if rec.DailyTotal, err = strconv.ParseUint(fields["daily_total"], 10, 64); err != nil {
		return TransferRecord{}, fmt.Errorf("decode daily_total: %w", err)
	}
	if rec.MonthlyTotal, err = strconv.ParseUint(fields["monthly_total"], 10, 64); err != nil {
		return TransferRecord{}, fmt.Errorf("decode monthly_total: %w", err)
	}
	dailyNS, err := strconv.ParseInt(fields["daily_reset_ns"], 10, 64)
	if err != nil {
		return TransferRecord{}, fmt.Errorf("decode daily_reset_ns: %w", err)
	}
	monthlyNS, err := strconv.ParseInt(fields["monthly_reset_ns"], 10, 64)
	if err != nil {
		return TransferRecord{}, fmt.Errorf("decode monthly_reset_ns: %w", err)
	}
	rec.DailyResetAt = time.Unix(0, dailyNS)
	rec.MonthlyResetAt = time.Unix(0, monthlyNS)
	return rec, nil
}
