package mempool

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/crypto"
)

const (
	redisZSetKey  = "mempool:by_gas_price"
	redisTxPrefix = "mempool:tx:"

	// overfetchFactor widens the server-side ZREVRANGE candidate window
	// beyond limit, since the final priority also weighs age and Redis
	// only indexes by gas_price; the in-process selectTop re-sorts and
	// re-applies the gas budget over this wider candidate set.
	overfetchFactor = 4
)

// redisRecord is the JSON payload stored per pending transaction,
// carrying InsertedAt so priority (gas_price * (1 + age_in_hours)) can
// be recomputed at selection time even though the ZSET only indexes by
// gas_price.
type redisRecord struct {
	Tx         *chaintypes.Transaction
	InsertedAt time.Time
}

// RedisMempool is a Mempool backed by a Redis sorted set, letting
// multiple producer processes share one pending-transaction pool.
type RedisMempool struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisMempool wraps an already-configured *redis.Client.
func NewRedisMempool(client *redis.Client) *RedisMempool {
	return &RedisMempool{client: client, now: time.Now}
}

func txKey(h crypto.Hash) string {
	return redisTxPrefix + hex.EncodeToString(h.Bytes())
}

func (m *RedisMempool) Insert(tx *chaintypes.Transaction) bool {
	if tx == nil || !tx.VerifySignature() {
		logger.Warn("rejecting unsigned or invalid transaction")
		return false
	}
	h := tx.Hash()
	member := hex.EncodeToString(h.Bytes())

	exists, err := m.client.ZScore(redisZSetKey, member).Result()
	if err == nil && exists != 0 {
		return false
	}

	rec := redisRecord{Tx: tx, InsertedAt: m.now()}
	blob, err := json.Marshal(rec)
	if err != nil {
		logger.Error("mempool marshal failed", "err", err)
		return false
	}

	pipe := m.client.TxPipeline()
	pipe.Set(txKey(h), blob, 0)
	pipe.ZAdd(redisZSetKey, &redis.Z{Score: float64(tx.GasPrice), Member: member})
	if _, err := pipe.Exec(); err != nil {
		logger.Error("mempool insert pipeline failed", "err", err)
		return false
	}
	return true
}

func (m *RedisMempool) Remove(txHash crypto.Hash) {
	member := hex.EncodeToString(txHash.Bytes())
	pipe := m.client.TxPipeline()
	pipe.Del(txKey(txHash))
	pipe.ZRem(redisZSetKey, member)
	if _, err := pipe.Exec(); err != nil {
		logger.Error("mempool remove pipeline failed", "err", err)
	}
}

func (m *RedisMempool) SnapshotTop(limit int, gasBudget uint64) []*chaintypes.Transaction {
	candidateCount := int64(limit * overfetchFactor)
	members, err := m.client.ZRevRange(redisZSetKey, 0, candidateCount-1).Result()
	if err != nil {
		logger.Error("mempool ZRevRange failed", "err", err)
		return nil
	}
	if len(members) == 0 {
		return nil
	}

	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = redisTxPrefix + member
	}
	blobs, err := m.client.MGet(keys...).Result()
	if err != nil {
		logger.Error("mempool MGet failed", "err", err)
		return nil
	}

	entries := make([]*entry, 0, len(blobs))
	for _, raw := range blobs {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			logger.Warn("mempool record decode failed", "err", err)
			continue
		}
		entries = append(entries, &entry{tx: rec.Tx, insertedAt: rec.InsertedAt})
	}
	return selectTop(entries, limit, gasBudget, m.now())
}

func (m *RedisMempool) Size() int {
	n, err := m.client.ZCard(redisZSetKey).Result()
	if err != nil {
		logger.Error("mempool ZCard failed", "err", err)
		return 0
	}
	return int(n)
}
