package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/streams/poller"
)

// SnapshotStore keeps the latest snapshot of one chain.
type SnapshotStore struct {
	pool    *Pool
	chainID uint64
}

// NewSnapshotStore creates a store for the given chain.
func NewSnapshotStore(pool *Pool, chainID uint64) *SnapshotStore {
	return &SnapshotStore{pool: pool, chainID: chainID}
}

// Ensure SnapshotStore can feed and persist a poller.
var (
	_ poller.Source = (*SnapshotStore)(nil)
	_ poller.Sink   = (*SnapshotStore)(nil)
)

// Save replaces the stored snapshot in a single transaction. A snapshot older than the
// stored one is rejected with tokenpoolregistry.ErrStaleSnapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap *engine.Snapshot) error {
	if snap == nil || snap.Block.Number == nil {
		return fmt.Errorf("save snapshot: block number is required")
	}
	if snap.ChainID != s.chainID {
		return fmt.Errorf("save snapshot: chain %d does not match store chain %d", snap.ChainID, s.chainID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO snapshots (chain_id, block_number, block_hash, block_timestamp, received_at, taken_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (chain_id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			block_hash = EXCLUDED.block_hash,
			block_timestamp = EXCLUDED.block_timestamp,
			received_at = EXCLUDED.received_at,
			taken_at = EXCLUDED.taken_at,
			updated_at = now()
		WHERE snapshots.block_number <= EXCLUDED.block_number
	`
	tag, err := tx.Exec(ctx, query,
		int64(s.chainID),
		snap.Block.Number.Int64(),
		snap.Block.Hash.Bytes(),
		int64(snap.Block.Timestamp),
		snap.Block.ReceivedAt,
		int64(snap.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: block %s", tokenpoolregistry.ErrStaleSnapshot, snap.Block.Number)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tokens WHERE chain_id = $1`, int64(s.chainID)); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pools WHERE chain_id = $1`, int64(s.chainID)); err != nil {
		return fmt.Errorf("clear pools: %w", err)
	}

	tokenRows := make([][]any, 0, len(snap.Tokens))
	for i, t := range snap.Tokens {
		tokenRows = append(tokenRows, []any{
			int64(s.chainID), t.Address.Bytes(), t.Name, t.Symbol, int16(t.Decimals), int32(i),
		})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"tokens"},
		[]string{"chain_id", "address", "name", "symbol", "decimals", "position"},
		pgx.CopyFromRows(tokenRows),
	); err != nil {
		return fmt.Errorf("copy tokens: %w", err)
	}

	poolRows := make([][]any, 0, len(snap.Pools))
	for i, p := range snap.Pools {
		if p.Reserve0 == nil || p.Reserve1 == nil {
			return fmt.Errorf("pool %s: reserves are required", p.ID.Hex())
		}
		poolRows = append(poolRows, []any{
			int64(s.chainID), p.ID.Bytes(), p.Token0.Bytes(), p.Token1.Bytes(),
			numeric(p.Reserve0), numeric(p.Reserve1), int32(p.FeeBps), int32(i),
		})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"pools"},
		[]string{"chain_id", "id", "token0", "token1", "reserve0", "reserve1", "fee_bps", "position"},
		pgx.CopyFromRows(poolRows),
	); err != nil {
		return fmt.Errorf("copy pools: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Snapshot loads the stored snapshot. Returns ErrNotFound if none was saved yet.
func (s *SnapshotStore) Snapshot(ctx context.Context) (*engine.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		number, blockTimestamp, receivedAt, takenAt int64
		hash                                        []byte
	)
	query := `
		SELECT block_number, block_hash, block_timestamp, received_at, taken_at
		FROM snapshots
		WHERE chain_id = $1
	`
	err = tx.QueryRow(ctx, query, int64(s.chainID)).Scan(&number, &hash, &blockTimestamp, &receivedAt, &takenAt)
	if isNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	snap := &engine.Snapshot{
		ChainID:   s.chainID,
		Timestamp: uint64(takenAt),
		Block: engine.BlockSummary{
			Number:     big.NewInt(number),
			Hash:       common.BytesToHash(hash),
			Timestamp:  uint64(blockTimestamp),
			ReceivedAt: receivedAt,
		},
	}

	if snap.Tokens, err = s.queryTokens(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Pools, err = s.queryPools(ctx, tx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SnapshotStore) queryTokens(ctx context.Context, tx pgx.Tx) ([]tokenregistry.Token, error) {
	rows, err := tx.Query(ctx, `
		SELECT address, name, symbol, decimals
		FROM tokens
		WHERE chain_id = $1
		ORDER BY position
	`, int64(s.chainID))
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []tokenregistry.Token
	for rows.Next() {
		var (
			addr     []byte
			t        tokenregistry.Token
			decimals int16
		)
		if err := rows.Scan(&addr, &t.Name, &t.Symbol, &decimals); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		t.Address = common.BytesToAddress(addr)
		t.Decimals = uint8(decimals)
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

func (s *SnapshotStore) queryPools(ctx context.Context, tx pgx.Tx) ([]uniswapv2.Pool, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, token0, token1, reserve0::text, reserve1::text, fee_bps
		FROM pools
		WHERE chain_id = $1
		ORDER BY position
	`, int64(s.chainID))
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []uniswapv2.Pool
	for rows.Next() {
		var (
			id, token0, token1 []byte
			reserve0, reserve1 string
			fee                int32
		)
		if err := rows.Scan(&id, &token0, &token1, &reserve0, &reserve1, &fee); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		r0, ok := new(big.Int).SetString(reserve0, 10)
		if !ok {
			return nil, fmt.Errorf("pool %x: invalid reserve0 %q", id, reserve0)
		}
		r1, ok := new(big.Int).SetString(reserve1, 10)
		if !ok {
			return nil, fmt.Errorf("pool %x: invalid reserve1 %q", id, reserve1)
		}
		pools = append(pools, uniswapv2.Pool{
			ID:       common.BytesToAddress(id),
			Token0:   common.BytesToAddress(token0),
			Token1:   common.BytesToAddress(token1),
			Reserve0: r0,
			Reserve1: r1,
			FeeBps:   uint16(fee),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return pools, nil
}

func numeric(x *big.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(x), Exp: 0, Valid: true}
}
