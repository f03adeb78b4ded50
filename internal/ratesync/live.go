package ratesync

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alitto/pond/v2"

	"restakeRates/internal/model"
)

type liveState struct {
	block  uint64
	tvl    *big.Int
	supply *big.Int
}

// liveReads is the set of on-chain reads started before backfill and awaited
// only when the current entry is built.
type liveReads struct {
	group pond.TaskGroup
	state liveState

	blockErr  error
	tvlErr    error
	supplyErr error
}

func startLiveReads(ctx context.Context, pool pond.Pool, reader ProtocolReader, token model.LiquidRestakingToken) *liveReads {
	reads := &liveReads{group: pool.NewGroupContext(ctx)}
	groupCtx := reads.group.Context()

	reads.group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			reads.blockErr = err
			return
		}
		reads.state.block, reads.blockErr = reader.CurrentBlock(groupCtx)
	})

	reads.group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			reads.tvlErr = err
			return
		}
		reads.state.tvl, reads.tvlErr = reader.TVL(groupCtx, token.Deployment.AssetRegistry)
	})

	reads.group.Submit(func() {
		if err := groupCtx.Err(); err != nil {
			reads.supplyErr = err
			return
		}
		reads.state.supply, reads.supplyErr = reader.TotalSupply(groupCtx, token.Address)
	})

	return reads
}

func (r *liveReads) wait() (liveState, error) {
	if err := r.group.Wait(); err != nil {
		return liveState{}, fmt.Errorf("live reads: %w", err)
	}
	if r.blockErr != nil {
		return liveState{}, fmt.Errorf("current block: %w", r.blockErr)
	}
	if r.tvlErr != nil {
		return liveState{}, fmt.Errorf("tvl: %w", r.tvlErr)
	}
	if r.supplyErr != nil {
		return liveState{}, fmt.Errorf("total supply: %w", r.supplyErr)
	}
	return r.state, nil
}
