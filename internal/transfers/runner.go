// Package transfers ingests mint and burn transfers of restaking tokens so the
// circulating supply can be estimated at any past instant.
package transfers

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"restakeRates/internal/metrics"
	"restakeRates/internal/model"
	"restakeRates/internal/retry"
)

// LogSource is the chain access the runner needs.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// Sink stores decoded transfers.
type Sink interface {
	UpsertTransfers(ctx context.Context, transfers []model.TransferRecord) error
}

// RunConfig holds runtime settings for transfer ingestion.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	BatchSize    uint64
	StateName    string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner scans Transfer logs block range by block range and stores the mints
// and burns it finds.
type Runner struct {
	cfg    RunConfig
	chain  LogSource
	sink   Sink
	state  StateStore
	logger *zap.Logger
}

// NewRunner builds a Runner. state may be nil to run without a checkpoint.
func NewRunner(cfg RunConfig, chainClient LogSource, sink Sink, state StateStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		chain:  chainClient,
		sink:   sink,
		state:  state,
		logger: logger,
	}
}

// Run executes the ingestion loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("transfer sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	transferTopic, err := TransferTopic()
	if err != nil {
		return err
	}

	stateName := r.cfg.StateName
	if stateName == "" {
		stateName = DefaultStateName(chainIDValue)
	}
	var checkpoint *Checkpoint
	if r.state != nil {
		checkpoint = NewCheckpoint(r.state, stateName)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	last, ok, err := checkpoint.Load(ctx)
	if err != nil {
		return err
	}
	if next := resumeFrom(from, last, ok); next != from {
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", next))
		from = next
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	chainLabel := strconv.FormatUint(chainIDValue, 10)
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		records, err := r.collect(ctx, chainIDValue, transferTopic, blockRange)
		if err != nil {
			return err
		}

		if err := r.sink.UpsertTransfers(ctx, records); err != nil {
			return fmt.Errorf("store transfers: %w", err)
		}
		for _, record := range records {
			metrics.TransfersIngested.WithLabelValues(record.Token).Inc()
		}

		if err := checkpoint.Save(ctx, blockRange.To); err != nil {
			return err
		}
		metrics.IngestLatestBlock.WithLabelValues(chainLabel).Set(float64(blockRange.To))

		r.logger.Info("batch complete", zap.Int("transfers", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

// collect fetches mint and burn logs of one range, ordered by position in the chain.
func (r *Runner) collect(ctx context.Context, chainID uint64, transferTopic common.Hash, blockRange BlockRange) ([]model.TransferRecord, error) {
	r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

	seen := make(map[string]struct{})
	logs := make([]types.Log, 0)
	for _, topics := range mintBurnFilters(transferTopic) {
		batch, err := r.filterLogsWithRetry(ctx, blockRange, topics)
		if err != nil {
			return nil, fmt.Errorf("filter logs: %w", err)
		}
		for _, log := range batch {
			id := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			logs = append(logs, log)
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	records := make([]model.TransferRecord, 0, len(logs))
	for _, log := range logs {
		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		record, ok, err := decodeTransfer(chainID, log, transferTopic, ts)
		if err != nil {
			r.logger.Warn("skip undecodable transfer", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
			continue
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, topics [][]common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Addresses, topics)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
