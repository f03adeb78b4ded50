package transfers

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"restakeRates/internal/chain"
	"restakeRates/internal/model"
)

// TransferTopic is the topic0 of the ERC-20 Transfer event.
func TransferTopic() (common.Hash, error) {
	erc20, err := chain.ERC20ABI()
	if err != nil {
		return common.Hash{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	event, ok := erc20.Events["Transfer"]
	if !ok {
		return common.Hash{}, fmt.Errorf("transfer event missing from abi")
	}
	return event.ID, nil
}

// mintBurnFilters returns the topic filters for transfers from and to the zero
// address.
func mintBurnFilters(transferTopic common.Hash) [][][]common.Hash {
	zero := common.BytesToHash(common.Address{}.Bytes())
	return [][][]common.Hash{
		{{transferTopic}, {zero}},
		{{transferTopic}, nil, {zero}},
	}
}

// decodeTransfer turns a Transfer log into a record. ok is false for logs that
// are not mint or burn transfers.
func decodeTransfer(chainID uint64, log types.Log, transferTopic common.Hash, timestamp uint64) (model.TransferRecord, bool, error) {
	if log.Removed || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
		return model.TransferRecord{}, false, nil
	}

	erc20, err := chain.ERC20ABI()
	if err != nil {
		return model.TransferRecord{}, false, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := erc20.Unpack("Transfer", log.Data)
	if err != nil {
		return model.TransferRecord{}, false, fmt.Errorf("unpack transfer %s:%d: %w", log.TxHash.Hex(), log.Index, err)
	}
	if len(values) != 1 {
		return model.TransferRecord{}, false, fmt.Errorf("transfer data size %d", len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return model.TransferRecord{}, false, fmt.Errorf("transfer value unexpected type %T", values[0])
	}

	record := model.TransferRecord{
		ChainID:     chainID,
		Token:       log.Address.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		From:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Value:       value,
		BlockNumber: log.BlockNumber,
		Timestamp:   time.Unix(int64(timestamp), 0).UTC(),
	}
	if !record.IsMint() && !record.IsBurn() {
		return model.TransferRecord{}, false, nil
	}
	return record, true, nil
}
