package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller is the subset of Client used by ProtocolReader.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// ProtocolReader reads live accounting state of a restaking token.
type ProtocolReader struct {
	caller ContractCaller
}

// NewProtocolReader creates a reader that issues calls through caller.
func NewProtocolReader(caller ContractCaller) *ProtocolReader {
	return &ProtocolReader{caller: caller}
}

// CurrentBlock returns the latest block number.
func (r *ProtocolReader) CurrentBlock(ctx context.Context) (uint64, error) {
	if r.caller == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	return r.caller.LatestBlockNumber(ctx)
}

// TVL returns the wei-scaled value held by the token's asset registry.
func (r *ProtocolReader) TVL(ctx context.Context, assetRegistry string) (*big.Int, error) {
	registryABI, err := AssetRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse asset registry abi: %w", err)
	}
	return r.callUint(ctx, registryABI, assetRegistry, "getTVL")
}

// TotalSupply returns the wei-scaled supply of the token.
func (r *ProtocolReader) TotalSupply(ctx context.Context, token string) (*big.Int, error) {
	tokenABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return r.callUint(ctx, tokenABI, token, "totalSupply")
}

func (r *ProtocolReader) callUint(ctx context.Context, contractABI abi.ABI, address string, method string) (*big.Int, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address for %s: %q", method, address)
	}
	to := common.HexToAddress(address)

	data, err := contractABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	val, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	return val, nil
}
