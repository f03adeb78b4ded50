package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	responses map[common.Address][]byte
	block     uint64
	err       error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[*msg.To], nil
}

func (f *fakeCaller) LatestBlockNumber(context.Context) (uint64, error) {
	return f.block, f.err
}

func TestProtocolReaderReads(t *testing.T) {
	registryABI, err := AssetRegistryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	tokenABI, err := ERC20ABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	tvl, _ := new(big.Int).SetString("102500000000000000000000", 10)
	supply, _ := new(big.Int).SetString("100000000000000000000000", 10)
	tvlOut, err := registryABI.Methods["getTVL"].Outputs.Pack(tvl)
	if err != nil {
		t.Fatalf("pack tvl: %v", err)
	}
	supplyOut, err := tokenABI.Methods["totalSupply"].Outputs.Pack(supply)
	if err != nil {
		t.Fatalf("pack supply: %v", err)
	}

	registry := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	reader := NewProtocolReader(&fakeCaller{
		responses: map[common.Address][]byte{registry: tvlOut, token: supplyOut},
		block:     19000000,
	})

	ctx := context.Background()
	gotTVL, err := reader.TVL(ctx, registry.Hex())
	if err != nil {
		t.Fatalf("tvl: %v", err)
	}
	if gotTVL.Cmp(tvl) != 0 {
		t.Fatalf("tvl mismatch: %s", gotTVL)
	}

	gotSupply, err := reader.TotalSupply(ctx, token.Hex())
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if gotSupply.Cmp(supply) != 0 {
		t.Fatalf("supply mismatch: %s", gotSupply)
	}

	block, err := reader.CurrentBlock(ctx)
	if err != nil || block != 19000000 {
		t.Fatalf("block mismatch: %d %v", block, err)
	}
}

func TestProtocolReaderErrors(t *testing.T) {
	reader := NewProtocolReader(&fakeCaller{err: errors.New("rpc down")})
	if _, err := reader.TVL(context.Background(), "not-an-address"); err == nil {
		t.Fatalf("expected invalid address error")
	}
	if _, err := reader.TotalSupply(context.Background(), "0x2222222222222222222222222222222222222222"); err == nil {
		t.Fatalf("expected rpc error")
	}
}
