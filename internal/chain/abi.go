package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// assetRegistryABIJSON covers the view used to price the pool backing a token.
const assetRegistryABIJSON = `[
  {"inputs": [], "name": "getTVL", "outputs": [{"internalType": "uint256", "name": "value", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20SupplyABIJSON = `[
  {"inputs": [], "name": "totalSupply", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
    {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
    {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
  ], "name": "Transfer", "type": "event"}
]`

var (
	assetRegistryABI     abi.ABI
	assetRegistryABIOnce sync.Once
	assetRegistryABIErr  error

	erc20SupplyABI     abi.ABI
	erc20SupplyABIOnce sync.Once
	erc20SupplyABIErr  error
)

// AssetRegistryABI returns the parsed asset registry ABI.
func AssetRegistryABI() (abi.ABI, error) {
	assetRegistryABIOnce.Do(func() {
		assetRegistryABI, assetRegistryABIErr = abi.JSON(strings.NewReader(assetRegistryABIJSON))
	})
	return assetRegistryABI, assetRegistryABIErr
}

// ERC20ABI returns the parsed totalSupply/Transfer ABI.
func ERC20ABI() (abi.ABI, error) {
	erc20SupplyABIOnce.Do(func() {
		erc20SupplyABI, erc20SupplyABIErr = abi.JSON(strings.NewReader(erc20SupplyABIJSON))
	})
	return erc20SupplyABI, erc20SupplyABIErr
}
