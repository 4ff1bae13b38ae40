package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event fragments of the marketplace contract. All arguments are
// non-indexed, so every field is decoded from the log data.
const marketplaceABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "id", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "imageUrl", "type": "string"},
      {"indexed": false, "internalType": "address", "name": "seller", "type": "address"}
    ],
    "name": "ProductListed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "id", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "seller", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "buyer", "type": "address"}
    ],
    "name": "ProductSold",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "id", "type": "uint256"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"},
      {"indexed": false, "internalType": "address", "name": "seller", "type": "address"}
    ],
    "name": "ProductDeleted",
    "type": "event"
  }
]`

var (
	marketplaceABI     abi.ABI
	marketplaceABIOnce sync.Once
	marketplaceABIErr  error
)

// MarketplaceABI returns the parsed marketplace contract ABI.
func MarketplaceABI() (abi.ABI, error) {
	marketplaceABIOnce.Do(func() {
		marketplaceABI, marketplaceABIErr = abi.JSON(strings.NewReader(marketplaceABIJSON))
	})
	return marketplaceABI, marketplaceABIErr
}
