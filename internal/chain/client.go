// Package chain wraps the go-ethereum RPC client behind the two read
// operations the event relay needs: current head and ranged event queries.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EventKind identifies one of the three marketplace event topics.
type EventKind string

const (
	EventListed  EventKind = "listed"
	EventSold    EventKind = "sold"
	EventDeleted EventKind = "deleted"
)

func (k EventKind) abiName() string {
	switch k {
	case EventListed:
		return "ProductListed"
	case EventSold:
		return "ProductSold"
	case EventDeleted:
		return "ProductDeleted"
	}
	return ""
}

// Event is one decoded on-chain marketplace event occurrence. TxHash plus
// LogIndex uniquely identify it.
type Event struct {
	Kind      EventKind
	TxHash    string
	LogIndex  uint
	ProductID string
	Name      string
}

// Client is the chain RPC collaborator, polling-only (no subscriptions).
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	address   common.Address
}

// NewClient dials the RPC endpoint and binds the marketplace contract address.
func NewClient(ctx context.Context, rpcURL, contractAddress string) (*Client, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddress)
	}
	if _, err := MarketplaceABI(); err != nil {
		return nil, fmt.Errorf("parse marketplace abi: %w", err)
	}

	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		address:   common.HexToAddress(contractAddress),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// HeadNumber returns the current chain head.
func (c *Client) HeadNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// FilterEvents returns the decoded events of one kind in the inclusive block
// range, in the order the node returns them (position-ascending). Logs that
// fail to decode are logged and skipped rather than failing the whole range.
func (c *Client) FilterEvents(ctx context.Context, kind EventKind, from, to uint64) ([]Event, error) {
	contractABI, err := MarketplaceABI()
	if err != nil {
		return nil, err
	}
	abiEvent, ok := contractABI.Events[kind.abiName()]
	if !ok {
		return nil, fmt.Errorf("unknown event kind: %s", kind)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{abiEvent.ID}},
	}
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		args, err := abiEvent.Inputs.Unpack(lg.Data)
		if err != nil {
			slog.Warn("undecodable contract log",
				"kind", kind, "tx", lg.TxHash.Hex(), "log_index", lg.Index, "err", err)
			continue
		}

		ev := Event{
			Kind:     kind,
			TxHash:   lg.TxHash.Hex(),
			LogIndex: lg.Index,
		}
		if len(args) > 0 {
			if id, ok := args[0].(*big.Int); ok {
				ev.ProductID = id.String()
			}
		}
		if len(args) > 1 {
			if name, ok := args[1].(string); ok {
				ev.Name = name
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
