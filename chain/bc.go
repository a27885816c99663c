package chain

import (
	"context"
	"fmt"
	"math/big"

	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Backend is the subset of ethclient.Client the clients in this package use.
type Backend interface {
	ethereum.ContractCaller
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BlockReceipts(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type BlockchainClient struct {
	client Backend
}

func NewBlockchainClient(ethURL string) (*BlockchainClient, error) {
	client, err := ethclient.Dial(ethURL)
	if err != nil {
		return nil, err
	}
	return &BlockchainClient{client: client}, nil
}

func NewBlockchainClientWithBackend(backend Backend) *BlockchainClient {
	return &BlockchainClient{client: backend}
}

// GetChainBlock fetches block blockNumber with its receipts.
func (bc *BlockchainClient) GetChainBlock(ctx context.Context, blockNumber uint64) (*model.ChainBlock, error) {
	number := new(big.Int).SetUint64(blockNumber)
	block, err := bc.client.BlockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	receipts, err := bc.client.BlockReceipts(ctx, rpc.BlockNumberOrHashWithNumber(rpc.BlockNumber(blockNumber)))
	if err != nil {
		logrus.Errorf("GetBlockReceipts %d err: %v", blockNumber, err)
		return nil, err
	}
	return ConvertBlockToChainBlock(block, receipts), nil
}

func (bc *BlockchainClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	header, err := bc.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return header.Number.Uint64(), nil
}

// Token returns a client reading the ERC20 at address.
func (bc *BlockchainClient) Token(address common.Address) *TokenClient {
	return &TokenClient{caller: bc.client, address: address}
}

func ConvertBlockToChainBlock(block *types.Block, receipts []*types.Receipt) *model.ChainBlock {
	chainBlock := &model.ChainBlock{
		Number:    block.NumberU64(),
		Timestamp: block.Time(),
	}
	for idx, tx := range block.Transactions() {
		from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			logrus.Warnf("recover sender of %s: %v", tx.Hash().Hex(), err)
			continue
		}

		var to common.Address
		if tx.To() != nil {
			to = *tx.To()
		}

		chainBlock.Txs = append(chainBlock.Txs, &model.ChainTransaction{
			Id:        tx.Hash(),
			From:      from,
			To:        to,
			Value:     tx.Value(),
			Nonce:     tx.Nonce(),
			Block:     block.NumberU64(),
			Idx:       uint32(idx),
			Timestamp: block.Time(),
		})
	}
	for _, receipt := range receipts {
		chainBlock.Receipts = append(chainBlock.Receipts, &model.ChainReceipt{
			Receipt:   receipt,
			Timestamp: block.Time(),
		})
	}
	return chainBlock
}

// TokenClient reads ERC20 metadata over eth_call.
type TokenClient struct {
	caller  ethereum.ContractCaller
	address common.Address
}

func NewTokenClient(caller ethereum.ContractCaller, address common.Address) *TokenClient {
	return &TokenClient{caller: caller, address: address}
}

func (tc *TokenClient) Address() common.Address { return tc.address }

func (tc *TokenClient) Name(ctx context.Context) (string, error) {
	out, err := tc.call(ctx, "name")
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("name: unexpected type %T", out[0])
	}
	return name, nil
}

func (tc *TokenClient) Symbol(ctx context.Context) (string, error) {
	out, err := tc.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected type %T", out[0])
	}
	return symbol, nil
}

func (tc *TokenClient) Decimals(ctx context.Context) (uint8, error) {
	out, err := tc.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return decimals, nil
}

func (tc *TokenClient) TotalSupply(ctx context.Context) (*big.Int, error) {
	return tc.callUint(ctx, "totalSupply")
}

func (tc *TokenClient) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return tc.callUint(ctx, "balanceOf", account)
}

func (tc *TokenClient) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return tc.callUint(ctx, "allowance", owner, spender)
}

// Info reads name, symbol, decimals and total supply in one go.
func (tc *TokenClient) Info(ctx context.Context) (*model.TokenInfo, error) {
	name, err := tc.Name(ctx)
	if err != nil {
		return nil, err
	}
	symbol, err := tc.Symbol(ctx)
	if err != nil {
		return nil, err
	}
	decimals, err := tc.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := tc.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	return &model.TokenInfo{
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: supply,
	}, nil
}

func (tc *TokenClient) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := tc.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, out[0])
	}
	return value, nil
}

func (tc *TokenClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := model.ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := tc.address
	res, err := tc.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		logrus.Errorf("call %s on %s err: %v", method, tc.address.Hex(), err)
		return nil, err
	}
	out, err := model.ERC20ABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}
