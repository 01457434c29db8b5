// Package evm implements chainadapter.ChainAdapter for Ethereum-family
// chains (Ethereum, Base, Sepolia) against a deterministic escrow
// factory, grounded on the go-ethereum client wiring used throughout
// the example pack's bridge/relayer code
// (JadeSamLee-cosmos-swap/relayer/pkg/ethereum_client).
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainadapter"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/events"
	"github.com/escion333/fusion-plus-xlm-sub000/internal/money"
)

// Config configures one EVM adapter instance (spec.md §6.2/§6.4).
type Config struct {
	ChainID            chainmodel.ChainID
	RPCEndpoint        string
	FactoryAddress     common.Address
	PrivateKeyHex      string
	ConfirmationDepth   uint64
	RetryConfig        chainadapter.RetryConfig
}

// Adapter is the EVM ChainAdapter. It owns the signer and serializes
// submissions through submitMu so a single in-flight transaction per
// account prevents nonce collisions, per spec.md §5.
type Adapter struct {
	cfg        Config
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	evmChainID *big.Int
	logger     *zap.Logger

	factoryABI abi.ABI
	escrowABI  abi.ABI

	submitMu sync.Mutex
}

// Dial connects to an EVM RPC endpoint and loads the resolver's signing key.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCEndpoint, err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: parse signing key: %w", err)
	}
	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		client.Close()
		return nil, fmt.Errorf("evm: signing key has no ECDSA public key")
	}
	address := crypto.PubkeyToAddress(*pub)

	evmChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: fetch chain id: %w", err)
	}

	factoryABI, err := abi.JSON(strings.NewReader(escrowFactoryABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: parse factory abi: %w", err)
	}
	escrowABI, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: parse escrow abi: %w", err)
	}

	logger.Info("evm adapter initialized",
		zap.String("chain", string(cfg.ChainID)),
		zap.String("address", address.Hex()),
		zap.String("evm_chain_id", evmChainID.String()),
	)

	return &Adapter{
		cfg:        cfg,
		client:     client,
		privateKey: privateKey,
		address:    address,
		evmChainID: evmChainID,
		logger:     logger,
		factoryABI: factoryABI,
		escrowABI:  escrowABI,
	}, nil
}

func (a *Adapter) Close() { a.client.Close() }

func (a *Adapter) ChainID() chainmodel.ChainID { return a.cfg.ChainID }

// KeccakHashlock derives the Keccak-256 hashlock for an EVM escrow from
// a preimage, per spec.md §3/§9.
func KeccakHashlock(preimage chainmodel.Preimage) chainmodel.Hashlock {
	h := crypto.Keccak256Hash(preimage.Bytes())
	hl, _ := chainmodel.HashlockFromBytes(h.Bytes())
	return hl
}

// ValidateAddress checks that s is a syntactically valid EVM hex
// address, mirroring stellar.ValidateAddress for the address-syntax
// validation spec.md §4.5.1 requires at intake.
func ValidateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("evm: %q is not a valid hex address", s)
	}
	return nil
}

func (a *Adapter) LatestHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := chainadapter.WithRetry(ctx, a.cfg.RetryConfig, func(ctx context.Context) error {
		header, err := a.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}
		height = header.Number.Uint64()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if height < a.cfg.ConfirmationDepth {
		return 0, nil
	}
	return height - a.cfg.ConfirmationDepth, nil
}

var escrowCreatedTopic = crypto.Keccak256Hash([]byte("EscrowCreated(bytes32,address,address,address,uint256)"))
var escrowFundedTopic = crypto.Keccak256Hash([]byte("EscrowFunded(bytes32,address,uint256)"))
var escrowWithdrawnTopic = crypto.Keccak256Hash([]byte("EscrowWithdrawn(bytes32,bytes32)"))
var escrowCancelledTopic = crypto.Keccak256Hash([]byte("EscrowCancelled(bytes32)"))

func (a *Adapter) PollEvents(ctx context.Context, fromHeight, toHeight uint64) ([]events.EscrowEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromHeight),
		ToBlock:   new(big.Int).SetUint64(toHeight),
		Addresses: []common.Address{a.cfg.FactoryAddress},
	}

	var logs []types.Log
	err := chainadapter.WithRetry(ctx, a.cfg.RetryConfig, func(ctx context.Context) error {
		l, err := a.client.FilterLogs(ctx, query)
		if err != nil {
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}
		logs = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]events.EscrowEvent, 0, len(logs))
	for _, lg := range logs {
		ev, ok := decodeLog(a.cfg.ChainID, lg)
		if ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func decodeLog(chain chainmodel.ChainID, lg types.Log) (events.EscrowEvent, bool) {
	if len(lg.Topics) == 0 {
		return events.EscrowEvent{}, false
	}
	base := events.EscrowEvent{
		Chain:    chain,
		Escrow:   lg.Address.Hex(),
		Height:   lg.BlockNumber,
		TxID:     lg.TxHash.Hex(),
		LogIndex: uint32(lg.Index),
	}
	if len(lg.Topics) > 1 {
		oh, err := chainmodel.OrderHashFromBytes(lg.Topics[1].Bytes())
		if err == nil {
			base.OrderHash = oh
		}
	}

	switch lg.Topics[0] {
	case escrowCreatedTopic:
		base.Kind = events.Created
	case escrowFundedTopic:
		base.Kind = events.Funded
	case escrowWithdrawnTopic:
		base.Kind = events.Withdrawn
		if len(lg.Topics) > 2 {
			secret, err := chainmodel.ParsePreimage(lg.Topics[2].Hex())
			if err == nil {
				base.Kind = events.SecretRevealed
				base.RevealedSecret = secret
			}
		}
	case escrowCancelledTopic:
		base.Kind = events.Cancelled
	default:
		return events.EscrowEvent{}, false
	}
	return base, true
}

func (a *Adapter) PredictEscrow(ctx context.Context, params chainadapter.DeployParams) (string, error) {
	var addr common.Address
	err := chainadapter.WithRetry(ctx, a.cfg.RetryConfig, func(ctx context.Context) error {
		data, err := a.factoryABI.Pack("predictEscrowAddress", params.OrderHash.Bytes(), params.Hashlock.Bytes())
		if err != nil {
			return fmt.Errorf("evm: pack predictEscrowAddress: %w", err)
		}
		result, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.cfg.FactoryAddress, Data: data}, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}
		vals, err := a.factoryABI.Unpack("predictEscrowAddress", result)
		if err != nil || len(vals) == 0 {
			return fmt.Errorf("evm: unpack predictEscrowAddress: %w", err)
		}
		addr = vals[0].(common.Address)
		return nil
	})
	return addr.Hex(), err
}

func (a *Adapter) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(a.privateKey, a.evmChainID)
	if err != nil {
		return nil, fmt.Errorf("evm: build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// send packs call data and submits a signed transaction to the escrow
// factory or a specific escrow instance, one at a time (submitMu),
// guaranteeing a single in-flight submission per account.
func (a *Adapter) send(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) (chainadapter.SubmissionID, error) {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("evm: pack %s: %w", method, err)
	}

	var txHash common.Hash
	err = chainadapter.WithRetry(ctx, a.cfg.RetryConfig, func(ctx context.Context) error {
		nonce, err := a.client.PendingNonceAt(ctx, a.address)
		if err != nil {
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}
		gasPrice, err := a.client.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}
		gasLimit, err := a.client.EstimateGas(ctx, ethereum.CallMsg{From: a.address, To: &to, Data: data})
		if err != nil {
			if revertReason := extractRevertReason(err); revertReason != "" {
				return &chainadapter.EscrowReverted{Reason: revertReason}
			}
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    big.NewInt(0),
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     data,
		})
		signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.evmChainID), a.privateKey)
		if err != nil {
			return fmt.Errorf("evm: sign tx: %w", err)
		}
		if err := a.client.SendTransaction(ctx, signed); err != nil {
			if revertReason := extractRevertReason(err); revertReason != "" {
				return &chainadapter.EscrowReverted{Reason: revertReason}
			}
			return fmt.Errorf("%w: %v", chainadapter.ErrNonceConflict, err)
		}
		txHash = signed.Hash()
		return nil
	})
	if err != nil {
		return "", err
	}
	return chainadapter.SubmissionID(txHash.Hex()), nil
}

func extractRevertReason(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if strings.Contains(s, "revert") || strings.Contains(s, "execution reverted") {
		return s
	}
	return ""
}

func (a *Adapter) DeployEscrow(ctx context.Context, params chainadapter.DeployParams) (string, chainadapter.SubmissionID, error) {
	addr, err := a.PredictEscrow(ctx, params)
	if err != nil {
		return "", "", err
	}
	sub, err := a.send(ctx, a.factoryABI, a.cfg.FactoryAddress, "deployEscrow",
		params.OrderHash.Bytes(), params.Hashlock.Bytes(), common.HexToAddress(params.Maker),
		common.HexToAddress(params.Taker), params.Amount.Big(), params.SafetyDeposit.Big(), params.PackedTimelocks)
	if err != nil {
		return "", "", err
	}
	return addr, sub, nil
}

func (a *Adapter) FundEscrow(ctx context.Context, escrow string, amount money.Amount, asset string) (chainadapter.SubmissionID, error) {
	return a.send(ctx, a.escrowABI, common.HexToAddress(escrow), "fund", amount.Big())
}

func (a *Adapter) Withdraw(ctx context.Context, escrow string, preimage chainmodel.Preimage) (chainadapter.SubmissionID, error) {
	sub, err := a.send(ctx, a.escrowABI, common.HexToAddress(escrow), "withdraw", preimage.Bytes())
	if err != nil && chainadapter.IsRevert(err) {
		return "", err
	}
	return sub, err
}

func (a *Adapter) Cancel(ctx context.Context, escrow string) (chainadapter.SubmissionID, error) {
	return a.send(ctx, a.escrowABI, common.HexToAddress(escrow), "cancel")
}

// GetEscrowState reads the escrow contract's state() view. It does not
// read the immutables: Params in the returned EscrowInfo is left empty.
func (a *Adapter) GetEscrowState(ctx context.Context, escrow string) (chainadapter.EscrowInfo, error) {
	var info chainadapter.EscrowInfo
	err := chainadapter.WithRetry(ctx, a.cfg.RetryConfig, func(ctx context.Context) error {
		addr := common.HexToAddress(escrow)
		data, err := a.escrowABI.Pack("state")
		if err != nil {
			return fmt.Errorf("evm: pack state: %w", err)
		}
		result, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", chainadapter.ErrRPCTimeout, err)
		}
		vals, err := a.escrowABI.Unpack("state", result)
		if err != nil || len(vals) == 0 {
			return fmt.Errorf("evm: unpack state: %w", err)
		}
		info.State = chainadapter.EscrowState(vals[0].(uint8))
		return nil
	})
	return info, err
}

var _ chainadapter.ChainAdapter = (*Adapter)(nil)
