package ethapi

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/model"
	"go.uber.org/zap"
)

// EthApi derives payment proofs from transactions already executed on chain.
// It never submits transactions; signing happens in the member's wallet.
type EthApi struct {
	client        *ethclient.Client
	signer        types.Signer
	tokenDecimals int
	logger        *zap.Logger
}

func NewEthApi(ctx context.Context, rpcURL string, tokenDecimals int, logger *zap.Logger) (*EthApi, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed connecting to eth node at %s", rpcURL)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed fetching chain id")
	}
	if tokenDecimals == 0 {
		tokenDecimals = 18
	}
	return &EthApi{
		client:        client,
		signer:        types.LatestSignerForChainID(chainID),
		tokenDecimals: tokenDecimals,
		logger:        logger.With(zap.String("component", "eth_api"), zap.String("chain_id", chainID.String())),
	}, nil
}

func (ea *EthApi) Close() {
	ea.client.Close()
}

// VerifyPayment looks up reference and reconstructs who paid whom how much.
// An unmined or reverted transaction is an error; the caller may retry until
// the intent expires.
func (ea *EthApi) VerifyPayment(ctx context.Context, reference string) (*model.PaymentProof, error) {
	hash := common.HexToHash(reference)
	tx, pending, err := ea.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching tx %s", reference)
	}
	if pending {
		return nil, errors.Errorf("tx %s is not yet mined", reference)
	}
	receipt, err := ea.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching receipt for tx %s", reference)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, errors.Errorf("tx %s reverted on chain", reference)
	}
	if tx.To() == nil {
		return nil, errors.Errorf("tx %s is a contract creation, not a payment", reference)
	}
	sender, err := types.Sender(ea.signer, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed recovering sender of tx %s", reference)
	}

	payer, err := model.NormalizeWallet(sender.Hex())
	if err != nil {
		return nil, errors.Wrap(err, "bad sender address")
	}
	recipient, err := model.NormalizeWallet(tx.To().Hex())
	if err != nil {
		return nil, errors.Wrap(err, "bad recipient address")
	}
	amount, err := ea.toBaseUnits(tx.Value())
	if err != nil {
		return nil, errors.Wrapf(err, "bad value on tx %s", reference)
	}

	ea.logger.Info("verified payment",
		zap.String("reference", reference),
		zap.String("payer", string(payer)),
		zap.String("recipient", string(recipient)),
		zap.Uint64("amount", amount))
	return &model.PaymentProof{
		Payer:     payer,
		Recipient: recipient,
		Amount:    amount,
		Reference: reference,
	}, nil
}

// toBaseUnits scales a raw chain value (tokenDecimals decimals) to the
// 6-decimal base units used by the ledger, truncating dust.
func (ea *EthApi) toBaseUnits(value *big.Int) (uint64, error) {
	scaled := new(big.Int).Set(value)
	switch {
	case ea.tokenDecimals > 6:
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(ea.tokenDecimals-6)), nil)
		scaled.Quo(scaled, divisor)
	case ea.tokenDecimals < 6:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(6-ea.tokenDecimals)), nil)
		scaled.Mul(scaled, factor)
	}
	if !scaled.IsUint64() {
		return 0, errors.Errorf("value %s overflows the ledger amount range", value)
	}
	return scaled.Uint64(), nil
}
