// internal/blockchain/solbc/transfer.go
package solbc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

// maxSubmitElapsed bounds retries of a single transfer submission.
const maxSubmitElapsed = 15 * time.Second

// Transfer builds, signs and submits a system transfer of lamports from the
// wallet to the destination. Only stale-blockhash rejections are retried.
func (c *Client) Transfer(ctx context.Context, from *wallet.Wallet, to solana.PublicKey, lamports uint64) (string, error) {
	op := func() (solana.Signature, error) {
		tx, err := c.createSignedTransfer(ctx, from, to, lamports)
		if err != nil {
			return solana.Signature{}, err
		}
		return c.submit(ctx, tx)
	}

	sig, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxSubmitElapsed),
	)
	if err != nil {
		return "", err
	}

	c.logger.Info("Transfer submitted",
		zap.String("from", from.PublicKey.String()),
		zap.String("to", to.String()),
		zap.Uint64("lamports", lamports),
		zap.String("signature", sig.String()))
	return sig.String(), nil
}

func (c *Client) createSignedTransfer(ctx context.Context, from *wallet.Wallet, to solana.PublicKey, lamports uint64) (*solana.Transaction, error) {
	blockhash, err := c.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	ix := system.NewTransferInstruction(lamports, from.PublicKey, to).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(from.PublicKey))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create transaction: %w", err))
	}

	if err := from.SignTransaction(tx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to sign transaction: %w", err))
	}
	return tx, nil
}

func (c *Client) submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.SendTransaction(ctx, tx)
	if err != nil {
		if isBlockhashNotFound(err) {
			return solana.Signature{}, err // временная ошибка для retry
		}
		return solana.Signature{}, backoff.Permanent(fmt.Errorf("transaction failed: %w", err))
	}
	return sig, nil
}

func isBlockhashNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BlockhashNotFound")
}
