package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/txnbuild"

	"github.com/cresco-money/cresco/internal/balance"
	"github.com/cresco-money/cresco/internal/credentials"
	"github.com/cresco-money/cresco/internal/faults"
	"github.com/cresco-money/cresco/internal/keys"
	"github.com/cresco-money/cresco/internal/notification"
	"github.com/cresco-money/cresco/internal/stellar"
)

const (
	// baseFeeStroops mirrors the fee the mobile app always offered.
	baseFeeStroops = 100_000
	// validityWindow bounds how long a signed transaction stays submittable.
	validityWindow = 180 * time.Second
)

// ErrNoWallet indicates the sender has no provisioned wallet.
var ErrNoWallet = errors.New("no wallet for user")

// ErrSubmitAmbiguous indicates a transport failure after submission started:
// the transaction may or may not have reached a ledger. Resubmitting the same
// envelope blindly is unsafe because of sequence numbers; the caller must
// re-fetch the account sequence before any retry.
var ErrSubmitAmbiguous = errors.New("submission outcome unknown")

// Service builds, signs, and submits native-asset transfers.
type Service struct {
	store             credentials.Store
	gateway           stellar.Gateway
	balances          *balance.Service
	notifier          notification.Notifier
	logger            *slog.Logger
	networkPassphrase string
}

// NewService constructs a payment executor for the given network passphrase.
func NewService(store credentials.Store, gateway stellar.Gateway, balances *balance.Service, notifier notification.Notifier, networkPassphrase string, logger *slog.Logger) *Service {
	return &Service{
		store:             store,
		gateway:           gateway,
		balances:          balances,
		notifier:          notifier,
		logger:            logger,
		networkPassphrase: networkPassphrase,
	}
}

// PayInput captures one user-initiated transfer.
type PayInput struct {
	UserID      string
	Destination string
	Amount      decimal.Decimal
}

// PayResult reports a submitted transfer.
type PayResult struct {
	Hash        string
	Ledger      uint32
	CompletedAt time.Time
}

// Pay executes a single native-asset transfer from the user's wallet.
func (s *Service) Pay(ctx context.Context, input PayInput) (PayResult, error) {
	if !input.Amount.IsPositive() {
		return PayResult{}, faults.New(faults.KindUserInput, "pay", "amount must be positive")
	}
	if !keys.IsValidAddress(input.Destination) {
		return PayResult{}, faults.New(faults.KindUserInput, "pay", "invalid destination address")
	}

	account, err := s.store.GetAccount(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, credentials.ErrAccountNotFound) {
			return PayResult{}, faults.Wrap(faults.KindDefinitiveRejection, "pay", ErrNoWallet)
		}
		return PayResult{}, faults.Wrap(faults.KindRecoverableRemote, "load_wallet", err)
	}

	state, err := s.gateway.FetchAccount(ctx, account.PublicKey)
	if err != nil {
		if errors.Is(err, stellar.ErrNotFound) {
			return PayResult{}, faults.Wrap(faults.KindDefinitiveRejection, "fetch_sequence", err)
		}
		return PayResult{}, faults.Wrap(faults.KindRecoverableRemote, "fetch_sequence", err)
	}

	envelope, err := s.buildAndSign(account, state.Sequence, input)
	if err != nil {
		return PayResult{}, err
	}

	result, err := s.gateway.Submit(ctx, envelope)
	if err != nil {
		var rejected *stellar.RejectedError
		switch {
		case errors.As(err, &rejected):
			return PayResult{}, faults.Wrap(faults.KindDefinitiveRejection, "submit", err)
		case errors.Is(err, stellar.ErrUnreachable):
			// The envelope may have been processed with the response lost.
			return PayResult{}, faults.Wrap(faults.KindRecoverableRemote, "submit",
				fmt.Errorf("%w: %w", ErrSubmitAmbiguous, err))
		default:
			return PayResult{}, faults.Wrap(faults.KindRecoverableRemote, "submit", err)
		}
	}

	// Reflect the spend locally before the next ledger fetch confirms it.
	if s.balances != nil {
		if err := s.balances.ApplyOptimisticDebit(ctx, input.UserID, input.Amount); err != nil {
			s.logger.Warn("optimistic debit failed", "user_id", input.UserID, "error", err)
		}
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPaymentSent,
			Destination: input.UserID,
			Reference:   result.Hash,
			Body:        fmt.Sprintf("Sent %s XLM to %s", input.Amount, input.Destination),
		})
	}

	return PayResult{Hash: result.Hash, Ledger: result.Ledger, CompletedAt: time.Now().UTC()}, nil
}

// buildAndSign assembles the one-operation transfer and signs it with the
// stored seed. The seed stays inside this call.
func (s *Service) buildAndSign(account credentials.Account, sequence int64, input PayInput) (string, error) {
	signer, err := keys.ParseSigner(account.PrivateKey)
	if err != nil {
		return "", faults.Wrap(faults.KindFatalInvariant, "parse_key", err)
	}

	source := txnbuild.SimpleAccount{AccountID: account.PublicKey, Sequence: sequence}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: input.Destination,
				Amount:      input.Amount.String(),
				Asset:       txnbuild.NativeAsset{},
			},
		},
		BaseFee:       baseFeeStroops,
		Preconditions: txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(int64(validityWindow.Seconds()))},
	})
	if err != nil {
		return "", faults.Wrap(faults.KindUserInput, "build_transaction", err)
	}

	tx, err = tx.Sign(s.networkPassphrase, signer)
	if err != nil {
		return "", faults.Wrap(faults.KindFatalInvariant, "sign", err)
	}

	envelope, err := tx.Base64()
	if err != nil {
		return "", faults.Wrap(faults.KindFatalInvariant, "encode_envelope", err)
	}
	return envelope, nil
}
