package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cresco-money/cresco/internal/credentials"
	"github.com/cresco-money/cresco/internal/faults"
	"github.com/cresco-money/cresco/internal/keys"
	"github.com/cresco-money/cresco/internal/notification"
	"github.com/cresco-money/cresco/internal/stellar"
)

// Linker is the slice of the mobile-money service provisioning depends on.
type Linker interface {
	Link(ctx context.Context, userID, mobileNumber string) (credentials.MobileLink, error)
}

// Service drives wallet provisioning: generate keys, fund on-ledger, persist
// the keypair, then link mobile money concurrently with the initial balance
// read. Account creation and money-linking have different risk profiles, so
// their failure handling is deliberately asymmetric.
type Service struct {
	gateway  stellar.Gateway
	store    credentials.Store
	linker   Linker
	notifier notification.Notifier
	logger   *slog.Logger

	// generate is swappable in tests.
	generate func() (keys.Keypair, error)
}

// NewService builds a provisioning service.
func NewService(gateway stellar.Gateway, store credentials.Store, linker Linker, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		gateway:  gateway,
		store:    store,
		linker:   linker,
		notifier: notifier,
		logger:   logger,
		generate: keys.Generate,
	}
}

// Input captures a provisioning request.
type Input struct {
	UserID       string
	MobileNumber string
}

// LinkOutcome is the secondary signal reporting how mobile-money linking went.
type LinkOutcome struct {
	Status        string
	LinkReference string
	Warning       string
}

// Result reports a completed provisioning. NativeBalance may be empty when
// the post-funding balance read failed; the account itself is still valid.
type Result struct {
	UserID        string
	PublicKey     string
	NativeBalance string
	Link          LinkOutcome
	CreatedAt     time.Time
}

// Provision creates, funds, and persists a wallet for the user, then links
// mobile money. Funding or persistence failure aborts the whole flow; link
// failure degrades to a warning on an otherwise successful result.
func (s *Service) Provision(ctx context.Context, input Input) (Result, error) {
	if input.UserID == "" {
		return Result{}, faults.New(faults.KindUserInput, "provision", "user id is required")
	}

	pair, err := s.generate()
	if err != nil {
		return Result{}, faults.Wrap(faults.KindFatalInvariant, "generate_keys", err)
	}

	if err := s.fund(ctx, pair.Address); err != nil {
		// Nothing was persisted; the same signup can be retried cleanly.
		return Result{}, err
	}

	if err := s.persist(ctx, input.UserID, pair); err != nil {
		return Result{}, err
	}

	result := Result{
		UserID:    input.UserID,
		PublicKey: pair.Address,
		CreatedAt: time.Now().UTC(),
	}

	// The account path is committed. Linking and the initial balance read
	// run concurrently; neither can fail the provisioning.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Link = s.link(gctx, input)
		return nil
	})
	g.Go(func() error {
		state, err := s.gateway.FetchAccount(gctx, pair.Address)
		if err != nil {
			s.logger.Warn("post-funding balance read failed",
				"user_id", input.UserID,
				"public_key", pair.Address,
				"error", err)
			return nil
		}
		result.NativeBalance = state.NativeBalance.StringFixed(7)
		return nil
	})
	_ = g.Wait()

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindWalletProvisioned,
			Destination: input.UserID,
			Reference:   pair.Address,
			Body:        fmt.Sprintf("Wallet %s is ready", pair.Address),
		})
	}

	return result, nil
}

func (s *Service) fund(ctx context.Context, address string) error {
	err := s.gateway.FundAccount(ctx, address)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stellar.ErrAlreadyFunded):
		// A freshly generated address colliding with a funded one means the
		// flow is being replayed with stale state; not retryable as-is.
		return faults.Wrap(faults.KindDefinitiveRejection, "fund", err)
	case errors.Is(err, stellar.ErrUnreachable):
		return faults.Wrap(faults.KindRecoverableRemote, "fund", err)
	default:
		// An unclassified faucet failure (a 5xx, a malformed response) says
		// nothing definitive about the address; the signup may be retried.
		return faults.Wrap(faults.KindRecoverableRemote, "fund", err)
	}
}

func (s *Service) persist(ctx context.Context, userID string, pair keys.Keypair) error {
	err := s.store.SaveAccount(ctx, credentials.Account{
		UserID:     userID,
		PublicKey:  pair.Address,
		PrivateKey: pair.Seed,
		CreatedAt:  time.Now().UTC(),
	})
	if err == nil {
		return nil
	}

	// The address is funded on-ledger but its private key was never stored
	// anywhere durable: an unrecoverable resource leak, reported distinctly
	// so operators can act on it. The seed itself is never logged.
	s.logger.Error("orphaned funded account",
		"user_id", userID,
		"public_key", pair.Address,
		"error", err)
	if errors.Is(err, credentials.ErrDuplicateAccount) {
		return faults.Wrap(faults.KindFatalInvariant, "save_account", err)
	}
	return faults.Wrap(faults.KindFatalInvariant, "save_account", fmt.Errorf("orphaned funded account %s: %w", pair.Address, err))
}

func (s *Service) link(ctx context.Context, input Input) LinkOutcome {
	if input.MobileNumber == "" {
		return LinkOutcome{Status: credentials.LinkStatusPending, Warning: "no mobile number provided"}
	}

	link, err := s.linker.Link(ctx, input.UserID, input.MobileNumber)
	if err != nil {
		s.logger.Warn("mobile money linking failed",
			"user_id", input.UserID,
			"error", err)
		return LinkOutcome{Status: credentials.LinkStatusFailed, Warning: "mobile money linking failed, retry later"}
	}
	return LinkOutcome{Status: link.Status, LinkReference: link.LinkReference}
}
