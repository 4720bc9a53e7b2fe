package mobilemoney

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cresco-money/cresco/internal/credentials"
	"github.com/cresco-money/cresco/internal/faults"
)

// e164Pattern matches the phone format the aggregator accepts.
var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// Service links mobile-money accounts and drives off-ledger transfers
// through the aggregator.
type Service struct {
	aggregator Aggregator
	store      credentials.Store
}

// NewService builds a mobile-money service.
func NewService(aggregator Aggregator, store credentials.Store) *Service {
	return &Service{aggregator: aggregator, store: store}
}

// Link validates the number, asks the aggregator to associate it with the
// user, and records the active link. On any failure nothing is persisted; a
// failed attempt is never fatal to the caller's broader flow.
func (s *Service) Link(ctx context.Context, userID, mobileNumber string) (credentials.MobileLink, error) {
	mobileNumber = strings.TrimSpace(mobileNumber)
	if !e164Pattern.MatchString(mobileNumber) {
		return credentials.MobileLink{}, faults.New(faults.KindUserInput, "link", "invalid mobile number format")
	}

	resp, err := s.aggregator.LinkAccount(ctx, LinkRequest{MobileNumber: mobileNumber, UserID: userID})
	if err != nil {
		if errors.Is(err, ErrAggregatorUnreachable) {
			return credentials.MobileLink{}, faults.Wrap(faults.KindRecoverableRemote, "link", err)
		}
		return credentials.MobileLink{}, faults.Wrap(faults.KindDefinitiveRejection, "link", err)
	}

	link := credentials.MobileLink{
		UserID:        userID,
		MobileNumber:  mobileNumber,
		LinkReference: resp.LinkReference,
		Status:        credentials.LinkStatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveMobileLink(ctx, link); err != nil {
		return credentials.MobileLink{}, faults.Wrap(faults.KindRecoverableRemote, "save_link", err)
	}
	return link, nil
}

// PayInput captures an off-ledger transfer between mobile-money accounts.
type PayInput struct {
	SenderUserID    string
	RecipientID     string
	RecipientNumber string
	Amount          decimal.Decimal
}

// PayResult is the aggregator-side outcome of an off-ledger transfer.
type PayResult struct {
	TransactionReference string
	Status               string
	CompletedAt          time.Time
}

// Pay sends funds from the user's linked mobile-money account. The sender
// must hold an active link.
func (s *Service) Pay(ctx context.Context, input PayInput) (PayResult, error) {
	if !input.Amount.IsPositive() {
		return PayResult{}, faults.New(faults.KindUserInput, "pay", "amount must be positive")
	}
	if !e164Pattern.MatchString(strings.TrimSpace(input.RecipientNumber)) {
		return PayResult{}, faults.New(faults.KindUserInput, "pay", "invalid recipient number format")
	}

	link, err := s.store.GetMobileLink(ctx, input.SenderUserID)
	if err != nil {
		if errors.Is(err, credentials.ErrLinkNotFound) {
			return PayResult{}, faults.Wrap(faults.KindDefinitiveRejection, "pay", err)
		}
		return PayResult{}, faults.Wrap(faults.KindRecoverableRemote, "pay", err)
	}
	if link.Status != credentials.LinkStatusActive {
		return PayResult{}, faults.New(faults.KindDefinitiveRejection, "pay", "mobile money link is not active")
	}

	resp, err := s.aggregator.SendPayment(ctx, PaymentRequest{
		Amount:          input.Amount.String(),
		RecipientID:     input.RecipientID,
		RecipientNumber: strings.TrimSpace(input.RecipientNumber),
		SenderID:        input.SenderUserID,
		SenderNumber:    link.MobileNumber,
	})
	if err != nil {
		if errors.Is(err, ErrAggregatorUnreachable) {
			return PayResult{}, faults.Wrap(faults.KindRecoverableRemote, "pay", err)
		}
		return PayResult{}, faults.Wrap(faults.KindDefinitiveRejection, "pay", err)
	}

	return PayResult{
		TransactionReference: resp.TransactionReference,
		Status:               resp.Status,
		CompletedAt:          time.Now().UTC(),
	}, nil
}
