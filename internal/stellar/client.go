package stellar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
)

const assetTypeNative = "native"

// Client implements Gateway against a Horizon instance and its companion
// friendbot faucet. Horizon traffic goes through the SDK client; friendbot
// is a standalone service with no SDK surface for a custom base URL, so it
// is called directly.
type Client struct {
	horizon      *horizonclient.Client
	friendbotURL string
	http         *http.Client
}

// NewClient builds a ledger gateway for the given Horizon and friendbot base URLs.
func NewClient(horizonURL, friendbotURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	horizon := &horizonclient.Client{
		HorizonURL: horizonURL,
		HTTP:       httpClient,
	}
	horizon.SetHorizonTimeout(timeout)
	return &Client{
		horizon: horizon,
		friendbotURL: strings.TrimRight(friendbotURL, "/"),
		http:         httpClient,
	}
}

// faucetProblem is the problem+json error envelope friendbot responds with.
type faucetProblem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes struct {
			Transaction string   `json:"transaction"`
			Operations  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras"`
}

// FundAccount requests faucet funding for a brand-new address.
func (c *Client) FundAccount(ctx context.Context, address string) error {
	endpoint := c.friendbotURL + "?addr=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	problem := decodeFaucetProblem(resp.Body)
	if resp.StatusCode == http.StatusBadRequest && fundingCollision(problem) {
		return ErrAlreadyFunded
	}
	return fmt.Errorf("faucet refused funding for %s: %s", address, problemDetail(problem, resp.StatusCode))
}

// FetchAccount reads the account resource for the given address. The SDK
// client bounds the call with HorizonTimeout rather than the caller context.
func (c *Client) FetchAccount(_ context.Context, address string) (AccountState, error) {
	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		if herr := horizonclient.GetError(err); herr != nil {
			switch herr.Problem.Status {
			case http.StatusNotFound:
				return AccountState{}, ErrNotFound
			case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return AccountState{}, fmt.Errorf("%w: %s", ErrUnreachable, herr.Problem.Title)
			default:
				return AccountState{}, fmt.Errorf("fetch account %s: %w", address, herr)
			}
		}
		return AccountState{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	native := decimal.Zero
	for _, balance := range account.Balances {
		if balance.Asset.Type != assetTypeNative {
			continue
		}
		native, err = decimal.NewFromString(balance.Balance)
		if err != nil {
			return AccountState{}, fmt.Errorf("parse native balance %q: %w", balance.Balance, err)
		}
		break
	}

	return AccountState{
		Address:       account.AccountID,
		Sequence:      account.Sequence,
		NativeBalance: native,
		Ledger:        account.LastModifiedLedger,
		AsOf:          time.Now().UTC(),
	}, nil
}

// Submit posts a signed transaction envelope to Horizon.
func (c *Client) Submit(_ context.Context, envelopeXDR string) (TxResult, error) {
	tx, err := c.horizon.SubmitTransactionXDR(envelopeXDR)
	if err != nil {
		if herr := horizonclient.GetError(err); herr != nil {
			if codes, cerr := herr.ResultCodes(); cerr == nil {
				return TxResult{}, &RejectedError{
					TransactionCode: codes.TransactionCode,
					OperationCodes:  codes.OperationCodes,
				}
			}
			if herr.Problem.Status == http.StatusGatewayTimeout {
				// Horizon timed out waiting for inclusion; the transaction
				// may still make it into a ledger.
				return TxResult{}, fmt.Errorf("%w: submission timed out", ErrUnreachable)
			}
			return TxResult{}, fmt.Errorf("submit transaction: %w", herr)
		}
		return TxResult{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return TxResult{Hash: tx.Hash, Ledger: uint32(tx.Ledger), Successful: tx.Successful}, nil
}

func decodeFaucetProblem(body io.Reader) faucetProblem {
	var problem faucetProblem
	// Best effort; some upstream errors are not problem+json.
	_ = json.NewDecoder(body).Decode(&problem)
	return problem
}

func problemDetail(problem faucetProblem, status int) string {
	switch {
	case problem.Detail != "":
		return problem.Detail
	case problem.Title != "":
		return problem.Title
	default:
		return fmt.Sprintf("status %d", status)
	}
}

func fundingCollision(problem faucetProblem) bool {
	for _, code := range problem.Extras.ResultCodes.Operations {
		if code == "op_already_exists" {
			return true
		}
	}
	return strings.Contains(problem.Detail, "createAccountAlreadyExist")
}
