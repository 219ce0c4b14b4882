// Package indexer reads Safe transaction history from the Safe Transaction Service.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/pkg/version"
)

const (
	DefaultBaseURL  = "https://safe-transaction-base-sepolia.safe.global/api"
	DefaultTimeout  = 15 * time.Second
	DefaultMaxPages = 20
)

// ErrAPIKeyExpired is returned when the configured API key is an expired JWT.
var ErrAPIKeyExpired = errors.New("indexer api key has expired")

// Config holds the indexer client settings.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	MaxPages int
}

// Client is a domain.TransactionIndexer over the transaction service REST API.
type Client struct {
	client   *resty.Client
	baseURL  string
	maxPages int
	logger   *slog.Logger
}

// New creates a client. The API key is checked for expiry when it is a JWT.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if err := checkAPIKey(cfg.APIKey, time.Now()); err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent())
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{client: client, baseURL: baseURL, maxPages: cfg.MaxPages, logger: logger}, nil
}

// AllTransactions returns every transaction of account, following pagination
// up to the configured page bound.
func (c *Client) AllTransactions(ctx context.Context, account common.Address) ([]domain.IndexedTransaction, error) {
	url := fmt.Sprintf("%s/v1/safes/%s/all-transactions/", c.baseURL, account.Hex())
	var out []domain.IndexedTransaction

	for page := 0; url != ""; page++ {
		if page == c.maxPages {
			c.logger.Warn("transaction history truncated",
				slog.String("account", account.Hex()),
				slog.Int("pages", page),
			)
			break
		}

		var body pageResponse
		req := c.client.R().SetContext(ctx).SetResult(&body)
		if page == 0 {
			// next links already carry the query.
			req.SetQueryParam("ordering", "-timestamp")
		}
		resp, err := req.Get(url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("transaction service returned %s", resp.Status())
		}

		for _, r := range body.Results {
			tx, err := r.toDomain()
			if err != nil {
				return nil, err
			}
			out = append(out, tx)
		}
		url = body.Next
	}
	return out, nil
}

type pageResponse struct {
	Count   int           `json:"count"`
	Next    string        `json:"next"`
	Results []transaction `json:"results"`
}

type transaction struct {
	TxType          string     `json:"txType"`
	TxHash          string     `json:"txHash"`
	TransactionHash string     `json:"transactionHash"`
	To              string     `json:"to"`
	From            string     `json:"from"`
	ExecutionDate   *time.Time `json:"executionDate"`
	Transfers       []transfer `json:"transfers"`
}

type transfer struct {
	Type            string     `json:"type"`
	TokenAddress    string     `json:"tokenAddress"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	Value           string     `json:"value"`
	TransactionHash string     `json:"transactionHash"`
	ExecutionDate   *time.Time `json:"executionDate"`
	TokenInfo       *tokenInfo `json:"tokenInfo"`
}

type tokenInfo struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

func (t transaction) toDomain() (domain.IndexedTransaction, error) {
	tx := domain.IndexedTransaction{
		Hash:   firstNonEmpty(t.TransactionHash, t.TxHash),
		TxType: t.TxType,
		To:     common.HexToAddress(t.To),
		From:   common.HexToAddress(t.From),
	}
	if t.ExecutionDate != nil {
		tx.ExecutionDate = t.ExecutionDate.UTC()
	}
	for _, tr := range t.Transfers {
		mapped, err := tr.toDomain()
		if err != nil {
			return domain.IndexedTransaction{}, fmt.Errorf("transaction %s: %w", tx.Hash, err)
		}
		tx.Transfers = append(tx.Transfers, mapped)
	}
	return tx, nil
}

func (t transfer) toDomain() (domain.IndexedTransfer, error) {
	value := new(big.Int)
	if t.Value != "" {
		if _, ok := value.SetString(t.Value, 10); !ok {
			return domain.IndexedTransfer{}, fmt.Errorf("invalid transfer value %q", t.Value)
		}
	}
	out := domain.IndexedTransfer{
		TokenAddress:    common.HexToAddress(t.TokenAddress),
		From:            common.HexToAddress(t.From),
		To:              common.HexToAddress(t.To),
		Value:           value,
		TransactionHash: t.TransactionHash,
	}
	if t.TokenInfo != nil {
		out.Decimals = t.TokenInfo.Decimals
	} else if t.Type == "ETHER_TRANSFER" {
		out.Decimals = 18
	}
	if t.ExecutionDate != nil {
		out.ExecutionDate = t.ExecutionDate.UTC()
	}
	return out, nil
}

// checkAPIKey rejects JWT keys past their expiry. Opaque keys pass.
func checkAPIKey(key string, now time.Time) error {
	if key == "" || strings.Count(key, ".") != 2 {
		return nil
	}
	token, _, err := jwt.NewParser().ParseUnverified(key, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return fmt.Errorf("%w (expired %s)", ErrAPIKeyExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
