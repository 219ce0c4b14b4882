package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

// HoldingsAggregator scans every farm token for an account's positions.
type HoldingsAggregator struct {
	registry    *FarmRegistry
	tokens      domain.TokenReader
	concurrency int
	logger      *slog.Logger
}

// NewHoldingsAggregator creates an aggregator over registry and tokens.
func NewHoldingsAggregator(registry *FarmRegistry, tokens domain.TokenReader, logger *slog.Logger) *HoldingsAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &HoldingsAggregator{
		registry:    registry,
		tokens:      tokens,
		concurrency: registry.concurrency,
		logger:      logger,
	}
}

// GetHoldings returns the account's non-zero positions in registry order.
// Any read failure returns a *domain.HoldingsReadError.
func (h *HoldingsAggregator) GetHoldings(ctx context.Context, account common.Address) ([]domain.Holding, error) {
	farms, err := h.registry.ListFarms(ctx)
	if err != nil {
		return nil, &domain.HoldingsReadError{Account: account, Err: err}
	}

	slots := make([]*domain.Holding, len(farms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i := range farms {
		i := i
		g.Go(func() error {
			holding, err := h.readHolding(gctx, farms[i], account)
			if err != nil {
				return err
			}
			slots[i] = holding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &domain.HoldingsReadError{Account: account, Err: err}
	}

	holdings := make([]domain.Holding, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			holdings = append(holdings, *s)
		}
	}

	h.logger.Debug("holdings read",
		slog.String("account", account.Hex()),
		slog.Int("farms", len(farms)),
		slog.Int("holdings", len(holdings)),
	)
	return holdings, nil
}

// GetTotalHoldingsValue sums UserShareValue over GetHoldings.
func (h *HoldingsAggregator) GetTotalHoldingsValue(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	holdings, err := h.GetHoldings(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	return TotalValue(holdings), nil
}

// GetPortfolio returns holdings and their total from one snapshot.
func (h *HoldingsAggregator) GetPortfolio(ctx context.Context, account common.Address) (*domain.Portfolio, error) {
	holdings, err := h.GetHoldings(ctx, account)
	if err != nil {
		return nil, err
	}
	return &domain.Portfolio{
		Account:    account,
		Holdings:   holdings,
		TotalValue: TotalValue(holdings),
	}, nil
}

// TotalValue sums the share values of holdings.
func TotalValue(holdings []domain.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.UserShareValue)
	}
	return total
}

// ShareValue is balance / supply * valuation; zero when supply is zero.
func ShareValue(balance, supply, valuation decimal.Decimal) decimal.Decimal {
	if supply.IsZero() {
		return decimal.Zero
	}
	return balance.Mul(valuation).Div(supply)
}

func (h *HoldingsAggregator) readHolding(ctx context.Context, farm domain.Farm, account common.Address) (*domain.Holding, error) {
	raw, err := h.tokens.BalanceOf(ctx, farm.TokenAddress, account)
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.Sign() == 0 {
		return nil, nil
	}

	decimals, err := h.tokens.Decimals(ctx, farm.TokenAddress)
	if err != nil {
		return nil, err
	}
	symbol, err := h.tokens.Symbol(ctx, farm.TokenAddress)
	if err != nil {
		return nil, err
	}

	balance, err := units.ToDisplayAmount(raw, int(decimals))
	if err != nil {
		return nil, err
	}
	valuation := decimal.NewFromBigInt(farm.Valuation, 0)
	supply := decimal.NewFromBigInt(farm.TotalTokenSupply, 0)

	return &domain.Holding{
		FarmName:       farm.Name,
		TokenSymbol:    symbol,
		TokenBalance:   balance,
		FarmValuation:  valuation,
		UserShareValue: ShareValue(balance, supply, valuation),
		TokenAddress:   farm.TokenAddress,
		RawBalance:     raw,
		Decimals:       decimals,
	}, nil
}
