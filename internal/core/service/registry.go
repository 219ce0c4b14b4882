package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
)

// DefaultReadConcurrency bounds parallel contract reads per fan-out.
const DefaultReadConcurrency = 8

// DefaultMaxFarms caps the farm count a factory may report.
const DefaultMaxFarms = 1000

// FarmRegistry enumerates the farm factory.
type FarmRegistry struct {
	source      domain.FarmSource
	concurrency int
	maxFarms    uint64
	logger      *slog.Logger
}

// RegistryOption configures a FarmRegistry.
type RegistryOption func(*FarmRegistry)

// WithMaxFarms overrides DefaultMaxFarms. Zero keeps the default.
func WithMaxFarms(n uint64) RegistryOption {
	return func(r *FarmRegistry) {
		if n > 0 {
			r.maxFarms = n
		}
	}
}

// NewFarmRegistry creates a registry reader. concurrency <= 0 uses the default.
func NewFarmRegistry(source domain.FarmSource, concurrency int, logger *slog.Logger, opts ...RegistryOption) *FarmRegistry {
	if concurrency <= 0 {
		concurrency = DefaultReadConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &FarmRegistry{source: source, concurrency: concurrency, maxFarms: DefaultMaxFarms, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListFarms reads every farm and its current token price. The result is in
// registry order. Any failed read fails the whole call with a
// *domain.RegistryReadError; partial results are never returned.
func (r *FarmRegistry) ListFarms(ctx context.Context) ([]domain.Farm, error) {
	start := time.Now()
	defer func() { metrics.RegistryReadDuration.Observe(time.Since(start).Seconds()) }()

	total, err := r.source.TotalFarms(ctx)
	if err != nil {
		metrics.RegistryReadErrors.Inc()
		return nil, &domain.RegistryReadError{Err: err}
	}
	if total == 0 {
		return []domain.Farm{}, nil
	}
	if total > r.maxFarms {
		metrics.RegistryReadErrors.Inc()
		return nil, &domain.RegistryReadError{
			Err: fmt.Errorf("factory reports %d farms, above the limit of %d", total, r.maxFarms),
		}
	}

	farms := make([]domain.Farm, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := uint64(0); i < total; i++ {
		index := i
		g.Go(func() error {
			farm, err := r.readFarm(gctx, index)
			if err != nil {
				return &domain.RegistryReadError{Index: &index, Err: err}
			}
			farms[index] = *farm
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.RegistryReadErrors.Inc()
		r.logger.Warn("farm registry read failed", slog.Any("error", err))
		return nil, err
	}

	r.logger.Debug("farm registry read", slog.Uint64("farms", total), slog.Duration("took", time.Since(start)))
	return farms, nil
}

// FindFarm returns the farm whose token is token, or nil when none matches.
func (r *FarmRegistry) FindFarm(ctx context.Context, token common.Address) (*domain.Farm, error) {
	farms, err := r.ListFarms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range farms {
		if farms[i].TokenAddress == token {
			return &farms[i], nil
		}
	}
	return nil, nil
}

// RequireFarm is FindFarm for callers about to trade: an unknown token is a
// *domain.ValidationError.
func (r *FarmRegistry) RequireFarm(ctx context.Context, token common.Address) (*domain.Farm, error) {
	farm, err := r.FindFarm(ctx, token)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, &domain.ValidationError{Field: "farm token", Reason: "not a registered farm"}
	}
	return farm, nil
}

// ActiveFarms keeps farms open for trading, preserving order.
func ActiveFarms(farms []domain.Farm) []domain.Farm {
	active := make([]domain.Farm, 0, len(farms))
	for _, f := range farms {
		if f.IsActive {
			active = append(active, f)
		}
	}
	return active
}

func (r *FarmRegistry) readFarm(ctx context.Context, index uint64) (*domain.Farm, error) {
	rec, err := r.source.Farm(ctx, index)
	if err != nil {
		return nil, err
	}
	price, err := r.source.PricePerToken(ctx, rec.TokenAddress)
	if err != nil {
		return nil, err
	}
	return farmFromRecord(index, rec, price), nil
}

func farmFromRecord(index uint64, rec *domain.FarmRecord, price *big.Int) *domain.Farm {
	farm := &domain.Farm{
		ID:                        domain.FarmID(rec.Name),
		Index:                     index,
		TokenAddress:              rec.TokenAddress,
		OwnerAddress:              rec.OwnerAddress,
		Name:                      rec.Name,
		SizeInAcres:               uint64OrZero(rec.SizeInAcres),
		TotalTokenSupply:          bigOrZero(rec.TotalTokenSupply),
		Valuation:                 bigOrZero(rec.Valuation),
		ExpectedOutcomePercentage: uint64OrZero(rec.ExpectedOutcomePercentage),
		PricePerTokenCents:        bigOrZero(price),
		IsActive:                  rec.IsActive,
	}
	if rec.CreatedAt != nil && rec.CreatedAt.IsInt64() {
		farm.CreatedAt = time.Unix(rec.CreatedAt.Int64(), 0).UTC()
	}
	return farm
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func uint64OrZero(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
