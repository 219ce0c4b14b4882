package service

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

// HistoryReconciler turns indexer records into farm trade history.
type HistoryReconciler struct {
	indexer  domain.TransactionIndexer
	registry *FarmRegistry
	prices   domain.FarmSource
	logger   *slog.Logger
}

// NewHistoryReconciler creates a reconciler.
func NewHistoryReconciler(indexer domain.TransactionIndexer, registry *FarmRegistry, prices domain.FarmSource, logger *slog.Logger) *HistoryReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryReconciler{indexer: indexer, registry: registry, prices: prices, logger: logger}
}

// LoadTransactions returns the account's farm trades, newest first, unique
// by hash. History is informational: any read failure is logged and an empty
// list is returned.
func (h *HistoryReconciler) LoadTransactions(ctx context.Context, account common.Address) []domain.Transaction {
	txs, err := h.reconcile(ctx, account)
	if err != nil {
		metrics.HistoryDegraded.Inc()
		h.logger.Error("failed to load transaction history",
			slog.String("account", account.Hex()),
			slog.Any("error", err),
		)
		return []domain.Transaction{}
	}
	return txs
}

func (h *HistoryReconciler) reconcile(ctx context.Context, account common.Address) ([]domain.Transaction, error) {
	records, err := h.indexer.AllTransactions(ctx, account)
	if err != nil {
		return nil, err
	}

	farms, err := h.registry.ListFarms(ctx)
	if err != nil {
		return nil, err
	}
	byToken := make(map[common.Address]domain.Farm, len(farms))
	for _, f := range farms {
		byToken[f.TokenAddress] = f
	}

	priceCache := make(map[common.Address]*big.Int)
	priceOf := func(token common.Address) (*big.Int, error) {
		if p, ok := priceCache[token]; ok {
			return p, nil
		}
		p, err := h.prices.PricePerToken(ctx, token)
		if err != nil {
			return nil, err
		}
		priceCache[token] = p
		return p, nil
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]domain.Transaction, 0, len(records))

	for _, rec := range records {
		hash := recordHash(rec)
		if hash == "" {
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		tx, ok, err := classify(rec, account, byToken)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		tx.Hash = hash

		price, err := priceOf(tx.TokenAddress)
		if err != nil {
			return nil, err
		}
		tx.PriceCents = price
		out = append(out, tx)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Hash < out[j].Hash
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// classify maps one record to a trade. Transfer records naming a farm token
// take precedence; direct calls to a farm token are the fallback.
func classify(rec domain.IndexedTransaction, account common.Address, byToken map[common.Address]domain.Farm) (domain.Transaction, bool, error) {
	for _, tr := range rec.Transfers {
		farmToken, farm, ok := namedFarm(tr, byToken)
		if !ok {
			continue
		}
		txType := domain.TxSell
		if tr.From == account && tr.To == farmToken {
			txType = domain.TxBuy
		}
		amount, err := transferAmount(tr)
		if err != nil {
			return domain.Transaction{}, false, err
		}
		return domain.Transaction{
			FarmName:     farm.Name,
			Date:         firstNonZero(tr.ExecutionDate, rec.ExecutionDate),
			Amount:       amount,
			Type:         txType,
			TokenAddress: farmToken,
		}, true, nil
	}

	farm, ok := byToken[rec.To]
	if !ok {
		return domain.Transaction{}, false, nil
	}

	txType := domain.TxBuy
	amount := decimal.Zero
	if len(rec.Transfers) > 0 {
		tr := rec.Transfers[0]
		if tr.To == account && tr.From != account {
			txType = domain.TxSell
		}
		var err error
		if amount, err = transferAmount(tr); err != nil {
			return domain.Transaction{}, false, err
		}
	}
	return domain.Transaction{
		FarmName:     farm.Name,
		Date:         rec.ExecutionDate,
		Amount:       amount,
		Type:         txType,
		TokenAddress: rec.To,
	}, true, nil
}

func namedFarm(tr domain.IndexedTransfer, byToken map[common.Address]domain.Farm) (common.Address, domain.Farm, bool) {
	if f, ok := byToken[tr.To]; ok {
		return tr.To, f, true
	}
	if f, ok := byToken[tr.From]; ok {
		return tr.From, f, true
	}
	return common.Address{}, domain.Farm{}, false
}

func transferAmount(tr domain.IndexedTransfer) (decimal.Decimal, error) {
	if tr.Value == nil {
		return decimal.Zero, nil
	}
	return units.ToDisplayAmount(tr.Value, tr.Decimals)
}

func recordHash(rec domain.IndexedTransaction) string {
	if rec.Hash != "" {
		return rec.Hash
	}
	for _, tr := range rec.Transfers {
		if tr.TransactionHash != "" {
			return tr.TransactionHash
		}
	}
	return ""
}

func firstNonZero(times ...time.Time) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
