package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/core/service"
	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

type simulatedCall struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

type simulation struct {
	FarmToken  common.Address  `json:"farmToken"`
	Amount     *big.Int        `json:"amount"`
	PriceCents *big.Int        `json:"priceCents"`
	CostUSDC   string          `json:"costUsdc"`
	Buy        []simulatedCall `json:"buy"`
	Sell       []simulatedCall `json:"sell"`
}

func main() {
	_ = godotenv.Load()

	// 1. Prepare the input
	usdc := common.HexToAddress(envOr("DEMETER_CONTRACTS_USDC", "0x036CbD53842c5426634e7929541eC2318f3dCF7e"))
	farmToken := common.HexToAddress(envOr("SIMULATE_FARM_TOKEN", "0x00000000000000000000000000000000000000a1"))
	amount, ok := new(big.Int).SetString(envOr("SIMULATE_AMOUNT", "10"), 10)
	if !ok {
		log.Fatalf("SIMULATE_AMOUNT must be a whole number")
	}
	price, ok := new(big.Int).SetString(envOr("SIMULATE_PRICE_CENTS", "300"), 10)
	if !ok {
		log.Fatalf("SIMULATE_PRICE_CENTS must be a whole number")
	}
	const usdcDecimals = 6

	// 2. Build both bundles offline
	log.Printf("Simulating trade bundles for %s tokens of %s at %s cents...", amount, farmToken.Hex(), price)
	buy, err := service.BuildBuyBundle(farmToken, usdc, amount, price, usdcDecimals)
	if err != nil {
		log.Fatalf("Buy bundle failed: %v", err)
	}
	sell, err := service.BuildSellBundle(farmToken, amount)
	if err != nil {
		log.Fatalf("Sell bundle failed: %v", err)
	}
	cost, err := service.BuyCost(amount, price, usdcDecimals)
	if err != nil {
		log.Fatalf("Cost failed: %v", err)
	}
	costDisplay, err := units.ToDisplayAmount(cost, usdcDecimals)
	if err != nil {
		log.Fatalf("Cost failed: %v", err)
	}

	// 3. Print Output
	output, _ := json.MarshalIndent(simulation{
		FarmToken:  farmToken,
		Amount:     amount,
		PriceCents: price,
		CostUSDC:   costDisplay.StringFixed(usdcDecimals),
		Buy:        toSimulated(buy),
		Sell:       toSimulated(sell),
	}, "", "  ")
	fmt.Println(string(output))
}

func toSimulated(calls []domain.Call) []simulatedCall {
	out := make([]simulatedCall, len(calls))
	for i, c := range calls {
		out[i] = simulatedCall{To: c.To, Value: c.Value, Data: c.Data}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
