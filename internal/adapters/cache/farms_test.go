package cache

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

type countingSource struct {
	farms  int
	prices int
}

func (c *countingSource) TotalFarms(context.Context) (uint64, error) { return 2, nil }

func (c *countingSource) Farm(_ context.Context, index uint64) (*domain.FarmRecord, error) {
	c.farms++
	return &domain.FarmRecord{
		TokenAddress:     common.BigToAddress(big.NewInt(int64(0xa0 + index))),
		Name:             "Farm",
		TotalTokenSupply: big.NewInt(1000),
		Valuation:        big.NewInt(50_000),
		IsActive:         true,
	}, nil
}

func (c *countingSource) PricePerToken(context.Context, common.Address) (*big.Int, error) {
	c.prices++
	return big.NewInt(300), nil
}

// unreachableRedis points at a closed port so every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCachedFarmSource_FallsThroughWhenRedisDown(t *testing.T) {
	primary := &countingSource{}
	src := NewCachedFarmSource(primary, unreachableRedis(t), common.HexToAddress("0xfac"), time.Minute, nil)
	ctx := context.Background()

	n, err := src.TotalFarms(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	rec, err := src.Farm(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, common.BigToAddress(big.NewInt(0xa1)), rec.TokenAddress)
	assert.Equal(t, 1, primary.farms)

	price, err := src.PricePerToken(ctx, rec.TokenAddress)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), price)
	assert.Equal(t, 1, primary.prices)
}

func TestKeys(t *testing.T) {
	factory := common.HexToAddress("0x00000000000000000000000000000000000000Fa")
	assert.Equal(t, "farm:"+factory.Hex()+":count", countKey(factory))
	assert.Equal(t, "farm:"+factory.Hex()+":7", farmKey(factory, 7))
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}
