package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"riskpool/crypto"
	"riskpool/fixedpoint"
)

func testAsset(b byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = b
	return crypto.MustNewAddress(crypto.AssetPrefix, buf)
}

type stubFeed struct {
	samples  []Sample
	decimals uint32
	err      error
}

func (s stubFeed) Prices(ctx context.Context, feedAsset crypto.Address, n uint32) ([]Sample, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.samples, nil
}

func (s stubFeed) Decimals(ctx context.Context) (uint32, error) { return s.decimals, nil }

func TestTWAPSingleSampleShortCircuits(t *testing.T) {
	feed := FeedConfig{
		Client:      stubFeed{samples: []Sample{{Price: big.NewInt(5_000_000_000), Timestamp: 100}}, decimals: 9},
		FeedAsset:   testAsset(1),
		TWAPRecords: 1,
	}
	p := NewProvider(testAsset(0), 9, nil, func() uint64 { return 200 })
	price, err := p.twap(context.Background(), feed)
	if err != nil {
		t.Fatalf("twap: %v", err)
	}
	want, _ := fixedpoint.FromInt(5)
	if price.Cmp(want) != 0 {
		t.Fatalf("single-sample TWAP = %s, want %s", price, want)
	}
}

func TestTWAPWeightsByElapsedTime(t *testing.T) {
	// Most-recent-first: price 10 held for the last 100s, price 20 held
	// for the 100s before that. now=300 means the most recent sample's
	// own interval runs from t=200 to now=300 (100s at price 10).
	samples := []Sample{
		{Price: big.NewInt(10_000_000_000), Timestamp: 200},
		{Price: big.NewInt(20_000_000_000), Timestamp: 100},
	}
	feed := FeedConfig{Client: stubFeed{samples: samples, decimals: 9}, FeedAsset: testAsset(1), TWAPRecords: 2}
	p := NewProvider(testAsset(0), 9, nil, func() uint64 { return 300 })
	price, err := p.twap(context.Background(), feed)
	if err != nil {
		t.Fatalf("twap: %v", err)
	}
	// cum = 10*100 (now-200) + 20*100 (200-100) = 3000, over (now-last=200)s -> 15
	want, _ := fixedpoint.FromInt(15)
	if price.Cmp(want) != 0 {
		t.Fatalf("TWAP = %s, want %s", price, want)
	}
}

func TestTWAPRejectsUnorderedSamples(t *testing.T) {
	samples := []Sample{
		{Price: big.NewInt(10_000_000_000), Timestamp: 100},
		{Price: big.NewInt(20_000_000_000), Timestamp: 200}, // increasing, violates most-recent-first
	}
	feed := FeedConfig{Client: stubFeed{samples: samples, decimals: 9}, FeedAsset: testAsset(1), TWAPRecords: 2}
	p := NewProvider(testAsset(0), 9, nil, func() uint64 { return 300 })
	if _, err := p.twap(context.Background(), feed); !errors.Is(err, ErrUnorderedSamples) {
		t.Fatalf("expected ErrUnorderedSamples, got %v", err)
	}
}

func TestMedianOddAndEvenCounts(t *testing.T) {
	a, _ := fixedpoint.FromInt(1)
	b, _ := fixedpoint.FromInt(2)
	c, _ := fixedpoint.FromInt(3)
	odd, err := Median([]fixedpoint.Fixed{c, a, b})
	if err != nil {
		t.Fatalf("Median: %v", err)
	}
	if odd.Cmp(b) != 0 {
		t.Fatalf("odd median = %s, want %s", odd, b)
	}

	d, _ := fixedpoint.FromInt(4)
	even, err := Median([]fixedpoint.Fixed{a, b, c, d})
	if err != nil {
		t.Fatalf("Median: %v", err)
	}
	want, _ := fixedpoint.FromRational(big.NewInt(5), big.NewInt(2)) // (2+3)/2 = 2.5
	if even.Cmp(want) != 0 {
		t.Fatalf("even median = %s, want %s", even, want)
	}
}

func TestConvertToBaseIdentityForBaseAsset(t *testing.T) {
	base := testAsset(0)
	p := NewProvider(base, 9, nil, func() uint64 { return 1 })
	out, err := p.ConvertToBase(context.Background(), base, big.NewInt(12345))
	if err != nil {
		t.Fatalf("ConvertToBase: %v", err)
	}
	if out.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("identity conversion changed the amount: got %s", out)
	}
}

func TestConvertToBaseMissingFeedFails(t *testing.T) {
	p := NewProvider(testAsset(0), 9, map[string]AssetConfig{}, func() uint64 { return 1 })
	if _, err := p.ConvertToBase(context.Background(), testAsset(9), big.NewInt(1)); !errors.Is(err, ErrNoPriceForAsset) {
		t.Fatalf("expected ErrNoPriceForAsset, got %v", err)
	}
}

func TestConvertToBaseAndBackRoundTrips(t *testing.T) {
	asset := testAsset(5)
	feed := FeedConfig{
		Client:      stubFeed{samples: []Sample{{Price: big.NewInt(2_000_000_000), Timestamp: 1}}, decimals: 9},
		FeedAsset:   asset,
		TWAPRecords: 1,
	}
	configs := map[string]AssetConfig{
		assetKey(asset): {AssetDecimals: 9, Feeds: []FeedConfig{feed}},
	}
	p := NewProvider(testAsset(0), 9, configs, func() uint64 { return 100 })

	base, err := p.ConvertToBase(context.Background(), asset, big.NewInt(1_000))
	if err != nil {
		t.Fatalf("ConvertToBase: %v", err)
	}
	if base.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("expected price=2 to double the amount, got %s", base)
	}

	back, err := p.ConvertFromBase(context.Background(), asset, base)
	if err != nil {
		t.Fatalf("ConvertFromBase: %v", err)
	}
	if back.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("round trip mismatch: got %s, want 1000", back)
	}
}
