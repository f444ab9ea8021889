// Package oracle implements the pool's price provider: per-feed TWAP,
// median-across-feeds aggregation, per-call memoization, and base-asset
// conversion (spec.md §4.4).
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"riskpool/crypto"
	"riskpool/fixedpoint"
)

var (
	ErrNoPriceForAsset   = errors.New("oracle: no price for asset")
	ErrInvalidAssetPrice = errors.New("oracle: invalid asset price")
	ErrAssetPriceMath    = errors.New("oracle: asset price math error")
	// ErrUnorderedSamples is returned when a feed client violates the
	// most-recent-first ordering TWAP assumes. The reference
	// implementation trusts this ordering implicitly (SEP-40 does not
	// mandate it); this engine checks it explicitly instead of silently
	// computing a wrong TWAP (REDESIGN FLAG, spec.md §9). It wraps
	// ErrNoPriceForAsset.
	ErrUnorderedSamples = fmt.Errorf("%w: price samples are not ordered most-recent-first", ErrNoPriceForAsset)
)

// TimestampPrecision selects the unit a feed reports its sample
// timestamps in.
type TimestampPrecision uint8

const (
	PrecisionSeconds TimestampPrecision = iota
	PrecisionMillis
)

// Sample is one price observation returned by a feed client.
type Sample struct {
	Price     *big.Int
	Timestamp uint64 // in the unit named by the feed's FeedConfig.Precision
}

// FeedClient is the external price-feed collaborator (spec.md §6):
// `prices(asset, n) -> ordered list of {price, timestamp}`.
type FeedClient interface {
	Prices(ctx context.Context, feedAsset crypto.Address, n uint32) ([]Sample, error)
	Decimals(ctx context.Context) (uint32, error)
}

// FeedConfig names one source feed contributing to an asset's median
// price, and how many TWAP records to request from it.
type FeedConfig struct {
	Client      FeedClient
	FeedAsset   crypto.Address
	TWAPRecords uint32
	// Precision names the unit the feed reports sample timestamps in;
	// twap converts them to seconds on ingress, so every internal time
	// delta is computed in seconds regardless of a feed's native
	// precision (spec.md §9). Timestamps are not otherwise checked for
	// plausibility against the declared unit.
	Precision TimestampPrecision
}

// AssetConfig is the full set of feeds backing one asset's price, plus
// its own decimal precision.
type AssetConfig struct {
	AssetDecimals uint32
	Feeds         []FeedConfig
}

// Provider computes TWAP/median prices and converts amounts to/from the
// pool's base asset, caching each asset's resolved price for the
// lifetime of one call (spec.md §4.4 "caching within a single
// operation").
type Provider struct {
	now               func() uint64
	baseAsset         crypto.Address
	baseAssetDecimals uint32
	configs           map[string]AssetConfig
	prices            map[string]fixedpoint.Fixed
}

// NewProvider constructs a provider scoped to a single operation. now
// must return the current Unix timestamp in seconds; callers pass it in
// explicitly so price math never calls wall-clock time directly (this
// keeps conversions deterministic and testable).
func NewProvider(baseAsset crypto.Address, baseAssetDecimals uint32, configs map[string]AssetConfig, now func() uint64) *Provider {
	return &Provider{
		now:               now,
		baseAsset:         baseAsset,
		baseAssetDecimals: baseAssetDecimals,
		configs:           configs,
		prices:            make(map[string]fixedpoint.Fixed),
	}
}

func assetKey(a crypto.Address) string {
	return string(a.Prefix()) + ":" + string(a.Bytes())
}

// ConvertToBase converts an asset-denominated amount into base-asset
// units, at the asset's own decimal precision for input and the base
// asset's decimal precision for output (spec.md §4.4).
func (p *Provider) ConvertToBase(ctx context.Context, asset crypto.Address, amount *big.Int) (*big.Int, error) {
	if asset.Equal(p.baseAsset) {
		return new(big.Int).Set(amount), nil
	}
	cfg, ok := p.configs[assetKey(asset)]
	if !ok {
		return nil, ErrNoPriceForAsset
	}
	price, err := p.price(ctx, asset, cfg)
	if err != nil {
		return nil, err
	}
	scaled, ok := price.MulInt(amount)
	if !ok {
		return nil, ErrInvalidAssetPrice
	}
	inBaseUnits, ok := fixedpoint.FromRational(scaled, pow10(cfg.AssetDecimals))
	if !ok {
		return nil, ErrInvalidAssetPrice
	}
	out, ok := inBaseUnits.ToPrecision(p.baseAssetDecimals)
	if !ok {
		return nil, ErrInvalidAssetPrice
	}
	return out, nil
}

// ConvertFromBase is the inverse of ConvertToBase (spec.md §4.4).
func (p *Provider) ConvertFromBase(ctx context.Context, asset crypto.Address, amount *big.Int) (*big.Int, error) {
	if asset.Equal(p.baseAsset) {
		return new(big.Int).Set(amount), nil
	}
	cfg, ok := p.configs[assetKey(asset)]
	if !ok {
		return nil, ErrNoPriceForAsset
	}
	price, err := p.price(ctx, asset, cfg)
	if err != nil {
		return nil, err
	}
	recip, ok := price.RecipMulInt(amount)
	if !ok {
		return nil, ErrInvalidAssetPrice
	}
	inAssetUnits, ok := fixedpoint.FromRational(recip, pow10(p.baseAssetDecimals))
	if !ok {
		return nil, ErrInvalidAssetPrice
	}
	out, ok := inAssetUnits.ToPrecision(cfg.AssetDecimals)
	if !ok {
		return nil, ErrInvalidAssetPrice
	}
	return out, nil
}

func pow10(n uint32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// price resolves the median TWAP price for asset, memoizing the result
// for the remainder of this Provider's lifetime (spec.md §4.4).
func (p *Provider) price(ctx context.Context, asset crypto.Address, cfg AssetConfig) (fixedpoint.Fixed, error) {
	key := assetKey(asset)
	if cached, ok := p.prices[key]; ok {
		return cached, nil
	}
	if len(cfg.Feeds) == 0 {
		return fixedpoint.Fixed{}, ErrNoPriceForAsset
	}
	twaps := make([]fixedpoint.Fixed, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		twap, err := p.twap(ctx, feed)
		if err != nil {
			return fixedpoint.Fixed{}, err
		}
		twaps = append(twaps, twap)
	}
	median, err := Median(twaps)
	if err != nil {
		return fixedpoint.Fixed{}, err
	}
	p.prices[key] = median
	return median, nil
}

// twap computes the time-weighted average price from one feed's
// samples, assuming most-recent-first ordering; any violation of that
// ordering is rejected rather than silently mis-weighted (spec.md §9
// REDESIGN FLAG).
func (p *Provider) twap(ctx context.Context, feed FeedConfig) (fixedpoint.Fixed, error) {
	samples, err := feed.Client.Prices(ctx, feed.FeedAsset, feed.TWAPRecords)
	if err != nil {
		return fixedpoint.Fixed{}, err
	}
	if len(samples) == 0 {
		return fixedpoint.Fixed{}, ErrNoPriceForAsset
	}
	if feed.Precision == PrecisionMillis {
		normalized := make([]Sample, len(samples))
		for i, s := range samples {
			normalized[i] = Sample{Price: s.Price, Timestamp: s.Timestamp / 1000}
		}
		samples = normalized
	}
	decimals, err := feed.Client.Decimals(ctx)
	if err != nil {
		return fixedpoint.Fixed{}, err
	}
	if err := checkOrdering(samples); err != nil {
		return fixedpoint.Fixed{}, err
	}
	if len(samples) == 1 {
		single, ok := fixedpoint.FromRational(samples[0].Price, pow10(decimals))
		if !ok {
			return fixedpoint.Fixed{}, ErrInvalidAssetPrice
		}
		return single, nil
	}

	currTime := p.now()
	cumPrice := new(big.Int)
	first := samples[0]
	delta := currTime - first.Timestamp
	if delta == 0 {
		cumPrice.Set(first.Price)
	} else {
		cumPrice.Mul(first.Price, big.NewInt(int64(delta)))
	}

	for i := 1; i < len(samples); i++ {
		prev := samples[i-1]
		curr := samples[i]
		if prev.Timestamp < curr.Timestamp {
			return fixedpoint.Fixed{}, ErrUnorderedSamples
		}
		d := prev.Timestamp - curr.Timestamp
		tw := new(big.Int).Mul(curr.Price, big.NewInt(int64(d)))
		cumPrice.Add(cumPrice, tw)
	}

	last := samples[len(samples)-1]
	twapTime := currTime - last.Timestamp
	if twapTime == 0 {
		return fixedpoint.Fixed{}, ErrAssetPriceMath
	}
	twapPrice := new(big.Int).Quo(cumPrice, big.NewInt(int64(twapTime)))
	final, ok := fixedpoint.FromRational(twapPrice, pow10(decimals))
	if !ok {
		return fixedpoint.Fixed{}, ErrInvalidAssetPrice
	}
	return final, nil
}

// checkOrdering verifies samples arrive most-recent-first, i.e.
// non-increasing timestamps (equal timestamps are accepted). The reference price provider
// assumes this implicitly even though SEP-40 does not guarantee it; this
// engine fails closed instead (spec.md §9 REDESIGN FLAG).
func checkOrdering(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp > samples[i-1].Timestamp {
			return ErrUnorderedSamples
		}
	}
	return nil
}

// Median returns the arithmetic median of values, averaging the two
// middle elements on an even count (spec.md §4.4).
func Median(values []fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	if len(values) == 0 {
		return fixedpoint.Fixed{}, ErrNoPriceForAsset
	}
	sorted := append([]fixedpoint.Fixed(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	sum, ok := sorted[n/2-1].Add(sorted[n/2])
	if !ok {
		return fixedpoint.Fixed{}, ErrAssetPriceMath
	}
	two, _ := fixedpoint.FromInt(2)
	avg, ok := sum.Div(two)
	if !ok {
		return fixedpoint.Fixed{}, ErrAssetPriceMath
	}
	return avg, nil
}
