package fixedpoint

import (
	"math/big"
	"testing"
)

func TestFromPercentage(t *testing.T) {
	f, ok := FromPercentage(6000)
	if !ok {
		t.Fatalf("from percentage failed")
	}
	want := big.NewInt(600_000_000) // 0.6 * 1e9
	if f.Inner().Cmp(want) != 0 {
		t.Fatalf("got %s want %s", f.Inner(), want)
	}
}

func TestMulIntRecipMulIntRoundTrip(t *testing.T) {
	rate, ok := FromPercentage(12_000) // 1.2x
	if !ok {
		t.Fatalf("from percentage failed")
	}
	amount := big.NewInt(1_000_000)
	converted, ok := rate.MulInt(amount)
	if !ok {
		t.Fatalf("mul int failed")
	}
	if converted.Cmp(big.NewInt(1_200_000)) != 0 {
		t.Fatalf("unexpected converted amount: %s", converted)
	}
	back, ok := rate.RecipMulInt(converted)
	if !ok {
		t.Fatalf("recip mul int failed")
	}
	if back.Cmp(amount) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", back, amount)
	}
}

func TestMulTruncatesTowardZero(t *testing.T) {
	a, _ := FromRational(big.NewInt(1), big.NewInt(3))
	b, _ := FromInt(3)
	product, ok := a.Mul(b)
	if !ok {
		t.Fatalf("mul failed")
	}
	if product.Cmp(One) > 0 {
		t.Fatalf("expected truncation to not exceed one, got %s", product)
	}
}

func TestOverflowDetected(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 127)
	if _, ok := FromInner(huge); ok {
		t.Fatalf("expected overflow for 2^127")
	}
}

func TestDivByZeroFails(t *testing.T) {
	if _, ok := One.Div(Zero); ok {
		t.Fatalf("expected division by zero to fail")
	}
}

func TestMinAbs(t *testing.T) {
	neg, _ := FromInt(-5)
	pos, _ := FromInt(5)
	if neg.Min(pos).Cmp(neg) != 0 {
		t.Fatalf("expected min to pick negative value")
	}
	if neg.Abs().Cmp(pos) != 0 {
		t.Fatalf("expected abs(-5) == 5")
	}
}

func TestToPrecision(t *testing.T) {
	f, _ := FromInt(2)
	out, ok := f.ToPrecision(6)
	if !ok {
		t.Fatalf("to precision failed")
	}
	if out.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("unexpected precision conversion: %s", out)
	}
}
