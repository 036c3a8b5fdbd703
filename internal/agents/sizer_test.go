package agents

import (
	"testing"

	"go.uber.org/zap"
)

func TestSizerAdvise(t *testing.T) {
	s := NewPortfolioSizer(10, zap.NewNop())

	// 25% of 10000 is 2500; full size at 1.0 multiplier, 5x leverage,
	// price 50000 gives 2500*5/50000 = 0.25 contracts.
	advice, err := s.Advise(10_000, 0, 25, 100, 1.0, 50_000, 5)
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if advice.Margin != 2500 {
		t.Errorf("margin = %.2f, want 2500", advice.Margin)
	}
	if advice.Size != 0.25 {
		t.Errorf("size = %.3f, want 0.25", advice.Size)
	}
	if advice.Leverage != 5 {
		t.Errorf("leverage = %d, want 5", advice.Leverage)
	}
}

func TestSizerAppliesMultiplier(t *testing.T) {
	s := NewPortfolioSizer(10, zap.NewNop())
	advice, err := s.Advise(10_000, 0, 25, 100, 0.5, 50_000, 5)
	if err != nil {
		t.Fatal(err)
	}
	if advice.Margin != 1250 {
		t.Errorf("margin = %.2f, want 1250 (half of the allocation)", advice.Margin)
	}
}

func TestSizerClampsLeverage(t *testing.T) {
	s := NewPortfolioSizer(10, zap.NewNop())
	advice, err := s.Advise(10_000, 0, 25, 100, 1.0, 100, 50)
	if err != nil {
		t.Fatal(err)
	}
	if advice.Leverage != 10 {
		t.Errorf("leverage = %d, want clamped to 10", advice.Leverage)
	}
}

func TestSizerRespectsFreeMargin(t *testing.T) {
	s := NewPortfolioSizer(10, zap.NewNop())
	// 9800 already committed leaves only 200 free.
	advice, err := s.Advise(10_000, 9800, 25, 100, 1.0, 100, 2)
	if err != nil {
		t.Fatal(err)
	}
	if advice.Margin != 200 {
		t.Errorf("margin = %.2f, want capped at 200", advice.Margin)
	}
}

func TestSizerErrors(t *testing.T) {
	s := NewPortfolioSizer(10, zap.NewNop())

	if _, err := s.Advise(0, 0, 25, 100, 1, 100, 2); err == nil {
		t.Error("zero balance must error")
	}
	if _, err := s.Advise(10_000, 0, 25, 100, 1, 0, 2); err == nil {
		t.Error("zero price must error")
	}
	if _, err := s.Advise(10_000, 10_000, 25, 100, 1, 100, 2); err == nil {
		t.Error("no free margin must error")
	}
	// Size rounds down to 3 decimals; a dust-sized result is an error.
	if _, err := s.Advise(10_000, 0, 0.0001, 100, 1, 1_000_000, 1); err == nil {
		t.Error("dust size must error")
	}
}
