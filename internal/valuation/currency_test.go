package valuation

import (
	"testing"

	"github.com/tally-app/tally/internal/models"
)

func TestConvert_Identity(t *testing.T) {
	amount, ok := Convert(123.45, "USD", "USD", nil, "2024-06-01")
	if !ok || amount != 123.45 {
		t.Errorf("Convert identity = (%v, %v), want (123.45, true)", amount, ok)
	}
}

func TestConvert_UsesDateKeyedRate(t *testing.T) {
	rates := models.RateMap{
		models.RateKey("USD", "2024-06-01"): 1.52,
		models.RateKey("USD", "2024-06-02"): 1.49,
	}

	amount, ok := Convert(100, "USD", "AUD", rates, "2024-06-01")
	if !ok {
		t.Fatal("expected rate to resolve")
	}
	if amount != 152.0 {
		t.Errorf("amount = %v, want 152.0", amount)
	}

	amount, ok = Convert(100, "USD", "AUD", rates, "2024-06-02")
	if !ok || amount != 149.0 {
		t.Errorf("amount = (%v, %v), want (149.0, true)", amount, ok)
	}
}

func TestConvert_MissingRate(t *testing.T) {
	rates := models.RateMap{}

	_, ok := Convert(100, "EUR", "AUD", rates, "2024-06-01")
	if ok {
		t.Error("expected ok=false for a missing rate")
	}
}
