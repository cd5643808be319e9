package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatQuoteNumber(t *testing.T) {
	assert.Equal(t, "Q-2026-001", service.FormatQuoteNumber(2026, 1))
	assert.Equal(t, "Q-2026-042", service.FormatQuoteNumber(2026, 42))
	assert.Equal(t, "Q-2026-1000", service.FormatQuoteNumber(2026, 1000))
}

func TestParseQuoteNumber(t *testing.T) {
	tests := []struct {
		in   string
		year int
		seq  int
		ok   bool
	}{
		{"Q-2026-001", 2026, 1, true},
		{"Q-2025-1203", 2025, 1203, true},
		{"Q-2026-abc", 0, 0, false},
		{"Q-2026-01", 0, 0, false},
		{"X-2026-001", 0, 0, false},
		{"Q-26-001", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		year, seq, ok := service.ParseQuoteNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.year, year, tt.in)
		assert.Equal(t, tt.seq, seq, tt.in)
	}
}

func seedQuoteNumbers(t *testing.T, f *fixture, numbers ...string) {
	t.Helper()
	for _, n := range numbers {
		_, err := f.store.CreateQuote(context.Background(), &domain.Quote{QuoteNumber: n, Status: domain.QuoteStatusDraft})
		require.NoError(t, err)
	}
}

func TestNextQuoteNumber(t *testing.T) {
	ctx := context.Background()

	t.Run("first of the year", func(t *testing.T) {
		f := newFixture(t)
		n, err := f.svc.NextQuoteNumber(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, "Q-2026-001", n)
	})

	t.Run("after nine quotes", func(t *testing.T) {
		f := newFixture(t)
		for i := 1; i <= 9; i++ {
			seedQuoteNumbers(t, f, fmt.Sprintf("Q-2026-%03d", i))
		}
		n, err := f.svc.NextQuoteNumber(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, "Q-2026-010", n)
	})

	t.Run("uses the highest, not the count", func(t *testing.T) {
		f := newFixture(t)
		seedQuoteNumbers(t, f, "Q-2026-003", "Q-2026-017", "Q-2025-099", "Q-2026-junk")
		n, err := f.svc.NextQuoteNumber(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, "Q-2026-018", n)
	})

	t.Run("other years do not count", func(t *testing.T) {
		f := newFixture(t)
		seedQuoteNumbers(t, f, "Q-2025-120")
		n, err := f.svc.NextQuoteNumber(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, "Q-2026-001", n)
	})

	t.Run("invalid year", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.NextQuoteNumber(ctx, 26)
		var ve *domain.ErrValidation
		assert.ErrorAs(t, err, &ve)
	})
}
