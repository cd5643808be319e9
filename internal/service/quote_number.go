package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Quote numbering
// ============================================================

// FormatQuoteNumber renders Q-<year>-<seq>, zero-padded to three digits.
func FormatQuoteNumber(year, seq int) string {
	return fmt.Sprintf("%s%03d", quoteNumberPrefix(year), seq)
}

// ParseQuoteNumber splits a quote number into year and sequence.
func ParseQuoteNumber(number string) (year, seq int, ok bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != "Q" {
		return 0, 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 4 {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 0 || len(parts[2]) < 3 {
		return 0, 0, false
	}
	return year, seq, true
}

func quoteNumberPrefix(year int) string {
	return fmt.Sprintf("Q-%d-", year)
}

// NextQuoteNumber returns the next number for the given year: one past the
// highest existing sequence, or 001. Uniqueness is best-effort; the store
// rejects a duplicate with ErrSequencingCollision.
func (s *SalesService) NextQuoteNumber(ctx context.Context, year int) (string, error) {
	ctx, span := salesTracer.Start(ctx, "SalesService.NextQuoteNumber")
	defer span.End()
	span.SetAttributes(attribute.Int("quote.year", year))

	if year < 1000 || year > 9999 {
		return "", validationErr("year", "must be a four-digit year")
	}

	numbers, err := s.store.ListQuoteNumbers(ctx, quoteNumberPrefix(year))
	if err != nil {
		s.storeError("list_quote_numbers", err)
		return "", fmt.Errorf("listing quote numbers: %w", err)
	}

	highest := 0
	for _, n := range numbers {
		y, seq, ok := ParseQuoteNumber(n)
		if !ok || y != year {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return FormatQuoteNumber(year, highest+1), nil
}
