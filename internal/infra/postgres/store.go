package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
	"github.com/boddenberg/sales-pipeline-go/internal/infra/resilience"
	"github.com/boddenberg/sales-pipeline-go/internal/port"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

var _ port.SalesStore = (*Store)(nil)

// Store is the pgx-backed sales store.
type Store struct {
	pool   *pgxpool.Pool
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *Store {
	return &Store{pool: pool, cb: cb, logger: logger}
}

// run executes fn behind the circuit breaker and maps driver errors onto
// domain errors. Answers the database gave on purpose do not trip the breaker.
func (s *Store) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "Postgres."+op)
	defer span.End()

	_, err := s.cb.Execute(func() (any, error) {
		err := mapError(fn(ctx))
		if isDomainError(err) {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	})
	if err == nil {
		return nil
	}
	span.RecordError(err)

	if resilience.IsCircuitOpen(err) {
		return &domain.ErrCircuitOpen{Service: "postgres"}
	}
	if resilience.IsPermanent(err) {
		return resilience.Unwrap(err)
	}
	s.logger.Error("postgres: query failed", zap.String("operation", op), zap.Error(err))
	return &domain.ErrExternalService{Service: "postgres/" + op, Err: err}
}

// mapError turns constraint violations into domain errors. Anything else is
// returned unchanged.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return &domain.ErrConflict{Message: pgErr.Detail}
	case "23503":
		return &domain.ErrConflict{Message: fmt.Sprintf("referenced row missing or still in use (%s)", pgErr.ConstraintName)}
	case "23514", "23502", "22P02":
		return &domain.ErrValidation{Field: pgErr.ColumnName, Message: pgErr.Message}
	}
	return err
}

func isDomainError(err error) bool {
	var (
		nf        *domain.ErrNotFound
		collision *domain.ErrSequencingCollision
		ve        *domain.ErrValidation
		conflict  *domain.ErrConflict
	)
	return errors.As(err, &nf) || errors.As(err, &collision) || errors.As(err, &ve) || errors.As(err, &conflict)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.run(ctx, "Ping", func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
}

// ============================================================
// Leads
// ============================================================

const leadSelect = `SELECT id, name, phone, email, address, city, source, project_type, size_sqm,
	budget_range, timeline, notes, status, status_note, next_follow_up, meeting_date, created_at, updated_at
	FROM leads`

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &l.Address, &l.City, &l.Source, &l.ProjectType, &l.SizeSqm,
		&l.BudgetRange, &l.Timeline, &l.Notes, &l.Status, &l.StatusNote, &l.NextFollowUp, &l.MeetingDate, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) CreateLead(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	row := *lead
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	err := s.run(ctx, "CreateLead", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `INSERT INTO leads (id, name, phone, email, address, city, source, project_type, size_sqm,
			budget_range, timeline, notes, status, status_note, next_follow_up, meeting_date, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			row.ID, row.Name, row.Phone, row.Email, row.Address, row.City, string(row.Source), string(row.ProjectType), row.SizeSqm,
			row.BudgetRange, row.Timeline, row.Notes, string(row.Status), row.StatusNote, row.NextFollowUp, row.MeetingDate,
			row.CreatedAt.UTC(), row.UpdatedAt.UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) GetLead(ctx context.Context, leadID string) (*domain.Lead, error) {
	var lead *domain.Lead
	err := s.run(ctx, "GetLead", func(ctx context.Context) error {
		l, err := scanLead(s.pool.QueryRow(ctx, leadSelect+` WHERE id = $1`, leadID))
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "lead", ID: leadID}
		}
		lead = l
		return err
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]domain.Lead, error) {
	var (
		where string
		args  []any
	)
	if filter.Status != "" {
		where = ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	sql := leadSelect + where + ` ORDER BY created_at DESC, id ASC` + pageClause(filter.Page, filter.PageSize)

	leads := []domain.Lead{}
	err := s.run(ctx, "ListLeads", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			l, err := scanLead(rows)
			if err != nil {
				return err
			}
			leads = append(leads, *l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return leads, nil
}

// leadColumns lists the columns UpdateLead may write.
var leadColumns = map[string]bool{
	"name": true, "phone": true, "email": true, "address": true, "city": true,
	"source": true, "project_type": true, "size_sqm": true, "budget_range": true,
	"timeline": true, "notes": true, "status": true, "status_note": true,
	"next_follow_up": true, "meeting_date": true, "updated_at": true,
}

// buildLeadUpdate renders an UPDATE for the whitelisted columns in a stable
// order. The lead ID is the last argument.
func buildLeadUpdate(leadID string, updates map[string]any) (string, []any, error) {
	if len(updates) == 0 {
		return "", nil, &domain.ErrValidation{Field: "updates", Message: "nothing to update"}
	}
	columns := make([]string, 0, len(updates))
	for k := range updates {
		if !leadColumns[k] {
			return "", nil, &domain.ErrValidation{Field: k, Message: "unknown lead column"}
		}
		columns = append(columns, k)
	}
	sort.Strings(columns)

	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		v := updates[col]
		if t, ok := v.(time.Time); ok {
			v = t.UTC()
		}
		args = append(args, v)
	}
	args = append(args, leadID)
	return fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args, nil
}

func (s *Store) UpdateLead(ctx context.Context, leadID string, updates map[string]any) error {
	sql, args, err := buildLeadUpdate(leadID, updates)
	if err != nil {
		return err
	}
	return s.run(ctx, "UpdateLead", func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &domain.ErrNotFound{Resource: "lead", ID: leadID}
		}
		return nil
	})
}

func (s *Store) DeleteLead(ctx context.Context, leadID string) error {
	return s.run(ctx, "DeleteLead", func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, leadID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &domain.ErrNotFound{Resource: "lead", ID: leadID}
		}
		return nil
	})
}

func (s *Store) CountLeadsByStatus(ctx context.Context) (map[domain.LeadStatus]int, error) {
	counts := make(map[domain.LeadStatus]int)
	err := s.run(ctx, "CountLeadsByStatus", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM leads GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				n      int
			)
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[domain.LeadStatus(status)] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ============================================================
// Quotes
// ============================================================

const quoteSelect = `SELECT id, quote_number, lead_id, customer_name, customer_email, customer_phone, customer_address,
	title, description, subtotal, discount_percent, discount_amount, vat_percent, vat_amount, total,
	payment_terms, delivery_time, warranty, validity_days, notes, status, sent_at, viewed_at, responded_at,
	created_by, created_at
	FROM quotes`

func scanQuote(row pgx.Row) (*domain.Quote, error) {
	var q domain.Quote
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.LeadID, &q.Customer.Name, &q.Customer.Email, &q.Customer.Phone, &q.Customer.Address,
		&q.Title, &q.Description, &q.Subtotal, &q.DiscountPercent, &q.DiscountAmount, &q.VATPercent, &q.VATAmount, &q.Total,
		&q.PaymentTerms, &q.DeliveryTime, &q.Warranty, &q.ValidityDays, &q.Notes, &q.Status, &q.SentAt, &q.ViewedAt, &q.RespondedAt,
		&q.CreatedBy, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) CreateQuote(ctx context.Context, quote *domain.Quote) (*domain.Quote, error) {
	row := *quote
	row.Items = nil
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	err := s.run(ctx, "CreateQuote", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `INSERT INTO quotes (id, quote_number, lead_id, customer_name, customer_email, customer_phone,
			customer_address, title, description, subtotal, discount_percent, discount_amount, vat_percent, vat_amount, total,
			payment_terms, delivery_time, warranty, validity_days, notes, status, sent_at, viewed_at, responded_at, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
			row.ID, row.QuoteNumber, row.LeadID, row.Customer.Name, row.Customer.Email, row.Customer.Phone,
			row.Customer.Address, row.Title, row.Description, row.Subtotal, row.DiscountPercent, row.DiscountAmount,
			row.VATPercent, row.VATAmount, row.Total, row.PaymentTerms, row.DeliveryTime, row.Warranty, row.ValidityDays,
			row.Notes, string(row.Status), row.SentAt, row.ViewedAt, row.RespondedAt, row.CreatedBy, row.CreatedAt.UTC())
		if isUniqueViolation(err, "quotes_quote_number_key") {
			return &domain.ErrSequencingCollision{Number: row.QuoteNumber}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	var quote *domain.Quote
	err := s.run(ctx, "GetQuote", func(ctx context.Context) error {
		q, err := scanQuote(s.pool.QueryRow(ctx, quoteSelect+` WHERE id = $1`, quoteID))
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.ErrNotFound{Resource: "quote", ID: quoteID}
		}
		quote = q
		return err
	})
	if err != nil {
		return nil, err
	}

	items, err := s.ListQuoteItems(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	quote.Items = items
	return quote, nil
}

func (s *Store) ListQuotes(ctx context.Context, filter domain.QuoteFilter) ([]domain.Quote, error) {
	var (
		conds []string
		args  []any
	)
	if filter.LeadID != "" {
		args = append(args, filter.LeadID)
		conds = append(conds, fmt.Sprintf("lead_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	sql := quoteSelect
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY created_at DESC, quote_number DESC` + pageClause(filter.Page, filter.PageSize)

	quotes := []domain.Quote{}
	err := s.run(ctx, "ListQuotes", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			q, err := scanQuote(rows)
			if err != nil {
				return err
			}
			quotes = append(quotes, *q)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

func (s *Store) UpdateQuote(ctx context.Context, quoteID string, u domain.QuoteUpdate) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.SentAt != nil {
		set("sent_at", u.SentAt.UTC())
	}
	if u.ViewedAt != nil {
		set("viewed_at", u.ViewedAt.UTC())
	}
	if u.RespondedAt != nil {
		set("responded_at", u.RespondedAt.UTC())
	}
	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Notes != nil {
		set("notes", *u.Notes)
	}
	if u.DiscountPercent != nil {
		set("discount_percent", *u.DiscountPercent)
	}
	if u.Totals != nil {
		set("subtotal", u.Totals.Subtotal)
		set("discount_amount", u.Totals.DiscountAmount)
		set("vat_amount", u.Totals.VATAmount)
		set("total", u.Totals.Total)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, quoteID)
	sql := fmt.Sprintf("UPDATE quotes SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	return s.run(ctx, "UpdateQuote", func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &domain.ErrNotFound{Resource: "quote", ID: quoteID}
		}
		return nil
	})
}

// ReplaceQuoteItems swaps the item set in one transaction.
func (s *Store) ReplaceQuoteItems(ctx context.Context, quoteID string, items []domain.QuoteItem) ([]domain.QuoteItem, error) {
	rows := make([]domain.QuoteItem, len(items))
	for i, it := range items {
		it.ID = uuid.NewString()
		it.QuoteID = quoteID
		rows[i] = it
	}

	err := s.run(ctx, "ReplaceQuoteItems", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quotes WHERE id = $1)`, quoteID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return &domain.ErrNotFound{Resource: "quote", ID: quoteID}
			}
			if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID); err != nil {
				return err
			}
			batch := &pgx.Batch{}
			for _, it := range rows {
				batch.Queue(`INSERT INTO quote_items (id, quote_id, category, name, description, width_cm, height_cm, depth_cm,
					quantity, unit_price, total_price, sort_order) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
					it.ID, it.QuoteID, string(it.Category), it.Name, it.Description, it.WidthCm, it.HeightCm, it.DepthCm,
					it.Quantity, it.UnitPrice, it.TotalPrice, it.SortOrder)
			}
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ListQuoteItems(ctx context.Context, quoteID string) ([]domain.QuoteItem, error) {
	items := []domain.QuoteItem{}
	err := s.run(ctx, "ListQuoteItems", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT id, quote_id, category, name, description, width_cm, height_cm, depth_cm,
			quantity, unit_price, total_price, sort_order FROM quote_items WHERE quote_id = $1 ORDER BY sort_order`, quoteID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var it domain.QuoteItem
			if err := rows.Scan(&it.ID, &it.QuoteID, &it.Category, &it.Name, &it.Description, &it.WidthCm, &it.HeightCm,
				&it.DepthCm, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.SortOrder); err != nil {
				return err
			}
			items = append(items, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListQuoteNumbers(ctx context.Context, prefix string) ([]string, error) {
	numbers := []string{}
	err := s.run(ctx, "ListQuoteNumbers", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT quote_number FROM quotes WHERE starts_with(quote_number, $1) ORDER BY quote_number`, prefix)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return err
			}
			numbers = append(numbers, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func (s *Store) CountQuotesForLead(ctx context.Context, leadID string) (int, error) {
	var n int
	err := s.run(ctx, "CountQuotesForLead", func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `SELECT count(*) FROM quotes WHERE lead_id = $1`, leadID).Scan(&n)
	})
	return n, err
}

// ============================================================
// Activities
// ============================================================

const activitySelect = `SELECT id, lead_id, type, title, description, quote_id, created_by, created_at FROM lead_activities`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	if err := row.Scan(&a.ID, &a.LeadID, &a.Type, &a.Title, &a.Description, &a.QuoteID, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) AppendActivity(ctx context.Context, a *domain.Activity) (*domain.Activity, error) {
	row := *a
	if row.ID == "" {
		row.ID = uuid.NewString()
	}

	err := s.run(ctx, "AppendActivity", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `INSERT INTO lead_activities (id, lead_id, type, title, description, quote_id, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			row.ID, row.LeadID, string(row.Type), row.Title, row.Description, row.QuoteID, row.CreatedBy, row.CreatedAt.UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	activities := []domain.Activity{}
	err := s.run(ctx, "ListActivities", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, activitySelect+` WHERE lead_id = $1 ORDER BY created_at DESC, id DESC`, leadID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanActivity(rows)
			if err != nil {
				return err
			}
			activities = append(activities, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return activities, nil
}

func (s *Store) FindActivity(ctx context.Context, leadID, quoteID string, t domain.ActivityType) (*domain.Activity, error) {
	var found *domain.Activity
	err := s.run(ctx, "FindActivity", func(ctx context.Context) error {
		a, err := scanActivity(s.pool.QueryRow(ctx,
			activitySelect+` WHERE lead_id = $1 AND quote_id = $2 AND type = $3 LIMIT 1`, leadID, quoteID, string(t)))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		found = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func pageClause(page, pageSize int) string {
	if pageSize <= 0 {
		return ""
	}
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
}
