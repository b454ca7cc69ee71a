package dues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	cacheFamily   = "dues"
	statsTTL      = 5 * time.Minute
	paymentModule = "dues.payment"
	noteLayout    = "2006-01-02 15:04"
	trendMonths   = 12
)

// KeyStore deduplicates payment transaction ids.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Option customises Service.
type Option func(*Service)

// WithCache enables statistics caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier sets the reminder channel.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAudit records payment and waiver decisions.
func WithAudit(a shared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the dues lifecycle.
type Service struct {
	repo     Repository
	keys     KeyStore
	cache    *cache.Cache
	notifier notify.Notifier
	audit    shared.AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the dues service. keys may be nil, in which case
// transaction ids are not deduplicated.
func NewService(repo Repository, keys KeyStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		keys:     keys,
		notifier: notify.Noop{},
		audit:    shared.NopAudit{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns dues visible to actor. Members only ever see their own.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Due, shared.Pagination, error) {
	if actor.IsZero() {
		return nil, shared.Pagination{}, shared.ErrUnauthorized
	}
	if !rbac.IsAdmin(actor) {
		own := actor.ID
		filter.UserID = &own
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", "The selected status is invalid.")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("type", "The selected type is invalid.")
	}
	filter.Today = s.now()
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list dues: %w", err)
	}
	for i := range items {
		items[i] = items[i].withDerivedStatus(filter.Today)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns a due owned by actor, or any due for administrators.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Due, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Due{}, err
	}
	if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, d.UserID), "view due"); err != nil {
		return Due{}, err
	}
	return d.withDerivedStatus(s.now()), nil
}

// Create records a pending due for a member.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Due, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "create due"); err != nil {
		return Due{}, err
	}
	verr := shared.NewValidationError()
	if err := shared.Validate(input); err != nil {
		fields, ok := shared.AsValidationError(err)
		if !ok {
			return Due{}, err
		}
		verr.Merge(fields)
	}
	checkAmount(verr, input.Amount)
	if input.DueDate.IsZero() {
		verr.Add("due_date", "The due date field is required.")
	}
	if !verr.Empty() {
		return Due{}, verr
	}
	ok, err := s.repo.UserExists(ctx, input.UserID)
	if err != nil {
		return Due{}, err
	}
	if !ok {
		return Due{}, shared.Invalid("user_id", "The selected user is invalid.")
	}
	id, err := s.repo.Create(ctx, Due{
		UserID:     input.UserID,
		RecordedBy: actor.ID,
		Amount:     *input.Amount,
		Type:       input.Type,
		Status:     StatusPending,
		DueDate:    input.DueDate,
		Notes:      input.Notes,
	})
	if err != nil {
		return Due{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("due created", slog.Int64("due_id", id), slog.Int64("user_id", input.UserID), slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, actor, id)
}

// Update applies direct field replacement.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Due, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "update due"); err != nil {
		return Due{}, err
	}
	verr := shared.NewValidationError()
	if err := shared.Validate(input); err != nil {
		fields, ok := shared.AsValidationError(err)
		if !ok {
			return Due{}, err
		}
		verr.Merge(fields)
	}
	checkAmount(verr, input.Amount)
	if input.DueDate != nil && input.DueDate.IsZero() {
		verr.Add("due_date", "The due date field is required.")
	}
	if !verr.Empty() {
		return Due{}, verr
	}
	if input.Status != nil {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return Due{}, err
		}
		if err := checkStatusChange(current.Status, *input.Status); err != nil {
			return Due{}, err
		}
	}
	if err := s.repo.Update(ctx, id, input); err != nil {
		return Due{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	return s.Get(ctx, actor, id)
}

// Delete soft-deletes a due.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "delete due"); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("due deleted", slog.Int64("due_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// MarkAsPaid settles a due. Paying an already paid due replaces the payment
// metadata; a waived due cannot be paid. A transaction id may only be used once.
func (s *Service) MarkAsPaid(ctx context.Context, actor shared.Actor, id int64, input PaymentInput) (Due, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "mark due as paid"); err != nil {
		return Due{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Due{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Due{}, err
	}
	if current.Status == StatusWaived {
		return Due{}, fmt.Errorf("%w: a waived due cannot be marked as paid", shared.ErrInvalidState)
	}

	txnID := trimmed(input.TransactionID)
	if txnID != nil && s.keys != nil {
		if err := s.keys.CheckAndInsert(ctx, *txnID, paymentModule); err != nil {
			if errors.Is(err, shared.ErrConflict) {
				return Due{}, fmt.Errorf("%w: transaction %s has already been recorded", shared.ErrConflict, *txnID)
			}
			return Due{}, err
		}
	}

	now := s.now()
	payment := Payment{
		Method:        input.PaymentMethod,
		TransactionID: txnID,
		PaidAt:        now,
		Note:          paymentNote(now, input.PaymentMethod, txnID, input.Notes),
	}
	if err := s.repo.MarkPaid(ctx, id, payment); err != nil {
		if txnID != nil && s.keys != nil {
			if derr := s.keys.Delete(ctx, *txnID, paymentModule); derr != nil {
				s.logger.Warn("release transaction id", slog.String("transaction_id", *txnID), slog.Any("error", derr))
			}
		}
		return Due{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.record(ctx, actor, "due.paid", id, map[string]any{"payment_method": string(input.PaymentMethod), "transaction_id": txnID})
	return s.Get(ctx, actor, id)
}

// Waive forgives a pending due. The reason is appended to the notes.
func (s *Service) Waive(ctx context.Context, actor shared.Actor, id int64, input WaiveInput) (Due, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "waive due"); err != nil {
		return Due{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Due{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Due{}, err
	}
	if current.Status != StatusPending {
		return Due{}, fmt.Errorf("%w: only pending dues can be waived", shared.ErrInvalidState)
	}
	note := fmt.Sprintf("[%s] Waived by user #%d: %s", s.now().UTC().Format(noteLayout), actor.ID, strings.TrimSpace(input.Reason))
	if err := s.repo.Waive(ctx, id, note); err != nil {
		return Due{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.record(ctx, actor, "due.waived", id, map[string]any{"reason": input.Reason})
	return s.Get(ctx, actor, id)
}

// Overdue lists every pending due whose due date has passed.
func (s *Service) Overdue(ctx context.Context) ([]Due, error) {
	today := s.now()
	items, err := s.repo.Overdue(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("overdue dues: %w", err)
	}
	for i := range items {
		items[i] = items[i].withDerivedStatus(today)
	}
	if items == nil {
		items = []Due{}
	}
	return items, nil
}

// YearlySummary groups a member's dues for year by month and status.
func (s *Service) YearlySummary(ctx context.Context, actor shared.Actor, userID int64, year int) (YearlySummary, error) {
	if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, userID), "view dues summary"); err != nil {
		return YearlySummary{}, err
	}
	if year < 1900 || year > 9999 {
		return YearlySummary{}, shared.Invalid("year", "The year is invalid.")
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	buckets, err := s.repo.Totals(ctx, TotalsQuery{UserID: &userID, From: from, To: from.AddDate(1, 0, 0), Today: s.now()})
	if err != nil {
		return YearlySummary{}, fmt.Errorf("dues summary: %w", err)
	}
	summary := YearlySummary{UserID: userID, Year: year, Status: emptyStatusTotals()}
	summary.Months = monthRange(from, 12)
	index := monthIndex(summary.Months)
	for _, b := range buckets {
		summary.Total = summary.Total.add(b)
		summary.Status[b.Status] = summary.Status[b.Status].add(b)
		if i, ok := index[b.Month.Format("2006-01")]; ok {
			summary.Months[i].Total = summary.Months[i].Total.add(b)
			summary.Months[i].Status[b.Status] = summary.Months[i].Status[b.Status].add(b)
		}
	}
	return summary, nil
}

// Statistics reports organisation-wide totals, a twelve month trend and a
// breakdown by type. Results are cached until the next dues write.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	now := s.now()
	key := cache.Key("statistics", shared.Today(now).Format("2006-01-02"))
	err := s.cache.Remember(ctx, cacheFamily, key, statsTTL, &stats, func(ctx context.Context) (any, error) {
		buckets, err := s.repo.Totals(ctx, TotalsQuery{Today: now})
		if err != nil {
			return nil, fmt.Errorf("dues statistics: %w", err)
		}
		return summariseStatistics(buckets, now), nil
	})
	return stats, err
}

// Remind mails the member about an unpaid due.
func (s *Service) Remind(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "send due reminder"); err != nil {
		return err
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != StatusPending {
		return fmt.Errorf("%w: only unpaid dues can be reminded", shared.ErrInvalidState)
	}
	s.SendReminder(ctx, d.withDerivedStatus(s.now()))
	return nil
}

// SendReminder queues a reminder mail for d. Delivery is best-effort.
func (s *Service) SendReminder(ctx context.Context, d Due) {
	notify.Send(ctx, s.notifier, s.logger, ReminderMessage(d))
}

// ReminderMessage renders the reminder mail for d.
func ReminderMessage(d Due) notify.Message {
	subject := "Dues reminder"
	if d.Status == StatusOverdue {
		subject = "Overdue dues reminder"
	}
	name := d.UserName
	if name == "" {
		name = "member"
	}
	body := fmt.Sprintf("Dear %s,\n\nThis is a reminder that your %s dues of %s were due on %s and remain unpaid.\n\nThank you.",
		name, d.Type, d.Amount.StringFixed(2), d.DueDate.Format("2 January 2006"))
	return notify.Message{To: d.UserEmail, Subject: subject, Body: body}
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "due", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("audit due", slog.String("action", action), slog.Int64("due_id", id), slog.Any("error", err))
	}
}

func paymentNote(at time.Time, method PaymentMethod, txnID, extra *string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Paid via %s", at.UTC().Format(noteLayout), method)
	if txnID != nil {
		fmt.Fprintf(&b, " (transaction %s)", *txnID)
	}
	if extra := trimmed(extra); extra != nil {
		b.WriteString(": ")
		b.WriteString(*extra)
	}
	return b.String()
}

// maxAmount is the largest value dues.amount NUMERIC(12,2) holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

func checkAmount(verr *shared.ValidationError, amount *decimal.Decimal) {
	if amount == nil {
		return
	}
	switch {
	case amount.IsNegative():
		verr.Add("amount", "The amount must be at least 0.")
	case !amount.Equal(amount.Round(2)):
		verr.Add("amount", "The amount may have at most 2 decimal places.")
	case amount.GreaterThan(maxAmount):
		verr.Add("amount", "The amount is too large.")
	}
}

// checkStatusChange guards direct status edits. Paid and waived carry their
// own metadata and are only reached through MarkAsPaid and Waive.
func checkStatusChange(from Status, to StoredStatus) error {
	if from == StatusOverdue {
		from = StatusPending
	}
	if from == Status(to) {
		return nil
	}
	switch Status(to) {
	case StatusPaid:
		return shared.Invalid("status", "Use the payment action to mark a due as paid.")
	case StatusWaived:
		return shared.Invalid("status", "Use the waive action to waive a due.")
	}
	if from == StatusWaived {
		return fmt.Errorf("%w: a waived due cannot be reopened", shared.ErrInvalidState)
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (a Amounts) add(b Bucket) Amounts {
	return Amounts{Count: a.Count + b.Count, Amount: a.Amount.Add(b.Amount)}
}

func emptyStatusTotals() map[Status]Amounts {
	out := make(map[Status]Amounts, len(Statuses))
	for _, st := range Statuses {
		out[st] = Amounts{Amount: decimal.Zero}
	}
	return out
}

func monthRange(from time.Time, n int) []MonthSummary {
	out := make([]MonthSummary, n)
	for i := range out {
		out[i] = MonthSummary{
			Month:  from.AddDate(0, i, 0).Format("2006-01"),
			Total:  Amounts{Amount: decimal.Zero},
			Status: emptyStatusTotals(),
		}
	}
	return out
}

func monthIndex(months []MonthSummary) map[string]int {
	out := make(map[string]int, len(months))
	for i, m := range months {
		out[m.Month] = i
	}
	return out
}

func summariseStatistics(buckets []Bucket, now time.Time) Statistics {
	today := shared.Today(now)
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(trendMonths - 1), 0)
	stats := Statistics{
		Total:    Amounts{Amount: decimal.Zero},
		ByStatus: emptyStatusTotals(),
		ByType:   make(map[Type]Amounts, len(Types)),
		Trend:    monthRange(first, trendMonths),
	}
	for _, t := range Types {
		stats.ByType[t] = Amounts{Amount: decimal.Zero}
	}
	index := monthIndex(stats.Trend)
	for _, b := range buckets {
		stats.Total = stats.Total.add(b)
		stats.ByStatus[b.Status] = stats.ByStatus[b.Status].add(b)
		stats.ByType[b.Type] = stats.ByType[b.Type].add(b)
		if i, ok := index[b.Month.Format("2006-01")]; ok {
			stats.Trend[i].Total = stats.Trend[i].Total.add(b)
			stats.Trend[i].Status[b.Status] = stats.Trend[i].Status[b.Status].add(b)
		}
	}
	return stats
}
