package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	cacheFamily     = "quotations"
	statsTTL        = 10 * time.Minute
	defaultCurrency = "USD"
	numberPrefix    = "QT"
	trendMonths     = 12
	topVendorLimit  = 5
)

// PDFRenderer turns a quotation into a printable document.
type PDFRenderer interface {
	RenderQuotation(ctx context.Context, q Quotation) ([]byte, error)
}

// Option customises Service.
type Option func(*Service)

// WithCache enables statistics caching.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier sets the mail channel for workflow notices.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAudit records workflow transitions.
func WithAudit(a shared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithRenderer enables PDF export.
func WithRenderer(r PDFRenderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service owns the quotation workflow and keeps totals consistent with items.
type Service struct {
	repo     Repository
	cache    *cache.Cache
	notifier notify.Notifier
	audit    shared.AuditRecorder
	renderer PDFRenderer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the quotation service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
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

// List returns a page of quotations.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", "The selected status is invalid.")
	}
	filter.Today = s.now()
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list quotations: %w", err)
	}
	for i := range items {
		items[i] = items[i].withDerivedStatus(filter.Today)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get loads a quotation with its items.
func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return Quotation{}, fmt.Errorf("load items: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	q.Items = items
	return q.withDerivedStatus(s.now()), nil
}

// Create persists a draft quotation and its items atomically.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Quotation, error) {
	if actor.IsZero() {
		return Quotation{}, shared.ErrUnauthorized
	}
	verr := validationErrors(input)
	checkDates(verr, input.IssueDate, input.ExpiryDate)
	checkDiscount(verr, input.DiscountAmount)
	items := make([]Item, len(input.Items))
	for i, in := range input.Items {
		items[i] = newItem(verr, fmt.Sprintf("items[%d]", i), in)
		items[i].SortOrder = i + 1
	}
	if !verr.Empty() {
		return Quotation{}, verr
	}
	discount := decimal.Zero
	if input.DiscountAmount != nil {
		discount = *input.DiscountAmount
	}
	if err := checkTotals(computeTotals(items, discount)); err != nil {
		return Quotation{}, err
	}

	q := Quotation{
		ProjectID:      input.ProjectID,
		VendorName:     strings.TrimSpace(input.VendorName),
		VendorEmail:    input.VendorEmail,
		VendorPhone:    input.VendorPhone,
		VendorAddress:  input.VendorAddress,
		IssueDate:      input.IssueDate,
		ExpiryDate:     input.ExpiryDate,
		Currency:       strings.ToUpper(input.Currency),
		DiscountAmount: discount,
		Status:         StatusDraft,
		Notes:          input.Notes,
		Terms:          input.Terms,
		CreatedBy:      actor.ID,
	}
	if q.Currency == "" {
		q.Currency = defaultCurrency
	}

	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureProject(ctx, tx, q.ProjectID); err != nil {
			return err
		}
		var err error
		id, err = s.insert(ctx, tx, q, items)
		return err
	})
	if err != nil {
		return Quotation{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("quotation created", slog.Int64("quotation_id", id), slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, id)
}

// Update edits header fields of a quotation that is not accepted or rejected.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Quotation, error) {
	verr := validationErrors(input)
	checkDiscount(verr, input.DiscountAmount)
	if !verr.Empty() {
		return Quotation{}, verr
	}
	err := s.withEditable(ctx, actor, id, "update quotation", func(ctx context.Context, tx TxRepository, current Quotation) error {
		issue, expiry := current.IssueDate, current.ExpiryDate
		if input.IssueDate != nil {
			issue = *input.IssueDate
		}
		if input.ExpiryDate != nil {
			expiry = *input.ExpiryDate
		}
		dates := shared.NewValidationError()
		checkDates(dates, issue, expiry)
		if !dates.Empty() {
			return dates
		}
		if err := ensureProject(ctx, tx, input.ProjectID); err != nil {
			return err
		}
		if err := tx.UpdateHeader(ctx, id, input); err != nil {
			return err
		}
		if input.DiscountAmount == nil {
			return nil
		}
		current.DiscountAmount = *input.DiscountAmount
		return recalculate(ctx, tx, current)
	})
	if err != nil {
		return Quotation{}, err
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a quotation that is not accepted or rejected.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.withEditable(ctx, actor, id, "delete quotation", func(ctx context.Context, tx TxRepository, _ Quotation) error {
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("quotation deleted", slog.Int64("quotation_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// AddItems appends lines and recomputes totals in one transaction.
func (s *Service) AddItems(ctx context.Context, actor shared.Actor, id int64, input AddItemsInput) (Quotation, error) {
	verr := validationErrors(input)
	items := make([]Item, len(input.Items))
	for i, in := range input.Items {
		items[i] = newItem(verr, fmt.Sprintf("items[%d]", i), in)
	}
	if !verr.Empty() {
		return Quotation{}, verr
	}
	err := s.withEditable(ctx, actor, id, "add quotation items", func(ctx context.Context, tx TxRepository, current Quotation) error {
		existing, err := tx.Items(ctx, id)
		if err != nil {
			return err
		}
		next := 0
		for _, it := range existing {
			if it.SortOrder > next {
				next = it.SortOrder
			}
		}
		for i := range items {
			next++
			items[i].QuotationID = id
			items[i].SortOrder = next
		}
		if err := tx.InsertItems(ctx, id, items); err != nil {
			return err
		}
		return recalculate(ctx, tx, current)
	})
	if err != nil {
		return Quotation{}, err
	}
	return s.Get(ctx, id)
}

// UpdateItem edits one line and recomputes totals in one transaction.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, id, itemID int64, input ItemUpdateInput) (Quotation, error) {
	if err := shared.Validate(input); err != nil {
		return Quotation{}, err
	}
	err := s.withEditable(ctx, actor, id, "update quotation item", func(ctx context.Context, tx TxRepository, current Quotation) error {
		items, err := tx.Items(ctx, id)
		if err != nil {
			return err
		}
		idx := indexOf(items, itemID)
		if idx < 0 {
			return fmt.Errorf("quotation item %d: %w", itemID, shared.ErrNotFound)
		}
		verr := shared.NewValidationError()
		updated := applyItemUpdate(verr, items[idx], input)
		if !verr.Empty() {
			return verr
		}
		if err := tx.UpdateItem(ctx, updated); err != nil {
			return err
		}
		return recalculate(ctx, tx, current)
	})
	if err != nil {
		return Quotation{}, err
	}
	return s.Get(ctx, id)
}

// RemoveItem deletes one line and recomputes totals in one transaction. The
// last remaining line cannot be removed.
func (s *Service) RemoveItem(ctx context.Context, actor shared.Actor, id, itemID int64) (Quotation, error) {
	err := s.withEditable(ctx, actor, id, "remove quotation item", func(ctx context.Context, tx TxRepository, current Quotation) error {
		items, err := tx.Items(ctx, id)
		if err != nil {
			return err
		}
		if indexOf(items, itemID) < 0 {
			return fmt.Errorf("quotation item %d: %w", itemID, shared.ErrNotFound)
		}
		if len(items) == 1 {
			return fmt.Errorf("%w: a quotation must keep at least one item", shared.ErrInvalidState)
		}
		if err := tx.DeleteItem(ctx, id, itemID); err != nil {
			return err
		}
		return recalculate(ctx, tx, current)
	})
	if err != nil {
		return Quotation{}, err
	}
	return s.Get(ctx, id)
}

// Send marks a draft quotation as sent and mails the vendor.
func (s *Service) Send(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	q, err := s.transition(ctx, actor, id, ActionSend, nil)
	if err != nil {
		return Quotation{}, err
	}
	if q.VendorEmail != nil {
		notify.Send(ctx, s.notifier, s.logger, notify.Message{
			To:      *q.VendorEmail,
			Subject: fmt.Sprintf("Quotation request %s", q.QuotationNumber),
			Body: fmt.Sprintf("Dear %s,\n\nPlease find our quotation %s for a total of %s %s, valid until %s.\n",
				q.VendorName, q.QuotationNumber, q.Currency, q.TotalAmount.StringFixed(2), q.ExpiryDate.Format("2 January 2006")),
		})
	}
	return q, nil
}

// Accept approves a draft or sent quotation.
func (s *Service) Accept(ctx context.Context, actor shared.Actor, id int64, input AcceptInput) (Quotation, error) {
	if err := shared.Validate(input); err != nil {
		return Quotation{}, err
	}
	q, err := s.transition(ctx, actor, id, ActionAccept, input.Notes)
	if err != nil {
		return Quotation{}, err
	}
	s.notifyCreator(ctx, q, "accepted", input.Notes)
	return q, nil
}

// Reject declines a draft or sent quotation.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, input RejectInput) (Quotation, error) {
	if err := shared.Validate(input); err != nil {
		return Quotation{}, err
	}
	reason := strings.TrimSpace(input.Reason)
	q, err := s.transition(ctx, actor, id, ActionReject, &reason)
	if err != nil {
		return Quotation{}, err
	}
	s.notifyCreator(ctx, q, "rejected", &reason)
	return q, nil
}

// Duplicate copies a quotation and its items into a new draft with a fresh
// number. The copy is issued today and keeps the original validity window.
func (s *Service) Duplicate(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	if actor.IsZero() {
		return Quotation{}, shared.ErrUnauthorized
	}
	var newID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		items, err := tx.Items(ctx, id)
		if err != nil {
			return err
		}
		validity := source.ExpiryDate.Sub(source.IssueDate.Time)
		if validity <= 0 {
			validity = 30 * 24 * time.Hour
		}
		issue := shared.NewDate(s.now())
		copyQ := Quotation{
			ProjectID:      source.ProjectID,
			VendorName:     source.VendorName,
			VendorEmail:    source.VendorEmail,
			VendorPhone:    source.VendorPhone,
			VendorAddress:  source.VendorAddress,
			IssueDate:      issue,
			ExpiryDate:     shared.NewDate(issue.Add(validity)),
			Currency:       source.Currency,
			DiscountAmount: source.DiscountAmount,
			Status:         StatusDraft,
			Notes:          source.Notes,
			Terms:          source.Terms,
			CreatedBy:      actor.ID,
		}
		copies := make([]Item, len(items))
		for i, it := range items {
			it.ID = 0
			copies[i] = it
		}
		newID, err = s.insert(ctx, tx, copyQ, copies)
		return err
	})
	if err != nil {
		return Quotation{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("quotation duplicated", slog.Int64("source_id", id), slog.Int64("quotation_id", newID), slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, newID)
}

// Statistics aggregates totals by status and month and the top vendors.
// Results are cached until the next quotation write.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	now := s.now()
	key := cache.Key("statistics", shared.Today(now).Format("2006-01-02"))
	err := s.cache.Remember(ctx, cacheFamily, key, statsTTL, &stats, func(ctx context.Context) (any, error) {
		first := firstTrendMonth(now)
		buckets, err := s.repo.Totals(ctx, time.Time{}, now)
		if err != nil {
			return nil, fmt.Errorf("quotation totals: %w", err)
		}
		vendors, err := s.repo.TopVendors(ctx, topVendorLimit)
		if err != nil {
			return nil, fmt.Errorf("quotation vendors: %w", err)
		}
		return summarise(buckets, vendors, first), nil
	})
	return stats, err
}

// RenderPDF renders the quotation document.
func (s *Service) RenderPDF(ctx context.Context, id int64) ([]byte, string, error) {
	if s.renderer == nil {
		return nil, "", fmt.Errorf("quotation pdf renderer not configured")
	}
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.renderer.RenderQuotation(ctx, q)
	if err != nil {
		return nil, "", fmt.Errorf("render quotation %s: %w", q.QuotationNumber, err)
	}
	return pdf, q.QuotationNumber + ".pdf", nil
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, action Action, note *string) (Quotation, error) {
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeTransition(actor, current, action); err != nil {
			return err
		}
		t, err := plan(current, action, s.now(), actor.ID, note)
		if err != nil {
			return err
		}
		from = current.Status
		return tx.Transition(ctx, id, t)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	q, err := s.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "quotation." + string(action),
		Entity:   "quotation",
		EntityID: id,
		Meta:     map[string]any{"from": string(from), "to": string(q.Status)},
	}); err != nil {
		s.logger.Warn("audit quotation transition", slog.Int64("quotation_id", id), slog.Any("error", err))
	}
	s.logger.Info("quotation transitioned", slog.Int64("quotation_id", id), slog.String("action", string(action)), slog.Int64("actor_id", actor.ID))
	return q, nil
}

// authorizeTransition lets the creator send their own quotation; accepting and
// rejecting are administrative decisions.
func authorizeTransition(actor shared.Actor, q Quotation, action Action) error {
	if action == ActionSend {
		return rbac.Ensure(rbac.OwnsOrAdmin(actor, q.CreatedBy), "send quotation")
	}
	return rbac.Ensure(rbac.IsAdmin(actor), string(action)+" quotation")
}

func (s *Service) notifyCreator(ctx context.Context, q Quotation, outcome string, note *string) {
	body := fmt.Sprintf("Quotation %s from %s (%s %s) has been %s.", q.QuotationNumber, q.VendorName, q.Currency, q.TotalAmount.StringFixed(2), outcome)
	if note != nil && strings.TrimSpace(*note) != "" {
		body += "\n\n" + strings.TrimSpace(*note)
	}
	notify.Send(ctx, s.notifier, s.logger, notify.Message{
		To:      q.CreatorEmail,
		Subject: fmt.Sprintf("Quotation %s %s", q.QuotationNumber, outcome),
		Body:    body,
	})
}

func (s *Service) withEditable(ctx context.Context, actor shared.Actor, id int64, action string, fn func(context.Context, TxRepository, Quotation) error) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, current.CreatedBy), action); err != nil {
			return err
		}
		if err := ensureEditable(current); err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
	if err == nil {
		s.cache.Invalidate(ctx, cacheFamily)
	}
	return err
}

// insert assigns a number, stores the header with computed totals and the items.
func (s *Service) insert(ctx context.Context, tx TxRepository, q Quotation, items []Item) (int64, error) {
	now := s.now().UTC()
	scope := fmt.Sprintf("quotation:%s", now.Format("200601"))
	seq, err := tx.NextNumber(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("next quotation number: %w", err)
	}
	q.QuotationNumber = formatNumber(now, seq)
	totals := computeTotals(items, q.DiscountAmount)
	q.Subtotal, q.TaxAmount, q.TotalAmount = totals.Subtotal, totals.TaxAmount, totals.Total
	id, err := tx.Create(ctx, q)
	if err != nil {
		return 0, err
	}
	for i := range items {
		items[i].QuotationID = id
		if items[i].SortOrder == 0 {
			items[i].SortOrder = i + 1
		}
	}
	if err := tx.InsertItems(ctx, id, items); err != nil {
		return 0, err
	}
	return id, nil
}

// formatNumber renders QT-YYYYMM-NNNN.
func formatNumber(at time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", numberPrefix, at.Format("200601"), seq)
}

// recalculate reloads the authoritative items and stores fresh totals.
func recalculate(ctx context.Context, tx TxRepository, q Quotation) error {
	items, err := tx.Items(ctx, q.ID)
	if err != nil {
		return err
	}
	totals := computeTotals(items, q.DiscountAmount)
	if err := checkTotals(totals); err != nil {
		return err
	}
	return tx.SetTotals(ctx, q.ID, totals)
}

func ensureProject(ctx context.Context, tx TxRepository, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := tx.ProjectExists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Invalid("project_id", "The selected project is invalid.")
	}
	return nil
}

func validationErrors(input any) *shared.ValidationError {
	verr := shared.NewValidationError()
	if err := shared.Validate(input); err != nil {
		if fields, ok := shared.AsValidationError(err); ok {
			verr.Merge(fields)
		} else {
			verr.Add("input", err.Error())
		}
	}
	return verr
}

func indexOf(items []Item, id int64) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func firstTrendMonth(now time.Time) time.Time {
	today := shared.Today(now)
	return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(trendMonths - 1), 0)
}

func summarise(buckets []Bucket, vendors []VendorTotal, first time.Time) Statistics {
	stats := Statistics{
		Total:      Amounts{Amount: decimal.Zero},
		ByStatus:   make(map[Status]Amounts, len(Statuses)),
		ByMonth:    make([]MonthTotal, trendMonths),
		TopVendors: vendors,
	}
	for _, st := range Statuses {
		stats.ByStatus[st] = Amounts{Amount: decimal.Zero}
	}
	index := make(map[string]int, trendMonths)
	for i := range stats.ByMonth {
		month := first.AddDate(0, i, 0).Format("2006-01")
		stats.ByMonth[i] = MonthTotal{Month: month, Amounts: Amounts{Amount: decimal.Zero}}
		index[month] = i
	}
	for _, b := range buckets {
		stats.Total = stats.Total.add(b)
		stats.ByStatus[b.Status] = stats.ByStatus[b.Status].add(b)
		if i, ok := index[b.Month.Format("2006-01")]; ok {
			stats.ByMonth[i].Amounts = stats.ByMonth[i].Amounts.add(b)
		}
	}
	if stats.TopVendors == nil {
		stats.TopVendors = []VendorTotal{}
	}
	sort.SliceStable(stats.TopVendors, func(i, j int) bool {
		return stats.TopVendors[i].Amount.GreaterThan(stats.TopVendors[j].Amount)
	})
	return stats
}

func (a Amounts) add(b Bucket) Amounts {
	return Amounts{Count: a.Count + b.Count, Amount: a.Amount.Add(b.Amount)}
}
