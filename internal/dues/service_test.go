package dues

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

type memoryRepo struct {
	dues   map[int64]Due
	users  map[int64]string
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		dues:  make(map[int64]Due),
		users: map[int64]string{1: "ada@club.test", 2: "bob@club.test"},
	}
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Due, int, error) {
	var out []Due
	for _, d := range r.dues {
		if filter.UserID != nil && d.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && d.withDerivedStatus(filter.Today).Status != filter.Status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) Overdue(ctx context.Context, today time.Time) ([]Due, error) {
	var out []Due
	for _, d := range r.dues {
		if d.IsOverdue(today) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Due, error) {
	d, ok := r.dues[id]
	if !ok {
		return Due{}, fmt.Errorf("due %d: %w", id, shared.ErrNotFound)
	}
	return d, nil
}

func (r *memoryRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := r.users[userID]
	return ok, nil
}

func (r *memoryRepo) Create(ctx context.Context, due Due) (int64, error) {
	r.nextID++
	due.ID = r.nextID
	due.UserEmail = r.users[due.UserID]
	r.dues[due.ID] = due
	return due.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input UpdateInput) error {
	d, ok := r.dues[id]
	if !ok {
		return fmt.Errorf("due %d: %w", id, shared.ErrNotFound)
	}
	if input.Amount != nil {
		d.Amount = *input.Amount
	}
	if input.Status != nil {
		d.Status = Status(*input.Status)
		if d.Status == StatusPending {
			d.PaidAt, d.PaymentMethod, d.TransactionID = nil, nil, nil
		}
	}
	if input.Notes != nil {
		d.Notes = input.Notes
	}
	r.dues[id] = d
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := r.dues[id]; !ok {
		return fmt.Errorf("due %d: %w", id, shared.ErrNotFound)
	}
	delete(r.dues, id)
	return nil
}

func appendNote(notes *string, line string) *string {
	if notes == nil || *notes == "" {
		return &line
	}
	joined := *notes + "\n" + line
	return &joined
}

func (r *memoryRepo) MarkPaid(ctx context.Context, id int64, payment Payment) error {
	d := r.dues[id]
	if d.Status == StatusWaived {
		return fmt.Errorf("%w: due %d can no longer be paid", shared.ErrInvalidState, id)
	}
	d.Status = StatusPaid
	paidAt := payment.PaidAt
	d.PaidAt = &paidAt
	method := payment.Method
	d.PaymentMethod = &method
	d.TransactionID = payment.TransactionID
	d.Notes = appendNote(d.Notes, payment.Note)
	r.dues[id] = d
	return nil
}

func (r *memoryRepo) Waive(ctx context.Context, id int64, note string) error {
	d := r.dues[id]
	if d.Status != StatusPending {
		return fmt.Errorf("%w: due %d is not pending", shared.ErrInvalidState, id)
	}
	d.Status = StatusWaived
	d.Notes = appendNote(d.Notes, note)
	r.dues[id] = d
	return nil
}

func (r *memoryRepo) Totals(ctx context.Context, query TotalsQuery) ([]Bucket, error) {
	type key struct {
		month  time.Time
		status Status
		typ    Type
	}
	agg := map[key]*Bucket{}
	for _, d := range r.dues {
		if query.UserID != nil && d.UserID != *query.UserID {
			continue
		}
		if !query.From.IsZero() && d.DueDate.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !d.DueDate.Before(query.To) {
			continue
		}
		month := time.Date(d.DueDate.Year(), d.DueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		k := key{month, d.withDerivedStatus(query.Today).Status, d.Type}
		b, ok := agg[k]
		if !ok {
			b = &Bucket{Month: month, Status: k.status, Type: d.Type}
			agg[k] = b
		}
		b.Count++
		b.Amount = b.Amount.Add(d.Amount)
	}
	var out []Bucket
	for _, b := range agg {
		out = append(out, *b)
	}
	return out, nil
}

type memoryKeys struct {
	seen map[string]bool
}

func (k *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if k.seen[module+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[module+key] = true
	return nil
}

func (k *memoryKeys) Delete(ctx context.Context, key, module string) error {
	delete(k.seen, module+key)
	return nil
}

var (
	admin  = shared.Actor{ID: 100, Role: shared.RoleAdmin}
	ada    = shared.Actor{ID: 1, Role: shared.RoleMember}
	bob    = shared.Actor{ID: 2, Role: shared.RoleMember}
	fixed  = time.Date(2026, time.March, 15, 9, 30, 0, 0, time.UTC)
	clock  = WithClock(func() time.Time { return fixed })
	amount = func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}
)

func day(t *testing.T, raw string) shared.Date {
	t.Helper()
	d, err := shared.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func newTestService(opts ...Option) (*Service, *memoryRepo, *memoryKeys) {
	repo := newMemoryRepo()
	keys := &memoryKeys{seen: map[string]bool{}}
	return NewService(repo, keys, nil, append([]Option{clock}, opts...)...), repo, keys
}

func createDue(t *testing.T, svc *Service, userID int64, value, due string) Due {
	t.Helper()
	d, err := svc.Create(context.Background(), admin, CreateInput{UserID: userID, Amount: amount(value), Type: TypeAnnual, DueDate: day(t, due)})
	require.NoError(t, err)
	return d
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), ada, CreateInput{UserID: 1, Amount: amount("10"), Type: TypeAnnual, DueDate: day(t, "2026-04-01")})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Create(context.Background(), admin, CreateInput{UserID: 1, Amount: amount("-5"), Type: "yearly"})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "amount")
	require.Contains(t, verr.Fields, "type")
	require.Contains(t, verr.Fields, "due_date")

	d := createDue(t, svc, 1, "0", "2026-04-01")
	require.Equal(t, StatusPending, d.Status)
	require.Equal(t, admin.ID, d.RecordedBy)
}

func TestAmountLimits(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for _, raw := range []string{"10.005", "10000000000"} {
		_, err := svc.Create(ctx, admin, CreateInput{UserID: 1, Amount: amount(raw), Type: TypeAnnual, DueDate: day(t, "2026-04-01")})
		verr, ok := shared.AsValidationError(err)
		require.True(t, ok, "%s: got %v", raw, err)
		require.Contains(t, verr.Fields, "amount")
	}

	d := createDue(t, svc, 1, "9999999999.99", "2026-04-01")
	_, err := svc.Update(ctx, admin, d.ID, UpdateInput{Amount: amount("0.001")})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "amount")
}

func TestUpdateStatusGuards(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	status := func(s Status) *StoredStatus {
		v := StoredStatus(s)
		return &v
	}

	d := createDue(t, svc, 1, "100", "2026-04-01")
	_, err := svc.Update(ctx, admin, d.ID, UpdateInput{Status: status(StatusPaid)})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "status")
	require.Nil(t, repo.dues[d.ID].PaidAt)

	_, err = svc.Update(ctx, admin, d.ID, UpdateInput{Status: status(StatusWaived)})
	_, ok = shared.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, StatusPending, repo.dues[d.ID].Status)

	txn := "TXN-55"
	_, err = svc.MarkAsPaid(ctx, admin, d.ID, PaymentInput{PaymentMethod: PaymentCash, TransactionID: &txn})
	require.NoError(t, err)
	reopened, err := svc.Update(ctx, admin, d.ID, UpdateInput{Status: status(StatusPending)})
	require.NoError(t, err)
	require.Equal(t, StatusPending, reopened.Status)
	require.Nil(t, reopened.PaidAt)
	require.Nil(t, reopened.PaymentMethod)
	require.Nil(t, reopened.TransactionID)

	waived := createDue(t, svc, 2, "50", "2026-04-01")
	_, err = svc.Waive(ctx, admin, waived.ID, WaiveInput{Reason: "Hardship"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, admin, waived.ID, UpdateInput{Status: status(StatusPending)})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, StatusWaived, repo.dues[waived.ID].Status)
}

func TestOverdueIsDerived(t *testing.T) {
	svc, repo, _ := newTestService()
	past := createDue(t, svc, 1, "100", "2026-02-01")
	createDue(t, svc, 2, "100", "2026-05-01")

	require.Equal(t, StatusPending, repo.dues[past.ID].Status, "stored status never changes")
	require.Equal(t, StatusOverdue, past.Status)

	overdue, err := svc.Overdue(context.Background())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, past.ID, overdue[0].ID)

	items, _, err := svc.List(context.Background(), admin, ListFilter{Status: StatusOverdue})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestMemberSeesOwnDuesOnly(t *testing.T) {
	svc, _, _ := newTestService()
	own := createDue(t, svc, 1, "50", "2026-04-01")
	other := createDue(t, svc, 2, "50", "2026-04-01")

	items, meta, err := svc.List(context.Background(), ada, ListFilter{UserID: &other.UserID})
	require.NoError(t, err)
	require.Equal(t, 1, meta.Total)
	require.Equal(t, own.ID, items[0].ID)

	_, err = svc.Get(context.Background(), ada, other.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Get(context.Background(), bob, other.ID)
	require.NoError(t, err)
}

func TestMarkAsPaidTwiceKeepsPaid(t *testing.T) {
	svc, _, _ := newTestService()
	d := createDue(t, svc, 1, "120", "2026-04-01")

	paid, err := svc.MarkAsPaid(context.Background(), admin, d.ID, PaymentInput{PaymentMethod: PaymentCash})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	txn := "TX-001"
	paid, err = svc.MarkAsPaid(context.Background(), admin, d.ID, PaymentInput{PaymentMethod: PaymentBankTransfer, TransactionID: &txn})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, PaymentBankTransfer, *paid.PaymentMethod)
	require.Equal(t, "TX-001", *paid.TransactionID)
	require.Equal(t, 2, strings.Count(*paid.Notes, "Paid via"))
	require.Contains(t, *paid.Notes, "[2026-03-15 09:30] Paid via bank_transfer (transaction TX-001)")
}

func TestMarkAsPaidRejectsReusedTransaction(t *testing.T) {
	svc, _, keys := newTestService()
	first := createDue(t, svc, 1, "10", "2026-04-01")
	second := createDue(t, svc, 2, "10", "2026-04-01")

	txn := " TX-42 "
	_, err := svc.MarkAsPaid(context.Background(), admin, first.ID, PaymentInput{PaymentMethod: PaymentCard, TransactionID: &txn})
	require.NoError(t, err)
	require.True(t, keys.seen[paymentModule+"TX-42"])

	_, err = svc.MarkAsPaid(context.Background(), admin, second.ID, PaymentInput{PaymentMethod: PaymentCard, TransactionID: &txn})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestWaiveAppendsReason(t *testing.T) {
	svc, _, keys := newTestService()
	notes := "Initial note"
	d, err := svc.Create(context.Background(), admin, CreateInput{UserID: 1, Amount: amount("75"), Type: TypeSpecial, DueDate: day(t, "2026-04-01"), Notes: &notes})
	require.NoError(t, err)

	waived, err := svc.Waive(context.Background(), admin, d.ID, WaiveInput{Reason: "Hardship"})
	require.NoError(t, err)
	require.Equal(t, StatusWaived, waived.Status)
	require.True(t, strings.HasPrefix(*waived.Notes, "Initial note\n"))
	require.Contains(t, *waived.Notes, "[2026-03-15 09:30] Waived by user #100: Hardship")

	_, err = svc.Waive(context.Background(), admin, d.ID, WaiveInput{Reason: "Again"})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	txn := "TX-W"
	_, err = svc.MarkAsPaid(context.Background(), admin, d.ID, PaymentInput{PaymentMethod: PaymentCash, TransactionID: &txn})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.False(t, keys.seen[paymentModule+"TX-W"])
}

func TestYearlySummary(t *testing.T) {
	svc, _, _ := newTestService()
	createDue(t, svc, 1, "100", "2026-01-10")
	paid := createDue(t, svc, 1, "40", "2026-01-20")
	createDue(t, svc, 1, "60", "2026-06-01")
	createDue(t, svc, 1, "999", "2025-12-31")
	createDue(t, svc, 2, "500", "2026-01-10")
	_, err := svc.MarkAsPaid(context.Background(), admin, paid.ID, PaymentInput{PaymentMethod: PaymentCash})
	require.NoError(t, err)

	_, err = svc.YearlySummary(context.Background(), bob, 1, 2026)
	require.ErrorIs(t, err, shared.ErrForbidden)

	summary, err := svc.YearlySummary(context.Background(), ada, 1, 2026)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total.Count)
	require.Equal(t, "200", summary.Total.Amount.String())
	require.Len(t, summary.Months, 12)
	require.Equal(t, "2026-01", summary.Months[0].Month)
	require.Equal(t, "100", summary.Months[0].Status[StatusOverdue].Amount.String())
	require.Equal(t, "40", summary.Months[0].Status[StatusPaid].Amount.String())
	require.Equal(t, 1, summary.Months[5].Status[StatusPending].Count)
}

func TestStatistics(t *testing.T) {
	svc, _, _ := newTestService()
	createDue(t, svc, 1, "100", "2026-01-10")
	createDue(t, svc, 2, "50", "2026-04-10")
	d, err := svc.Create(context.Background(), admin, CreateInput{UserID: 2, Amount: amount("25"), Type: TypeMonthly, DueDate: day(t, "2026-03-01")})
	require.NoError(t, err)
	_, err = svc.Waive(context.Background(), admin, d.ID, WaiveInput{Reason: "Sponsor"})
	require.NoError(t, err)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total.Count)
	require.Equal(t, "175", stats.Total.Amount.String())
	require.Equal(t, 1, stats.ByStatus[StatusOverdue].Count)
	require.Equal(t, 1, stats.ByStatus[StatusPending].Count)
	require.Equal(t, 1, stats.ByStatus[StatusWaived].Count)
	require.Equal(t, "25", stats.ByType[TypeMonthly].Amount.String())
	require.Len(t, stats.Trend, 12)
	require.Equal(t, "2025-04", stats.Trend[0].Month)
	require.Equal(t, "2026-03", stats.Trend[11].Month)
	require.Equal(t, "25", stats.Trend[11].Total.Amount.String())
	require.Equal(t, "100", stats.Trend[9].Status[StatusOverdue].Amount.String())
}

func TestRemindQueuesMail(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := notify.NewMockNotifier(ctrl)
	svc, _, _ := newTestService(WithNotifier(notifier))
	d := createDue(t, svc, 1, "100", "2026-02-01")

	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg notify.Message) error {
		require.Equal(t, "ada@club.test", msg.To)
		require.Equal(t, "Overdue dues reminder", msg.Subject)
		require.Contains(t, msg.Body, "100.00")
		return nil
	})
	require.NoError(t, svc.Remind(context.Background(), admin, d.ID))

	_, err := svc.MarkAsPaid(context.Background(), admin, d.ID, PaymentInput{PaymentMethod: PaymentCash})
	require.NoError(t, err)
	require.ErrorIs(t, svc.Remind(context.Background(), admin, d.ID), shared.ErrInvalidState)
}
