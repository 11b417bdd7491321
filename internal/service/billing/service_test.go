package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/internal/repository/memory"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

type fixture struct {
	store   *memory.Store
	repo    *memory.BillingRepository
	svc     *Service
	patient uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	patient := uuid.New()
	store.AddPatient(patient)
	repo := memory.NewBillingRepository(store)
	return &fixture{
		store:   store,
		repo:    repo,
		svc:     NewService(repo, nil, logger.Nop(), metrics.NewTestMetrics()),
		patient: patient,
	}
}

func amountPtr(s string) *model.Amount {
	a := model.MustAmount(s)
	return &a
}

func (f *fixture) create(t *testing.T, cost, unpaid string, paid bool) *model.BillingRecord {
	t.Helper()
	rec, err := f.svc.CreateRecord(context.Background(), f.patient, &model.CreateBillingRequest{
		Service:      "Checkup",
		Date:         "2025-06-01",
		Cost:         amountPtr(cost),
		Paid:         paid,
		UnpaidAmount: amountPtr(unpaid),
	})
	require.NoError(t, err)
	return rec
}

func TestCreateRecordChoosesDecision(t *testing.T) {
	f := newFixture(t)

	unpaid := f.create(t, "150", "150", false)
	assert.Equal(t, model.PaymentStatusUnpaid, unpaid.PaymentStatus())

	paid := f.create(t, "150", "0", true)
	assert.True(t, paid.Paid)

	partial := f.create(t, "100", "40", false)
	assertAmount(t, "60.00", partial.PaidAmount)

	events := f.store.Events()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, model.EventBillingCreated, e.EventType)
	}
}

func TestCreateRecordRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("paid with balance", func(t *testing.T) {
		_, err := f.svc.CreateRecord(ctx, f.patient, &model.CreateBillingRequest{
			Service: "Checkup", Date: "2025-06-01", Cost: amountPtr("100"), Paid: true, UnpaidAmount: amountPtr("10"),
		})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	})

	t.Run("inconsistent paid_amount", func(t *testing.T) {
		_, err := f.svc.CreateRecord(ctx, f.patient, &model.CreateBillingRequest{
			Service: "Checkup", Date: "2025-06-01", Cost: amountPtr("100"),
			UnpaidAmount: amountPtr("40"), PaidAmount: amountPtr("50"),
		})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := f.svc.CreateRecord(ctx, uuid.New(), &model.CreateBillingRequest{
			Service: "Checkup", Date: "2025-06-01", Cost: amountPtr("100"), UnpaidAmount: amountPtr("100"),
		})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	})

	assert.Empty(t, f.store.Events(), "rejected requests store nothing")
}

func TestRecordPaymentPersistsAndEmitsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "150", "150", false)

	res, err := f.svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "60"})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, int64(2), res.Record.Version)

	cash := "cash"
	res, err = f.svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "90.00", PaymentMethod: &cash})
	require.NoError(t, err)
	assert.True(t, res.Completed)

	stored, err := f.svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid)
	assert.Equal(t, "cash", *stored.PaymentMethod)
	assertAmount(t, "0.00", stored.UnpaidAmount)

	events := f.store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, model.EventBillingPaymentRecorded, events[1].EventType)
	assert.Equal(t, model.EventBillingPaymentCompleted, events[2].EventType)

	var payload model.BillingEventPayload
	require.NoError(t, json.Unmarshal(events[2].Payload, &payload))
	assertAmount(t, "90.00", *payload.Amount)
}

func TestRecordPaymentRejectionLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "100", "40", false)

	_, err := f.svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "40.01"})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrInvalidAmount, appErr.Code)
	assert.Equal(t, "40.00", appErr.Details["max_allowed"])

	stored, err := f.svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assertAmount(t, "40.00", stored.UnpaidAmount)
	assert.Len(t, f.store.Events(), 1)
}

func TestUnknownRecordIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := f.svc.RecordPayment(ctx, id, &model.PaymentRequest{Amount: "1"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	_, err = f.svc.MarkPaid(ctx, id, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	assert.True(t, apperrors.HasCode(f.svc.DeleteRecord(ctx, id), apperrors.ErrNotFound))
}

func TestMarkPaidUnpaidAndReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "80", "80", false)

	paid, err := f.svc.MarkPaid(ctx, rec.ID, &model.SettleRequest{})
	require.NoError(t, err)
	assert.True(t, paid.Paid)

	unpaid, err := f.svc.MarkUnpaid(ctx, rec.ID)
	require.NoError(t, err)
	assertAmount(t, "80.00", unpaid.UnpaidAmount)

	yes, no := true, false
	_, err = f.svc.UpdateRecord(ctx, rec.ID, &model.UpdateBillingRequest{
		Paid: &yes, PaidAmount: amountPtr("30"), UnpaidAmount: amountPtr("50"),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))

	notes := "insurance pending"
	updated, err := f.svc.UpdateRecord(ctx, rec.ID, &model.UpdateBillingRequest{
		Paid: &no, PaidAmount: amountPtr("30"), UnpaidAmount: amountPtr("50"), Notes: &notes,
	})
	require.NoError(t, err)
	assertAmount(t, "30.00", updated.PaidAmount)
	assert.Equal(t, "insurance pending", *updated.Notes)
	assert.Equal(t, int64(4), updated.Version)
}

func TestDeleteRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "10", "10", false)

	require.NoError(t, f.svc.DeleteRecord(ctx, rec.ID))
	_, err := f.svc.GetRecord(ctx, rec.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	events := f.store.Events()
	assert.Equal(t, model.EventBillingDeleted, events[len(events)-1].EventType)
}

// staleReads serves every Get from the snapshot taken when it was built,
// like two clients that loaded the record at the same moment.
type staleReads struct {
	repository.BillingRepository
	snapshot model.BillingRecord
}

func (s *staleReads) Get(context.Context, uuid.UUID) (*model.BillingRecord, error) {
	rec := s.snapshot
	return &rec, nil
}

func TestLostUpdateIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "150", "150", false)

	stale := &staleReads{BillingRepository: f.repo, snapshot: *rec}
	svc := NewService(stale, nil, logger.Nop(), metrics.NewTestMetrics())

	_, err := svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "60"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "50"})
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
	assert.Equal(t, 409, appErr.StatusCode())

	stored, err := f.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assertAmount(t, "60.00", stored.PaidAmount, "only the first payment is applied")
	assertAmount(t, "90.00", stored.UnpaidAmount)
	assert.Equal(t, int64(2), stored.Version)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "10", "10", false)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "1"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			appErr, ok := apperrors.As(err)
			if assert.True(t, ok, err) {
				assert.Contains(t, []apperrors.ErrorCode{apperrors.ErrConflict, apperrors.ErrInvalidAmount}, appErr.Code)
			}
		}()
	}
	wg.Wait()

	stored, err := f.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, succeeded, 10)
	assert.True(t, stored.PaidAmount.Equal(decimal.NewFromInt(int64(succeeded))),
		"paid %s after %d accepted payments", stored.PaidAmount, succeeded)
	assertBalanced(t, stored)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	release, _ := args.Get(0).(func())
	return release, args.Error(1)
}

func TestLockHeldIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "10", "10", false)

	locker := new(mockLocker)
	locker.On("Lock", mock.Anything, "billing:lock:"+rec.ID.String()).Return(nil, ErrLockHeld)
	svc := NewService(f.repo, locker, logger.Nop(), metrics.NewTestMetrics())

	_, err := svc.RecordPayment(ctx, rec.ID, &model.PaymentRequest{Amount: "1"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	locker.AssertExpectations(t)

	stored, err := f.repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestLockIsReleasedAfterWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t, "10", "10", false)

	released := false
	locker := new(mockLocker)
	locker.On("Lock", mock.Anything, mock.Anything).Return(func() { released = true }, nil)
	svc := NewService(f.repo, locker, logger.Nop(), metrics.NewTestMetrics())

	_, err := svc.MarkPaid(ctx, rec.ID, nil)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestLockerFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, "10", "10", false)

	locker := new(mockLocker)
	locker.On("Lock", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))
	svc := NewService(f.repo, locker, logger.Nop(), metrics.NewTestMetrics())

	_, err := svc.MarkUnpaid(context.Background(), rec.ID)
	require.Error(t, err)
	_, isApp := apperrors.As(err)
	assert.False(t, isApp)
}
