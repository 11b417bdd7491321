package billing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/model"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got model.Amount, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, want, got.String(), msgAndArgs...)
}

func assertBalanced(t *testing.T, rec *model.BillingRecord) {
	t.Helper()
	assert.True(t, rec.PaidAmount.Add(rec.UnpaidAmount.Decimal).Equal(rec.Cost.Decimal),
		"paid %s + unpaid %s != cost %s", rec.PaidAmount, rec.UnpaidAmount, rec.Cost)
	assert.False(t, rec.UnpaidAmount.IsNegative())
	assert.Equal(t, !rec.UnpaidAmount.IsPositive(), rec.Paid)
}

func newRecord(t *testing.T, cost string, decision Decision) *model.BillingRecord {
	t.Helper()
	rec, err := Create(uuid.New(), "Checkup", "2025-06-01", dec(cost), decision)
	require.NoError(t, err)
	return rec
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name     string
		cost     string
		decision Decision
		paid     string
		unpaid   string
		isPaid   bool
	}{
		{"fully paid", "150.00", FullyPaid(), "150.00", "0.00", true},
		{"fully unpaid", "150.00", FullyUnpaid(), "0.00", "150.00", false},
		{"partial", "100.00", Partial(dec("40.00")), "60.00", "40.00", false},
		{"partial owing everything", "100.00", Partial(dec("100")), "0.00", "100.00", false},
		{"one cent", "0.01", FullyUnpaid(), "0.00", "0.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord(t, tt.cost, tt.decision)
			assertAmount(t, tt.paid, rec.PaidAmount)
			assertAmount(t, tt.unpaid, rec.UnpaidAmount)
			assert.Equal(t, tt.isPaid, rec.Paid)
			assert.NotEqual(t, uuid.Nil, rec.ID)
			assert.Equal(t, int64(1), rec.Version)
			assertBalanced(t, rec)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	patient := uuid.New()
	tests := []struct {
		name     string
		patient  uuid.UUID
		service  string
		date     string
		cost     string
		decision Decision
		fields   []string
	}{
		{"blank service", patient, "  ", "2025-06-01", "10", FullyPaid(), []string{"service"}},
		{"bad date", patient, "Checkup", "2025-02-30", "10", FullyPaid(), []string{"date"}},
		{"zero cost", patient, "Checkup", "2025-06-01", "0", FullyPaid(), []string{"cost"}},
		{"negative cost", patient, "Checkup", "2025-06-01", "-3", FullyPaid(), []string{"cost"}},
		{"sub-cent cost", patient, "Checkup", "2025-06-01", "10.001", FullyPaid(), []string{"cost"}},
		{"cost too large", patient, "Checkup", "2025-06-01", "100000000", FullyPaid(), []string{"cost"}},
		{"no patient", uuid.Nil, "", "", "0", FullyPaid(), []string{"patient_id", "service", "date", "cost"}},
		{"partial zero", patient, "Checkup", "2025-06-01", "100", Partial(decimal.Zero), []string{"unpaid_amount"}},
		{"partial over cost", patient, "Checkup", "2025-06-01", "100", Partial(dec("100.01")), []string{"unpaid_amount"}},
		{"missing decision", patient, "Checkup", "2025-06-01", "100", Decision{}, []string{"paid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Create(tt.patient, tt.service, tt.date, dec(tt.cost), tt.decision)
			require.Error(t, err)
			assert.Nil(t, rec)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrValidation, appErr.Code)
			assert.Equal(t, tt.fields, appErr.Details["fields"])
		})
	}
}

func TestScenarioA_PartialPaymentsSettleRecord(t *testing.T) {
	rec := newRecord(t, "150.00", FullyUnpaid())
	assertAmount(t, "0.00", rec.PaidAmount)
	assertAmount(t, "150.00", rec.UnpaidAmount)
	assert.False(t, rec.Paid)

	first, err := RecordPartialPayment(rec, "60.00")
	require.NoError(t, err)
	assertAmount(t, "60.00", first.Record.PaidAmount)
	assertAmount(t, "90.00", first.Record.UnpaidAmount)
	assert.False(t, first.Record.Paid)
	assert.False(t, first.Completed)

	second, err := RecordPartialPayment(first.Record, "90.00")
	require.NoError(t, err)
	assertAmount(t, "150.00", second.Record.PaidAmount)
	assertAmount(t, "0.00", second.Record.UnpaidAmount)
	assert.True(t, second.Record.Paid)
	assert.True(t, second.Completed)
	assertAmount(t, "90.00", second.Amount)
}

func TestScenarioB_PartialAtCreation(t *testing.T) {
	rec := newRecord(t, "100.00", Partial(dec("40.00")))
	assertAmount(t, "60.00", rec.PaidAmount)
	assertAmount(t, "40.00", rec.UnpaidAmount)
	assert.False(t, rec.Paid)
	assert.Equal(t, model.PaymentStatusPartiallyPaid, rec.PaymentStatus())
}

func TestScenarioC_NegativePaymentLeavesRecordUnchanged(t *testing.T) {
	rec := newRecord(t, "100.00", Partial(dec("40.00")))
	before := *rec

	res, err := RecordPartialPayment(rec, "-5")
	assert.Nil(t, res)
	var invalid *InvalidAmountError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ReasonNotPositive, invalid.Reason)
	assert.True(t, invalid.Max.Equal(dec("40")))
	assert.Equal(t, before, *rec)
}

func TestRecordPartialPaymentCheckOrder(t *testing.T) {
	rec := newRecord(t, "100.00", Partial(dec("40.00")))
	tests := []struct {
		input  string
		reason string
	}{
		{"", ReasonNotANumber},
		{"abc", ReasonNotANumber},
		{"NaN", ReasonNotANumber},
		{"Infinity", ReasonNotANumber},
		{"10.005", ReasonNotANumber},
		{"0", ReasonNotPositive},
		{"-0.01", ReasonNotPositive},
		{"40.01", ReasonExceedsBalance},
		{"1e6", ReasonExceedsBalance},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := RecordPartialPayment(rec, tt.input)
			var invalid *InvalidAmountError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.reason, invalid.Reason)
			assert.Equal(t, "40.00", invalid.Max.StringFixed(2))
		})
	}
}

func TestRecordPartialPaymentBoundaries(t *testing.T) {
	rec := newRecord(t, "150.00", FullyUnpaid())
	paid, err := RecordPartialPayment(rec, "60")
	require.NoError(t, err)

	t.Run("exact remaining balance settles", func(t *testing.T) {
		res, err := RecordPartialPayment(paid.Record, "90.00")
		require.NoError(t, err)
		assert.True(t, res.Record.Paid)
		assertAmount(t, "0.00", res.Record.UnpaidAmount)
	})

	t.Run("one cent over is rejected", func(t *testing.T) {
		_, err := RecordPartialPayment(paid.Record, "90.01")
		var invalid *InvalidAmountError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, ReasonExceedsBalance, invalid.Reason)

		appErr := invalid.AppError()
		assert.Equal(t, "payment cannot exceed $90.00", appErr.Message)
		assert.Equal(t, "90.00", appErr.Details["max_allowed"])
	})
}

func TestTerminalStateRejectsFurtherPayments(t *testing.T) {
	rec := newRecord(t, "75.50", FullyPaid())
	for _, amount := range []string{"0.01", "1", "75.50"} {
		res, err := RecordPartialPayment(rec, amount)
		assert.Nil(t, res)
		var invalid *InvalidAmountError
		require.ErrorAs(t, err, &invalid)
		assert.True(t, invalid.Max.IsZero())
	}
	assertAmount(t, "0.00", rec.UnpaidAmount)
}

func TestMarkFullyPaidAndUnpaid(t *testing.T) {
	rec := newRecord(t, "80", Partial(dec("30")))

	paid := MarkFullyPaid(rec)
	assert.True(t, paid.Paid)
	assertAmount(t, "80.00", paid.PaidAmount)
	assertBalanced(t, paid)
	assertAmount(t, "50.00", rec.PaidAmount, "input must not be mutated")

	unpaid := MarkFullyUnpaid(paid)
	assert.False(t, unpaid.Paid)
	assertAmount(t, "0.00", unpaid.PaidAmount)
	assertAmount(t, "80.00", unpaid.UnpaidAmount)
	assertBalanced(t, unpaid)
}

func TestInvariantSweep(t *testing.T) {
	costs := []string{"0.01", "1.00", "19.99", "150.00", "99999999.99"}
	payments := []string{"0.01", "0.10", "3.33", "19.99", "50", "1000"}

	for _, cost := range costs {
		rec := newRecord(t, cost, FullyUnpaid())
		assertBalanced(t, rec)
		for _, p := range payments {
			res, err := RecordPartialPayment(rec, p)
			if err != nil {
				var invalid *InvalidAmountError
				require.ErrorAs(t, err, &invalid)
				continue
			}
			assertBalanced(t, res.Record)
			assert.False(t, res.Record.PaidAmount.LessThan(rec.PaidAmount.Decimal), "paid amount must not decrease")
			rec = res.Record
		}
		assertBalanced(t, MarkFullyPaid(rec))
		assertBalanced(t, MarkFullyUnpaid(rec))
	}
}

func TestReconcile(t *testing.T) {
	rec := newRecord(t, "100", FullyUnpaid())

	next, err := Reconcile(rec, false, dec("25"), dec("75"))
	require.NoError(t, err)
	assertAmount(t, "25.00", next.PaidAmount)
	assertBalanced(t, next)

	settled, err := Reconcile(rec, true, dec("100"), dec("0"))
	require.NoError(t, err)
	assert.True(t, settled.Paid)

	tests := []struct {
		name   string
		paid   bool
		p, u   string
		fields []string
	}{
		{"does not sum to cost", false, "20", "70", []string{"paid_amount", "unpaid_amount"}},
		{"negative", false, "-10", "110", []string{"paid_amount"}},
		{"flag contradicts balance", true, "25", "75", []string{"paid"}},
		{"unpaid flag with zero balance", false, "100", "0", []string{"paid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(rec, tt.paid, dec(tt.p), dec(tt.u))
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrValidation, appErr.Code)
			assert.Equal(t, tt.fields, appErr.Details["fields"])
		})
	}
}

func TestSummarize(t *testing.T) {
	patient := uuid.New()
	records := []*model.BillingRecord{
		newRecord(t, "150", FullyPaid()),
		newRecord(t, "100", Partial(dec("40"))),
		newRecord(t, "20.50", FullyUnpaid()),
	}

	s := Summarize(patient, records)
	assert.Equal(t, patient, s.PatientID)
	assert.Equal(t, 3, s.Records)
	assertAmount(t, "270.50", s.TotalBilled)
	assertAmount(t, "210.00", s.TotalPaid)
	assertAmount(t, "60.50", s.TotalUnpaid)
	assert.Equal(t, 1, s.PaidCount)
	assert.Equal(t, 1, s.PartialCount)
	assert.Equal(t, 1, s.UnpaidCount)

	empty := Summarize(patient, nil)
	assertAmount(t, "0.00", empty.TotalBilled)
}
