package referralfee

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goflare.io/settlement/driver"
	"goflare.io/settlement/models"
	"goflare.io/settlement/models/enum"
)

type stubTx struct{ pgx.Tx }

func (stubTx) Commit(context.Context) error   { return nil }
func (stubTx) Rollback(context.Context) error { return nil }

type stubPool struct{ driver.PostgresPool }

func (stubPool) Begin(context.Context) (pgx.Tx, error) { return stubTx{}, nil }

// memRepo is an in-memory Repository enforcing the same guards as the SQL
// statements: one active row per (request, professional) with terminal rows
// excluded from the key, transitions only from their source states.
type memRepo struct {
	fees map[string]*models.ReferralFee
}

func newMemRepo() *memRepo {
	return &memRepo{fees: make(map[string]*models.ReferralFee)}
}

func (m *memRepo) Create(_ context.Context, _ pgx.Tx, fee *models.ReferralFee) (bool, error) {
	for _, f := range m.fees {
		if f.ServiceRequestID == fee.ServiceRequestID && f.ProfessionalID == fee.ProfessionalID && f.Status.Active() {
			return false, nil
		}
	}
	m.fees[fee.ID] = fee
	return true, nil
}

func (m *memRepo) GetByID(_ context.Context, _ pgx.Tx, id string) (*models.ReferralFee, error) {
	f, ok := m.fees[id]
	if !ok {
		return nil, models.ErrReferralFeeNotFound
	}
	return f, nil
}

func (m *memRepo) GetActiveByRequestAndProfessional(_ context.Context, _ pgx.Tx, requestID, professionalID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.ServiceRequestID == requestID && f.ProfessionalID == professionalID && f.Status.Active() {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memRepo) GetByQuoteID(_ context.Context, _ pgx.Tx, quoteID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.QuoteID == quoteID {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memRepo) GetBySessionID(_ context.Context, _ pgx.Tx, sessionID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.StripeSessionID != nil && *f.StripeSessionID == sessionID {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memRepo) GetByPaymentIntent(_ context.Context, _ pgx.Tx, paymentIntentID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.StripePaymentIntent != nil && *f.StripePaymentIntent == paymentIntentID {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memRepo) AttachQuote(_ context.Context, _ pgx.Tx, id, quoteID string) error {
	f, ok := m.fees[id]
	if !ok {
		return models.ErrReferralFeeNotFound
	}
	f.QuoteID = quoteID
	return nil
}

func (m *memRepo) AttachSession(_ context.Context, _ pgx.Tx, id, sessionID string) error {
	f, ok := m.fees[id]
	if !ok {
		return models.ErrReferralFeeNotFound
	}
	f.StripeSessionID = &sessionID
	return nil
}

func (m *memRepo) MarkPaid(_ context.Context, _ pgx.Tx, id, sessionID, paymentIntentID string) (bool, error) {
	f, ok := m.fees[id]
	if !ok || f.Status != enum.ReferralFeeStatusOwed {
		return false, nil
	}
	now := time.Now()
	f.Status = enum.ReferralFeeStatusPaid
	f.StripeSessionID = &sessionID
	f.StripePaymentIntent = &paymentIntentID
	f.PaidAt = &now
	return true, nil
}

func (m *memRepo) MarkExpired(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	return m.moveFromOwed(id, enum.ReferralFeeStatusExpired)
}

func (m *memRepo) MarkDeclined(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	return m.moveFromOwed(id, enum.ReferralFeeStatusDeclined)
}

func (m *memRepo) MarkCanceled(_ context.Context, _ pgx.Tx, id string, reason enum.CancellationReason) (bool, error) {
	applied, err := m.moveFromOwed(id, enum.ReferralFeeStatusCanceled)
	if applied {
		m.fees[id].CancellationReason = &reason
	}
	return applied, err
}

func (m *memRepo) moveFromOwed(id string, to enum.ReferralFeeStatus) (bool, error) {
	f, ok := m.fees[id]
	if !ok || f.Status != enum.ReferralFeeStatusOwed {
		return false, nil
	}
	f.Status = to
	return true, nil
}

func (m *memRepo) RecordRefund(_ context.Context, _ pgx.Tx, id, refundID string, reason enum.CancellationReason) (bool, error) {
	f, ok := m.fees[id]
	if !ok || f.Status != enum.ReferralFeeStatusPaid || !f.Refundable {
		return false, nil
	}
	f.Status = enum.ReferralFeeStatusRefunded
	f.StripeRefundID = &refundID
	f.CancellationReason = &reason
	return true, nil
}

func (m *memRepo) RecordCancellationReason(_ context.Context, _ pgx.Tx, id string, reason enum.CancellationReason) error {
	f, ok := m.fees[id]
	if !ok {
		return models.ErrReferralFeeNotFound
	}
	f.CancellationReason = &reason
	return nil
}

var _ Repository = (*memRepo)(nil)

func newTestService(repo Repository) Service {
	return NewService(repo, driver.NewTransactionManager(stubPool{}, zap.NewNop()), zap.NewNop())
}

func testQuote(id string, price string) *models.Quote {
	return &models.Quote{
		ID:               id,
		ServiceRequestID: "r1",
		ProfessionalID:   "pro1",
		Price:            decimal.RequireFromString(price),
		Status:           enum.QuoteStatusPending,
	}
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an owed refundable fee from the quote price", func(t *testing.T) {
		repo := newMemRepo()
		svc := newTestService(repo)

		fee, err := svc.GetOrCreate(ctx, testQuote("q1", "2000"))
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		if fee.Status != enum.ReferralFeeStatusOwed {
			t.Fatalf("status = %s, want owed", fee.Status)
		}
		if !fee.Refundable {
			t.Fatal("new fee must be refundable")
		}
		// 3% of 2000.
		if !fee.Amount.Equal(decimal.RequireFromString("60")) {
			t.Fatalf("amount = %s, want 60", fee.Amount)
		}
	})

	t.Run("is idempotent per request and professional", func(t *testing.T) {
		repo := newMemRepo()
		svc := newTestService(repo)

		first, err := svc.GetOrCreate(ctx, testQuote("q1", "2000"))
		if err != nil {
			t.Fatalf("first GetOrCreate: %v", err)
		}
		second, err := svc.GetOrCreate(ctx, testQuote("q1", "2000"))
		if err != nil {
			t.Fatalf("second GetOrCreate: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("got two fee rows %s and %s for one pair", first.ID, second.ID)
		}
		if len(repo.fees) != 1 {
			t.Fatalf("fee rows = %d, want 1", len(repo.fees))
		}
	})

	t.Run("issues a fresh payable fee after the previous one went terminal", func(t *testing.T) {
		repo := newMemRepo()
		svc := newTestService(repo)

		first, err := svc.GetOrCreate(ctx, testQuote("q1", "2000"))
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		// The selected quote expired; the owed fee was retired with it.
		repo.fees[first.ID].Status = enum.ReferralFeeStatusExpired

		second, err := svc.GetOrCreate(ctx, testQuote("q2", "8000"))
		if err != nil {
			t.Fatalf("GetOrCreate after expiry: %v", err)
		}
		if second.ID == first.ID {
			t.Fatal("terminal fee row was revived instead of replaced")
		}
		if !second.Status.Payable() {
			t.Fatalf("new fee status = %s, want payable", second.Status)
		}
		if second.QuoteID != "q2" {
			t.Fatalf("new fee quote = %s, want q2", second.QuoteID)
		}
		// 2% of 8000, priced from the new quote.
		if !second.Amount.Equal(decimal.RequireFromString("160")) {
			t.Fatalf("amount = %s, want 160", second.Amount)
		}
		if repo.fees[first.ID].Status != enum.ReferralFeeStatusExpired {
			t.Fatal("terminal fee row must stay as an audit record")
		}
	})

	t.Run("repoints the existing row at a revised quote without repricing", func(t *testing.T) {
		repo := newMemRepo()
		svc := newTestService(repo)

		original, err := svc.GetOrCreate(ctx, testQuote("q1", "2000"))
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}

		// Same professional, same request, revised quote with a new price.
		revised, err := svc.GetOrCreate(ctx, testQuote("q2", "8000"))
		if err != nil {
			t.Fatalf("GetOrCreate revised: %v", err)
		}
		if revised.ID != original.ID {
			t.Fatalf("revision created a second fee row")
		}
		if revised.QuoteID != "q2" {
			t.Fatalf("fee quote = %s, want q2", revised.QuoteID)
		}
		if !revised.Amount.Equal(original.Amount) {
			t.Fatalf("amount changed to %s; the fee is immutable once created", revised.Amount)
		}
	})
}

func TestMarkPaidGuard(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo)

	fee, err := svc.GetOrCreate(ctx, testQuote("q1", "500"))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	applied, err := repo.MarkPaid(ctx, nil, fee.ID, "sess_1", "pi_1")
	if err != nil || !applied {
		t.Fatalf("first MarkPaid applied=%v err=%v", applied, err)
	}

	applied, err = repo.MarkPaid(ctx, nil, fee.ID, "sess_1", "pi_1")
	if err != nil {
		t.Fatalf("second MarkPaid: %v", err)
	}
	if applied {
		t.Fatal("a paid fee must not be credited twice")
	}
}

func TestRecordRefund(t *testing.T) {
	ctx := context.Background()

	setup := func(status enum.ReferralFeeStatus, refundable bool) (Service, *models.ReferralFee) {
		repo := newMemRepo()
		svc := newTestService(repo)
		fee, err := svc.GetOrCreate(ctx, testQuote("q1", "500"))
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		repo.fees[fee.ID].Status = status
		repo.fees[fee.ID].Refundable = refundable
		return svc, repo.fees[fee.ID]
	}

	t.Run("refunds a paid refundable fee", func(t *testing.T) {
		svc, fee := setup(enum.ReferralFeeStatusPaid, true)
		if err := svc.RecordRefund(ctx, fee.ID, "re_1", enum.CancellationReasonNoShow); err != nil {
			t.Fatalf("RecordRefund: %v", err)
		}
		if fee.Status != enum.ReferralFeeStatusRefunded {
			t.Fatalf("status = %s, want refunded", fee.Status)
		}
		if fee.StripeRefundID == nil || *fee.StripeRefundID != "re_1" {
			t.Fatalf("refund id = %v, want re_1", fee.StripeRefundID)
		}
	})

	t.Run("rejects a second refund", func(t *testing.T) {
		svc, fee := setup(enum.ReferralFeeStatusPaid, true)
		if err := svc.RecordRefund(ctx, fee.ID, "re_1", enum.CancellationReasonNoShow); err != nil {
			t.Fatalf("RecordRefund: %v", err)
		}
		err := svc.RecordRefund(ctx, fee.ID, "re_2", enum.CancellationReasonNoShow)
		if !errors.Is(err, models.ErrNotRefundable) {
			t.Fatalf("err = %v, want ErrNotRefundable", err)
		}
	})

	t.Run("rejects an unpaid fee", func(t *testing.T) {
		svc, fee := setup(enum.ReferralFeeStatusOwed, true)
		err := svc.RecordRefund(ctx, fee.ID, "re_1", enum.CancellationReasonNoShow)
		if !errors.Is(err, models.ErrNotRefundable) {
			t.Fatalf("err = %v, want ErrNotRefundable", err)
		}
	})

	t.Run("rejects a non-refundable fee", func(t *testing.T) {
		svc, fee := setup(enum.ReferralFeeStatusPaid, false)
		err := svc.RecordRefund(ctx, fee.ID, "re_1", enum.CancellationReasonNoShow)
		if !errors.Is(err, models.ErrNotRefundable) {
			t.Fatalf("err = %v, want ErrNotRefundable", err)
		}
	})
}
