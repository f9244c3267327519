package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
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

func newTestTransactionManager() *driver.TransactionManager {
	return driver.NewTransactionManager(stubPool{}, zap.NewNop())
}

type memQuotes struct {
	quotes map[string]*models.Quote
}

func newMemQuotes(quotes ...*models.Quote) *memQuotes {
	m := &memQuotes{quotes: make(map[string]*models.Quote)}
	for _, q := range quotes {
		m.quotes[q.ID] = q
	}
	return m
}

func (m *memQuotes) Create(_ context.Context, _ pgx.Tx, q *models.Quote) error {
	m.quotes[q.ID] = q
	return nil
}

func (m *memQuotes) GetByID(_ context.Context, _ pgx.Tx, id string) (*models.Quote, error) {
	q, ok := m.quotes[id]
	if !ok {
		return nil, models.ErrQuoteNotFound
	}
	return q, nil
}

func (m *memQuotes) ListByRequest(_ context.Context, requestID string) ([]*models.Quote, error) {
	var out []*models.Quote
	for _, q := range m.quotes {
		if q.ServiceRequestID == requestID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memQuotes) MarkPendingConfirmation(_ context.Context, _ pgx.Tx, id string, deadline time.Time) (bool, error) {
	q, ok := m.quotes[id]
	if !ok || q.Status != enum.QuoteStatusPending {
		return false, nil
	}
	q.Status = enum.QuoteStatusPendingConfirmation
	q.ConfirmationExpiresAt = &deadline
	return true, nil
}

func (m *memQuotes) MarkConfirmed(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	q, ok := m.quotes[id]
	if !ok || q.Status != enum.QuoteStatusPendingConfirmation {
		return false, nil
	}
	q.Status = enum.QuoteStatusConfirmed
	return true, nil
}

func (m *memQuotes) MarkDeclined(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	q, ok := m.quotes[id]
	if !ok {
		return false, nil
	}
	if q.Status != enum.QuoteStatusPending && q.Status != enum.QuoteStatusPendingConfirmation {
		return false, nil
	}
	q.Status = enum.QuoteStatusDeclined
	return true, nil
}

func (m *memQuotes) MarkExpired(_ context.Context, _ pgx.Tx, id string, now time.Time) (bool, error) {
	q, ok := m.quotes[id]
	if !ok || q.Status != enum.QuoteStatusPendingConfirmation {
		return false, nil
	}
	if q.ConfirmationExpiresAt == nil || q.ConfirmationExpiresAt.After(now) {
		return false, nil
	}
	q.Status = enum.QuoteStatusExpired
	return true, nil
}

func (m *memQuotes) RejectSiblings(_ context.Context, _ pgx.Tx, requestID, winnerID string) (int64, error) {
	var n int64
	for _, q := range m.quotes {
		if q.ServiceRequestID != requestID || q.ID == winnerID {
			continue
		}
		if q.Status == enum.QuoteStatusPending || q.Status == enum.QuoteStatusPendingConfirmation {
			q.Status = enum.QuoteStatusNotSelected
			n++
		}
	}
	return n, nil
}

func (m *memQuotes) ListExpired(_ context.Context, now time.Time, _ int32) ([]*models.Quote, error) {
	var out []*models.Quote
	for _, q := range m.quotes {
		if q.Status == enum.QuoteStatusPendingConfirmation &&
			q.ConfirmationExpiresAt != nil && !q.ConfirmationExpiresAt.After(now) {
			out = append(out, q)
		}
	}
	return out, nil
}

type memFees struct {
	fees map[string]*models.ReferralFee
}

func newMemFees(fees ...*models.ReferralFee) *memFees {
	m := &memFees{fees: make(map[string]*models.ReferralFee)}
	for _, f := range fees {
		m.fees[f.ID] = f
	}
	return m
}

func (m *memFees) Create(_ context.Context, _ pgx.Tx, f *models.ReferralFee) (bool, error) {
	for _, existing := range m.fees {
		if existing.ServiceRequestID == f.ServiceRequestID && existing.ProfessionalID == f.ProfessionalID && existing.Status.Active() {
			return false, nil
		}
	}
	m.fees[f.ID] = f
	return true, nil
}

func (m *memFees) GetByID(_ context.Context, _ pgx.Tx, id string) (*models.ReferralFee, error) {
	f, ok := m.fees[id]
	if !ok {
		return nil, models.ErrReferralFeeNotFound
	}
	return f, nil
}

func (m *memFees) GetActiveByRequestAndProfessional(_ context.Context, _ pgx.Tx, requestID, professionalID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.ServiceRequestID == requestID && f.ProfessionalID == professionalID && f.Status.Active() {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memFees) GetByQuoteID(_ context.Context, _ pgx.Tx, quoteID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.QuoteID == quoteID {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memFees) GetBySessionID(_ context.Context, _ pgx.Tx, sessionID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.StripeSessionID != nil && *f.StripeSessionID == sessionID {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memFees) GetByPaymentIntent(_ context.Context, _ pgx.Tx, paymentIntentID string) (*models.ReferralFee, error) {
	for _, f := range m.fees {
		if f.StripePaymentIntent != nil && *f.StripePaymentIntent == paymentIntentID {
			return f, nil
		}
	}
	return nil, models.ErrReferralFeeNotFound
}

func (m *memFees) AttachQuote(_ context.Context, _ pgx.Tx, id, quoteID string) error {
	m.fees[id].QuoteID = quoteID
	return nil
}

func (m *memFees) AttachSession(_ context.Context, _ pgx.Tx, id, sessionID string) error {
	m.fees[id].StripeSessionID = &sessionID
	return nil
}

func (m *memFees) MarkPaid(_ context.Context, _ pgx.Tx, id, sessionID, paymentIntentID string) (bool, error) {
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

func (m *memFees) MarkExpired(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	return m.moveFromOwed(id, enum.ReferralFeeStatusExpired)
}

func (m *memFees) MarkDeclined(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	return m.moveFromOwed(id, enum.ReferralFeeStatusDeclined)
}

func (m *memFees) MarkCanceled(_ context.Context, _ pgx.Tx, id string, reason enum.CancellationReason) (bool, error) {
	applied, err := m.moveFromOwed(id, enum.ReferralFeeStatusCanceled)
	if applied {
		m.fees[id].CancellationReason = &reason
	}
	return applied, err
}

func (m *memFees) moveFromOwed(id string, to enum.ReferralFeeStatus) (bool, error) {
	f, ok := m.fees[id]
	if !ok || f.Status != enum.ReferralFeeStatusOwed {
		return false, nil
	}
	f.Status = to
	return true, nil
}

func (m *memFees) RecordRefund(_ context.Context, _ pgx.Tx, id, refundID string, reason enum.CancellationReason) (bool, error) {
	f, ok := m.fees[id]
	if !ok || f.Status != enum.ReferralFeeStatusPaid || !f.Refundable {
		return false, nil
	}
	f.Status = enum.ReferralFeeStatusRefunded
	f.StripeRefundID = &refundID
	f.CancellationReason = &reason
	return true, nil
}

func (m *memFees) RecordCancellationReason(_ context.Context, _ pgx.Tx, id string, reason enum.CancellationReason) error {
	f, ok := m.fees[id]
	if !ok {
		return models.ErrReferralFeeNotFound
	}
	f.CancellationReason = &reason
	return nil
}

type memAppointments struct {
	appointments map[string]*models.Appointment
}

func newMemAppointments(appointments ...*models.Appointment) *memAppointments {
	m := &memAppointments{appointments: make(map[string]*models.Appointment)}
	for _, a := range appointments {
		m.appointments[a.ID] = a
	}
	return m
}

func (m *memAppointments) GetByID(_ context.Context, _ pgx.Tx, id string) (*models.Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, models.ErrAppointmentNotFound
	}
	return a, nil
}

func (m *memAppointments) GetByQuoteID(_ context.Context, _ pgx.Tx, quoteID string) (*models.Appointment, error) {
	for _, a := range m.appointments {
		if a.QuoteID == quoteID {
			return a, nil
		}
	}
	return nil, models.ErrAppointmentNotFound
}

func (m *memAppointments) Create(_ context.Context, _ pgx.Tx, a *models.Appointment) error {
	m.appointments[a.ID] = a
	return nil
}

func (m *memAppointments) SetStatus(_ context.Context, _ pgx.Tx, id string, status enum.AppointmentStatus) error {
	a, ok := m.appointments[id]
	if !ok {
		return models.ErrAppointmentNotFound
	}
	a.Status = status
	return nil
}

func (m *memAppointments) CancelGuarded(_ context.Context, _ pgx.Tx, id string) (bool, error) {
	a, ok := m.appointments[id]
	if !ok || !a.Status.Cancelable() {
		return false, nil
	}
	a.Status = enum.AppointmentStatusCanceled
	return true, nil
}

type memRequests struct {
	requests map[string]*models.ServiceRequest
}

func newMemRequests(requests ...*models.ServiceRequest) *memRequests {
	m := &memRequests{requests: make(map[string]*models.ServiceRequest)}
	for _, r := range requests {
		m.requests[r.ID] = r
	}
	return m
}

func (m *memRequests) GetByID(_ context.Context, id string) (*models.ServiceRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, models.ErrServiceRequestNotFound
	}
	return r, nil
}

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) Send(recipient, template string, _ map[string]string) {
	n.sent = append(n.sent, recipient+":"+template)
}

func strPtr(s string) *string { return &s }

func pendingQuote(id, requestID, professionalID string) *models.Quote {
	return &models.Quote{
		ID:               id,
		ServiceRequestID: requestID,
		ProfessionalID:   professionalID,
		Status:           enum.QuoteStatusPending,
	}
}

func TestSelect(t *testing.T) {
	ctx := context.Background()

	t.Run("starts the confirmation timer sized by urgency", func(t *testing.T) {
		quotes := newMemQuotes(pendingQuote("q1", "r1", "pro1"))
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1", Urgency: enum.UrgencyHigh})
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		result, err := svc.Select(ctx, "q1", "cust1")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if result.TimerMinutes != 30 {
			t.Fatalf("timer minutes = %d, want 30", result.TimerMinutes)
		}
		if quotes.quotes["q1"].Status != enum.QuoteStatusPendingConfirmation {
			t.Fatalf("status = %s, want pending_confirmation", quotes.quotes["q1"].Status)
		}
		if quotes.quotes["q1"].ConfirmationExpiresAt == nil {
			t.Fatal("confirmation deadline not set")
		}
	})

	t.Run("conflicts when the quote already left pending", func(t *testing.T) {
		q := pendingQuote("q1", "r1", "pro1")
		q.Status = enum.QuoteStatusDeclined
		quotes := newMemQuotes(q)
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1", Urgency: enum.UrgencyLow})
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		_, err := svc.Select(ctx, "q1", "cust1")
		if !errors.Is(err, models.ErrAlreadyDecided) {
			t.Fatalf("err = %v, want ErrAlreadyDecided", err)
		}
	})

	t.Run("notifies the professional", func(t *testing.T) {
		quotes := newMemQuotes(pendingQuote("q1", "r1", "pro1"))
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1", Urgency: enum.UrgencyLow})
		notifier := &recordingNotifier{}
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), notifier, zap.NewNop())

		if _, err := svc.Select(ctx, "q1", "cust1"); err != nil {
			t.Fatalf("Select: %v", err)
		}
		if len(notifier.sent) != 1 || notifier.sent[0] != "pro1:quote_selected" {
			t.Fatalf("notifications = %v", notifier.sent)
		}
	})
}

func TestDecline(t *testing.T) {
	ctx := context.Background()

	t.Run("retires the quote and its owed fee", func(t *testing.T) {
		quotes := newMemQuotes(pendingQuote("q1", "r1", "pro1"))
		fees := newMemFees(&models.ReferralFee{ID: "f1", ServiceRequestID: "r1", ProfessionalID: "pro1", QuoteID: "q1", Status: enum.ReferralFeeStatusOwed})
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, fees, newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		if err := svc.Decline(ctx, "q1", "cust1"); err != nil {
			t.Fatalf("Decline: %v", err)
		}
		if quotes.quotes["q1"].Status != enum.QuoteStatusDeclined {
			t.Fatalf("quote status = %s, want declined", quotes.quotes["q1"].Status)
		}
		if fees.fees["f1"].Status != enum.ReferralFeeStatusDeclined {
			t.Fatalf("fee status = %s, want declined", fees.fees["f1"].Status)
		}
	})

	t.Run("succeeds when no fee exists yet", func(t *testing.T) {
		quotes := newMemQuotes(pendingQuote("q1", "r1", "pro1"))
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		if err := svc.Decline(ctx, "q1", "cust1"); err != nil {
			t.Fatalf("Decline: %v", err)
		}
	})

	t.Run("conflicts on a terminal quote", func(t *testing.T) {
		q := pendingQuote("q1", "r1", "pro1")
		q.Status = enum.QuoteStatusExpired
		quotes := newMemQuotes(q)
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		err := svc.Decline(ctx, "q1", "cust1")
		if !errors.Is(err, models.ErrAlreadyDecided) {
			t.Fatalf("err = %v, want ErrAlreadyDecided", err)
		}
	})
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	selected := func() (*memQuotes, *memFees) {
		winner := pendingQuote("q1", "r1", "pro1")
		winner.Status = enum.QuoteStatusPendingConfirmation
		quotes := newMemQuotes(
			winner,
			pendingQuote("q2", "r1", "pro2"),
			pendingQuote("q3", "r1", "pro3"),
		)
		fees := newMemFees(&models.ReferralFee{
			ID:               "f1",
			ServiceRequestID: "r1",
			ProfessionalID:   "pro1",
			QuoteID:          "q1",
			Status:           enum.ReferralFeeStatusOwed,
			Refundable:       true,
			StripeSessionID:  strPtr("sess_1"),
		})
		return quotes, fees
	}

	t.Run("applies the full cascade", func(t *testing.T) {
		quotes, fees := selected()
		appointments := newMemAppointments()
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		notifier := &recordingNotifier{}
		svc := NewService(quotes, fees, appointments, requests, newTestTransactionManager(), notifier, zap.NewNop())

		result, err := svc.Confirm(ctx, "sess_1", "pi_1")
		if err != nil {
			t.Fatalf("Confirm: %v", err)
		}
		if result.QuoteID != "q1" || result.AlreadyConfirmed {
			t.Fatalf("result = %+v", result)
		}
		if result.SiblingsRejected != 2 {
			t.Fatalf("siblings rejected = %d, want 2", result.SiblingsRejected)
		}
		if fees.fees["f1"].Status != enum.ReferralFeeStatusPaid {
			t.Fatalf("fee status = %s, want paid", fees.fees["f1"].Status)
		}
		if quotes.quotes["q1"].Status != enum.QuoteStatusConfirmed {
			t.Fatalf("winner status = %s, want confirmed", quotes.quotes["q1"].Status)
		}
		for _, id := range []string{"q2", "q3"} {
			if quotes.quotes[id].Status != enum.QuoteStatusNotSelected {
				t.Fatalf("sibling %s status = %s, want not_selected", id, quotes.quotes[id].Status)
			}
		}
		appt, err := appointments.GetByQuoteID(ctx, nil, "q1")
		if err != nil {
			t.Fatalf("appointment not created: %v", err)
		}
		if appt.Status != enum.AppointmentStatusConfirmed {
			t.Fatalf("appointment status = %s, want confirmed", appt.Status)
		}
	})

	t.Run("replayed session is reported without re-crediting", func(t *testing.T) {
		quotes, fees := selected()
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, fees, newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		if _, err := svc.Confirm(ctx, "sess_1", "pi_1"); err != nil {
			t.Fatalf("first Confirm: %v", err)
		}
		result, err := svc.Confirm(ctx, "sess_1", "pi_1")
		if err != nil {
			t.Fatalf("second Confirm: %v", err)
		}
		if !result.AlreadyConfirmed || result.QuoteID != "q1" {
			t.Fatalf("result = %+v, want already-confirmed replay", result)
		}
	})

	t.Run("conflicts when the quote expired before payment landed", func(t *testing.T) {
		quotes, fees := selected()
		quotes.quotes["q1"].Status = enum.QuoteStatusExpired
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, fees, newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		_, err := svc.Confirm(ctx, "sess_1", "pi_1")
		if !errors.Is(err, models.ErrAlreadyDecided) {
			t.Fatalf("err = %v, want ErrAlreadyDecided", err)
		}
	})

	t.Run("confirms an existing scheduled appointment", func(t *testing.T) {
		quotes, fees := selected()
		appointments := newMemAppointments(&models.Appointment{ID: "a1", QuoteID: "q1", Status: enum.AppointmentStatusScheduled})
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, fees, appointments, requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		if _, err := svc.Confirm(ctx, "sess_1", "pi_1"); err != nil {
			t.Fatalf("Confirm: %v", err)
		}
		if appointments.appointments["a1"].Status != enum.AppointmentStatusConfirmed {
			t.Fatalf("appointment status = %s, want confirmed", appointments.appointments["a1"].Status)
		}
	})
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	overdue := func() *models.Quote {
		q := pendingQuote("q1", "r1", "pro1")
		q.Status = enum.QuoteStatusPendingConfirmation
		deadline := now.Add(-time.Minute)
		q.ConfirmationExpiresAt = &deadline
		return q
	}

	t.Run("expires an overdue quote and its fee", func(t *testing.T) {
		quotes := newMemQuotes(overdue())
		fees := newMemFees(&models.ReferralFee{ID: "f1", ServiceRequestID: "r1", ProfessionalID: "pro1", QuoteID: "q1", Status: enum.ReferralFeeStatusOwed})
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, fees, newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		expired, err := svc.Expire(ctx, "q1", now)
		if err != nil {
			t.Fatalf("Expire: %v", err)
		}
		if !expired {
			t.Fatal("expected the quote to expire")
		}
		if quotes.quotes["q1"].Status != enum.QuoteStatusExpired {
			t.Fatalf("quote status = %s, want expired", quotes.quotes["q1"].Status)
		}
		if fees.fees["f1"].Status != enum.ReferralFeeStatusExpired {
			t.Fatalf("fee status = %s, want expired", fees.fees["f1"].Status)
		}
	})

	t.Run("no-op when payment won the race", func(t *testing.T) {
		q := overdue()
		q.Status = enum.QuoteStatusConfirmed
		quotes := newMemQuotes(q)
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		expired, err := svc.Expire(ctx, "q1", now)
		if err != nil {
			t.Fatalf("Expire: %v", err)
		}
		if expired {
			t.Fatal("confirmed quote must not be expired")
		}
		if quotes.quotes["q1"].Status != enum.QuoteStatusConfirmed {
			t.Fatalf("quote status = %s, want confirmed", quotes.quotes["q1"].Status)
		}
	})

	t.Run("no-op before the deadline", func(t *testing.T) {
		q := overdue()
		deadline := now.Add(time.Hour)
		q.ConfirmationExpiresAt = &deadline
		quotes := newMemQuotes(q)
		requests := newMemRequests(&models.ServiceRequest{ID: "r1", CustomerID: "cust1"})
		svc := NewService(quotes, newMemFees(), newMemAppointments(), requests, newTestTransactionManager(), &recordingNotifier{}, zap.NewNop())

		expired, err := svc.Expire(ctx, "q1", now)
		if err != nil {
			t.Fatalf("Expire: %v", err)
		}
		if expired {
			t.Fatal("quote expired before its deadline")
		}
	})
}
