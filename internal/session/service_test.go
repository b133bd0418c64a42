package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-desk/internal/cart"
	"github.com/noah-isme/kasir-desk/internal/common"
	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/lock"
	"github.com/noah-isme/kasir-desk/internal/pricing"
	"github.com/noah-isme/kasir-desk/internal/session"
	"github.com/noah-isme/kasir-desk/internal/tender"
)

type staticCharges map[string]pricing.Charge

func (s staticCharges) Charge(_ context.Context, id string) (pricing.Charge, error) {
	c, ok := s[id]
	if !ok {
		return pricing.Charge{}, common.NotFound("charge not found", nil)
	}
	return c, nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newRedisService(t *testing.T) (*session.Service, *miniredis.Miniredis, *[]events.Event) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var emitted []events.Event
	var mu sync.Mutex
	bus := &events.Bus{}
	bus.Subscribe(events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		emitted = append(emitted, ev)
		return nil
	}))

	svc, err := session.NewService(session.ServiceConfig{
		Store:  session.RedisStore{R: client, TTL: time.Hour},
		Locker: lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond, Prefix: "pos:lock:"},
		Charges: staticCharges{
			"vat": {ID: "vat", Name: "VAT", RateType: pricing.RatePercentage, RateValue: d("10")},
			"svc": {ID: "svc", Name: "Service", RateType: pricing.RateFixed, RateValue: d("50")},
		},
		Bus: bus,
	})
	require.NoError(t, err)
	return svc, mr, &emitted
}

func TestSessionLifecycleInRedis(t *testing.T) {
	svc, mr, emitted := newRedisService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "till-1", session.KindSale, session.Context{StoreID: "s1"})
	require.NoError(t, err)
	require.True(t, mr.Exists("pos:session:"+sess.ID.String()))
	require.Equal(t, time.Hour, mr.TTL("pos:session:"+sess.ID.String()))

	_, _, err = svc.AddLine(ctx, sess.ID, cart.Line{ProductID: "p1", Name: "Rice", Price: d("250"), Quantity: d("4")})
	require.NoError(t, err)
	_, err = svc.SetDiscount(ctx, sess.ID, session.DiscountInput{Percent: ptr(d("10"))})
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, sess.ID, "vat")
	require.NoError(t, err)

	sess, err = svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	totals := sess.Totals()
	require.True(t, d("990").Equal(totals.Total), totals.Total.String())

	_, err = svc.AddPayment(ctx, sess.ID, tender.Payment{Method: tender.MethodCash, Amount: d("1000")})
	require.ErrorIs(t, err, tender.ErrOverpayment)

	_, err = svc.AddPayment(ctx, sess.ID, tender.Payment{Method: tender.MethodCash, Amount: d("500")})
	require.NoError(t, err)
	sess, err = svc.AddPayment(ctx, sess.ID, tender.Payment{Method: tender.MethodCard, Amount: d("490")})
	require.NoError(t, err)
	require.True(t, sess.Readiness().Ready)
	require.Equal(t, tender.PhasePaymentAdded, sess.Tender.Phase)

	_, err = svc.AddCharge(ctx, sess.ID, "missing")
	require.True(t, common.IsAppError(err))

	require.NoError(t, svc.Discard(ctx, sess.ID))
	_, err = svc.Get(ctx, sess.ID)
	require.ErrorIs(t, err, session.ErrNotFound)

	require.Len(t, *emitted, 2)
	require.Equal(t, events.TopicSessionOpened, (*emitted)[0].Topic)
	require.Equal(t, events.TopicSessionDiscarded, (*emitted)[1].Topic)
}

func TestEditsRefusedWhileSubmitting(t *testing.T) {
	svc, _, _ := newRedisService(t)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "", session.KindSale, session.Context{})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, sess.ID, func(s *session.Session) error {
		return s.Tender.BeginSubmit(time.Now())
	})
	require.NoError(t, err)

	_, _, err = svc.AddLine(ctx, sess.ID, cart.Line{Name: "Late", Price: d("1"), Quantity: d("1")})
	require.ErrorIs(t, err, tender.ErrAlreadySubmitting)
	require.ErrorIs(t, svc.Discard(ctx, sess.ID), tender.ErrAlreadySubmitting)

	_, err = svc.Transition(ctx, sess.ID, func(s *session.Session) error {
		s.Tender.Fail("rejected")
		return nil
	})
	require.NoError(t, err)

	sess, _, err = svc.AddLine(ctx, sess.ID, cart.Line{Name: "Retry", Price: d("1"), Quantity: d("1")})
	require.NoError(t, err)
	require.Equal(t, tender.PhaseIdle, sess.Tender.Phase)
	require.Empty(t, sess.Tender.LastError)
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	svc, _, _ := newRedisService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := svc.Open(ctx, "till-2", session.KindSale, session.Context{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.AddLine(ctx, sess.ID, cart.Line{ProductID: uuid.NewString(), Name: "Item", Price: d("1"), Quantity: d("1")})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err = svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, sess.Cart.Lines, 10)
}

func TestDiscountInputIsExclusive(t *testing.T) {
	svc, _, _ := newRedisService(t)
	ctx := context.Background()
	sess, err := svc.Open(ctx, "", session.KindSale, session.Context{})
	require.NoError(t, err)

	_, err = svc.SetDiscount(ctx, sess.ID, session.DiscountInput{Amount: ptr(d("1")), Percent: ptr(d("1"))})
	require.ErrorIs(t, err, cart.ErrInvalidDiscount)
	_, err = svc.SetDiscount(ctx, sess.ID, session.DiscountInput{})
	require.ErrorIs(t, err, cart.ErrInvalidDiscount)
	_, err = svc.SetDiscount(ctx, sess.ID, session.DiscountInput{Amount: ptr(d("-3"))})
	require.ErrorIs(t, err, cart.ErrInvalidDiscount)
}

func TestMemoryStoreExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	store := session.NewMemoryStore(time.Minute)
	store.Now = func() time.Time { return now }

	svc, err := session.NewService(session.ServiceConfig{Store: store, Locker: lock.NewLocal()})
	require.NoError(t, err)

	sess, err := svc.Open(context.Background(), "", session.KindPurchase, session.Context{})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, session.KindPurchase, got.Kind)

	got.Context.Note = "changed"
	again, err := svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Empty(t, again.Context.Note)

	now = now.Add(2 * time.Minute)
	_, err = svc.Get(context.Background(), sess.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestPurchaseReadinessNeedsReference(t *testing.T) {
	svc, err := session.NewService(session.ServiceConfig{Store: session.NewMemoryStore(0), Locker: lock.NewLocal()})
	require.NoError(t, err)
	ctx := context.Background()

	sess, err := svc.Open(ctx, "", session.KindPurchase, session.Context{})
	require.NoError(t, err)
	sess, _, err = svc.AddLine(ctx, sess.ID, cart.Line{ProductID: "p", Name: "Flour", Price: d("20"), Quantity: d("5"), Cost: d("20")})
	require.NoError(t, err)
	require.Contains(t, sess.Readiness().Reasons, tender.ReasonReferenceRequired)

	sess, err = svc.UpdateContext(ctx, sess.ID, session.ContextPatch{ReferenceNumber: ptr(" INV-77 ")})
	require.NoError(t, err)
	require.Equal(t, "INV-77", sess.Context.ReferenceNumber)
	require.True(t, sess.Readiness().Ready)
}

func ptr[T any](v T) *T {
	return &v
}
