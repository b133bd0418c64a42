package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/notify"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: "default", Type: task.Type()}, nil
}

func checkoutEvent(t *testing.T, topic string, payload events.CheckoutPayload) events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: uuid.New(), Topic: topic, SessionID: uuid.New(), Payload: raw, OccurredAt: time.Now()}
}

func TestEnqueuerQueuesAcceptedSales(t *testing.T) {
	client := &recordingEnqueuer{}
	enq := &notify.Enqueuer{Client: client}

	ev := checkoutEvent(t, events.TopicCheckoutSucceeded, events.CheckoutPayload{Kind: "sale", SaleID: "S-42"})
	require.NoError(t, enq.Notify(context.Background(), ev))
	require.Len(t, client.tasks, 1)
	require.Equal(t, notify.TypeSaleNotification, client.tasks[0].Type())

	var p notify.SalePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &p))
	require.Equal(t, "S-42", p.SaleID)
	require.Equal(t, ev.SessionID, p.SessionID)
}

func TestEnqueuerIgnoresOtherEvents(t *testing.T) {
	client := &recordingEnqueuer{}
	enq := &notify.Enqueuer{Client: client}
	ctx := context.Background()

	require.NoError(t, enq.Notify(ctx, checkoutEvent(t, events.TopicCheckoutFailed, events.CheckoutPayload{Kind: "sale", SaleID: "S-1"})))
	require.NoError(t, enq.Notify(ctx, checkoutEvent(t, events.TopicCheckoutSucceeded, events.CheckoutPayload{Kind: "sale"})))
	require.NoError(t, enq.Notify(ctx, checkoutEvent(t, events.TopicCheckoutSucceeded, events.CheckoutPayload{Kind: "purchase", SaleID: "P-1"})))
	require.Empty(t, client.tasks)
}

func TestEnqueuerTreatsDuplicateTaskAsDone(t *testing.T) {
	enq := &notify.Enqueuer{Client: &recordingEnqueuer{err: asynq.ErrTaskIDConflict}}
	ev := checkoutEvent(t, events.TopicCheckoutSucceeded, events.CheckoutPayload{Kind: "sale", SaleID: "S-1"})
	require.NoError(t, enq.Notify(context.Background(), ev))

	enq = &notify.Enqueuer{Client: &recordingEnqueuer{err: errors.New("redis down")}}
	require.Error(t, enq.Notify(context.Background(), ev))
}

func TestNewSaleTaskRequiresSaleID(t *testing.T) {
	_, err := notify.NewSaleTask(notify.SalePayload{}, notify.TaskOptions{})
	require.Error(t, err)
}

func newRemote(t *testing.T, handler http.HandlerFunc) *upstream.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := upstream.New(upstream.Config{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MaxAttempts: 1,
		Transport:   http.DefaultTransport,
	})
	require.NoError(t, err)
	return client
}

func saleTask(t *testing.T, saleID string) *asynq.Task {
	t.Helper()
	task, err := notify.NewSaleTask(notify.SalePayload{SaleID: saleID, SessionID: uuid.New()}, notify.TaskOptions{})
	require.NoError(t, err)
	return task
}

func TestHandlerCallsRemote(t *testing.T) {
	var path atomic.Value
	remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = io.WriteString(w, `{"message":"sent"}`)
	})
	h := &notify.Handler{Remote: remote}

	require.NoError(t, h.ProcessTask(context.Background(), saleTask(t, "S-9")))
	require.Equal(t, "/sale-notification/S-9", path.Load())
}

func TestHandlerSkipsRetryOnRejection(t *testing.T) {
	remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"sale not found"}`)
	})
	h := &notify.Handler{Remote: remote}

	err := h.ProcessTask(context.Background(), saleTask(t, "S-404"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlerRetriesWhenUnavailable(t *testing.T) {
	remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := &notify.Handler{Remote: remote}

	err := h.ProcessTask(context.Background(), saleTask(t, "S-1"))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, upstream.ErrUnavailable)
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	h := &notify.Handler{Remote: newRemote(t, func(http.ResponseWriter, *http.Request) {})}
	err := h.ProcessTask(context.Background(), asynq.NewTask(notify.TypeSaleNotification, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
