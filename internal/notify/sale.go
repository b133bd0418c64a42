// Package notify asks the remote backend to send sale notifications. The
// request runs as a background task after checkout so that a slow or failing
// notification never reaches the cashier.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-desk/internal/events"
	"github.com/noah-isme/kasir-desk/internal/obs"
	"github.com/noah-isme/kasir-desk/internal/upstream"
)

// TypeSaleNotification is the task type of a sale notification.
const TypeSaleNotification = "pos:sale_notification"

const (
	defaultQueue    = "default"
	defaultMaxRetry = 5
	defaultTimeout  = 30 * time.Second
)

// SalePayload is the task body.
type SalePayload struct {
	SaleID    string    `json:"sale_id"`
	SessionID uuid.UUID `json:"session_id"`
}

// TaskOptions tune enqueued tasks.
type TaskOptions struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

func (o TaskOptions) normalize() TaskOptions {
	if strings.TrimSpace(o.Queue) == "" {
		o.Queue = defaultQueue
	}
	if o.MaxRetry <= 0 {
		o.MaxRetry = defaultMaxRetry
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// NewSaleTask builds a notification task. The task id is derived from the sale
// id so a sale is notified at most once even if the event is replayed.
func NewSaleTask(p SalePayload, opts TaskOptions) (*asynq.Task, error) {
	if strings.TrimSpace(p.SaleID) == "" {
		return nil, errors.New("notify: sale id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	opts = opts.normalize()
	return asynq.NewTask(TypeSaleNotification, body,
		asynq.TaskID("sale:"+p.SaleID),
		asynq.Queue(opts.Queue),
		asynq.MaxRetry(opts.MaxRetry),
		asynq.Timeout(opts.Timeout),
	), nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns accepted sales into notification tasks. It subscribes to the
// event bus.
type Enqueuer struct {
	Client  TaskEnqueuer
	Options TaskOptions
	Logger  *zerolog.Logger
}

// Notify enqueues a task for checkout.succeeded events of sales carrying a
// sale id. Other events are ignored.
func (e *Enqueuer) Notify(ctx context.Context, ev events.Event) error {
	if e == nil || e.Client == nil || ev.Topic != events.TopicCheckoutSucceeded {
		return nil
	}
	var payload events.CheckoutPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("notify: decode checkout payload: %w", err)
	}
	if payload.SaleID == "" || payload.Kind == "purchase" {
		return nil
	}
	task, err := NewSaleTask(SalePayload{SaleID: payload.SaleID, SessionID: ev.SessionID}, e.Options)
	if err != nil {
		return err
	}
	info, err := e.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: enqueue sale %s: %w", payload.SaleID, err)
	}
	if e.Logger != nil {
		e.Logger.Debug().Str("sale_id", payload.SaleID).Str("task_id", info.ID).Str("queue", info.Queue).Msg("sale notification enqueued")
	}
	return nil
}

// SaleNotifier calls the remote notification endpoint.
type SaleNotifier interface {
	NotifySale(ctx context.Context, saleID string) error
}

// Handler processes sale notification tasks on the worker.
type Handler struct {
	Remote SaleNotifier
	Logger *zerolog.Logger
}

// ProcessTask implements asynq.Handler. Rejections by the backend are not
// retried; transport failures are.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SalePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.ObserveSaleNotification("invalid")
		return fmt.Errorf("notify: decode task: %v: %w", err, asynq.SkipRetry)
	}
	logger := h.logger().With().Str("sale_id", p.SaleID).Str("session_id", p.SessionID.String()).Logger()

	err := h.Remote.NotifySale(ctx, p.SaleID)
	if err == nil {
		obs.ObserveSaleNotification("sent")
		logger.Info().Msg("sale notification sent")
		return nil
	}

	var remote *upstream.RemoteError
	if errors.As(err, &remote) && remote.StatusCode < http.StatusInternalServerError {
		obs.ObserveSaleNotification("rejected")
		logger.Warn().Err(err).Int("status", remote.StatusCode).Msg("sale notification rejected")
		return fmt.Errorf("notify: %v: %w", err, asynq.SkipRetry)
	}
	obs.ObserveSaleNotification("failed")
	logger.Warn().Err(err).Msg("sale notification failed")
	return err
}

func (h *Handler) logger() *zerolog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// NewServeMux routes worker tasks to their handlers.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSaleNotification, h)
	return mux
}
