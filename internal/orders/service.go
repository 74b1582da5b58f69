package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-orders-inventory/internal/auth"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/ariefcatur/go-orders-inventory/internal/outbox"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var tracer = otel.Tracer("github.com/ariefcatur/go-orders-inventory/internal/orders")

type ServiceDeps struct {
	Store       Store
	Clock       func() time.Time
	IDGenerator func() string
	// EventIDGenerator names outbox events; ULIDs keep them roughly time ordered.
	EventIDGenerator func() string
	Logger      *zap.Logger
	ServiceName string
}

// Service orchestrates order creation and lifecycle transitions on top of Store.
type Service struct {
	store    Store
	clock    func() time.Time
	newID    func() string
	eventID  func() string
	logger   *zap.Logger
	producer string
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("order service: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}
	eventID := deps.EventIDGenerator
	if eventID == nil {
		eventID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	producer := deps.ServiceName
	if producer == "" {
		producer = "order-api"
	}
	return &Service{
		store:    deps.Store,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		eventID:  eventID,
		logger:   logger,
		producer: producer,
	}, nil
}

func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, lines []LineInput) (OrderSummary, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("user.id", p.UserID),
		attribute.Int("order.lines", len(lines)),
	))
	defer span.End()

	if !p.Authenticated() {
		return OrderSummary{}, ErrUnauthorized
	}
	if err := validateLines(lines); err != nil {
		return OrderSummary{}, err
	}

	exists, err := s.store.UserExists(ctx, p.UserID)
	if err != nil {
		return OrderSummary{}, s.fail(ctx, span, "create order", err, zap.String("user_id", p.UserID))
	}
	if !exists {
		return OrderSummary{}, newError(KindUnauthorized, "user not found", nil)
	}

	now := s.clock()
	order := Order{
		ID:        s.newID(),
		UserID:    p.UserID,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		order.Lines = make([]OrderLine, len(lines))
		ledger := tx.Ledger()
		// urutan reserve by product id (hindari deadlock antar transaksi);
		// urutan line yang disimpan dan error yang dilaporkan tetap sesuai request
		failed := -1
		var lineErr error
		for _, i := range reserveOrder(lines) {
			in := lines[i]
			prod, err := ledger.Reserve(ctx, in.ProductID, in.Qty)
			if err != nil {
				mapped := mapLedgerError(err, in.ProductID)
				var oe *Error
				if !errors.As(mapped, &oe) {
					return mapped
				}
				// a rejected line leaves the tx usable; keep going so the
				// earliest failing line in request order is the one reported
				if failed < 0 || i < failed {
					failed, lineErr = i, mapped
				}
				continue
			}
			order.Lines[i] = OrderLine{
				ID:             s.newID(),
				OrderID:        order.ID,
				ProductID:      in.ProductID,
				ProductName:    prod.Name,
				UnitPriceCents: prod.PriceCents,
				Qty:            in.Qty,
			}
		}
		if lineErr != nil {
			return lineErr
		}

		total, err := sumLines(order.Lines)
		if err != nil {
			return err
		}
		order.TotalCents = total

		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items := make([]ItemPrice, 0, len(order.Lines))
		for _, l := range order.Lines {
			items = append(items, ItemPrice{ProductID: l.ProductID, Qty: l.Qty, PriceCents: l.UnitPriceCents})
		}
		msg, err := s.newEvent(ctx, order.ID, EventOrderCreated, OrderCreatedPayload{
			OrderID:    order.ID,
			UserID:     order.UserID,
			Items:      items,
			TotalCents: order.TotalCents,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, msg)
	})
	if err != nil {
		return OrderSummary{}, s.fail(ctx, span, "create order", err, zap.String("user_id", p.UserID))
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.log(ctx).Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("total_cents", order.TotalCents),
		zap.Int("lines", len(order.Lines)),
	)
	return order.Summary(), nil
}

func (s *Service) PayOrder(ctx context.Context, p auth.Principal, orderID string) (OrderSummary, error) {
	return s.transition(ctx, p, orderID, ActionPay)
}

func (s *Service) CancelOrder(ctx context.Context, p auth.Principal, orderID string) (OrderSummary, error) {
	return s.transition(ctx, p, orderID, ActionCancel)
}

func (s *Service) CompleteOrder(ctx context.Context, p auth.Principal, orderID string) (OrderSummary, error) {
	return s.transition(ctx, p, orderID, ActionComplete)
}

func (s *Service) transition(ctx context.Context, p auth.Principal, orderID string, action Action) (OrderSummary, error) {
	ctx, span := tracer.Start(ctx, "orders.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.action", string(action)),
	))
	defer span.End()

	if !p.Authenticated() {
		return OrderSummary{}, ErrUnauthorized
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderSummary{}, newError(KindValidation, "order id is required", nil)
	}

	var out Order
	var from Status
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if errors.Is(err, errNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if !CanAccess(o, p) {
			return ErrOrderAccessDenied
		}
		next, ok := Next(o.Status, action)
		if !ok {
			return newError(KindInvalidOrderStatus, fmt.Sprintf("cannot %s an order in status %s", action, o.Status), nil)
		}

		var released []ItemPrice
		if action == ActionCancel {
			ledger := tx.Ledger()
			for _, i := range releaseOrder(o.Lines) {
				l := o.Lines[i]
				if err := ledger.Release(ctx, l.ProductID, l.Qty); err != nil {
					return fmt.Errorf("release line %s: %w", l.ID, err)
				}
				released = append(released, ItemPrice{ProductID: l.ProductID, Qty: l.Qty, PriceCents: l.UnitPriceCents})
			}
		}

		now := s.clock()
		if err := tx.UpdateStatus(ctx, o.ID, o.Status, next, now); err != nil {
			if errors.Is(err, errStatusConflict) {
				return ErrInvalidOrderStatus
			}
			return fmt.Errorf("update status: %w", err)
		}

		msg, err := s.newEvent(ctx, o.ID, eventByAction[action], OrderStatusChangedPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			From:       o.Status,
			To:         next,
			ActorID:    p.UserID,
			Released:   released,
			OccurredAt: now,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, msg); err != nil {
			return fmt.Errorf("append event: %w", err)
		}

		from = o.Status
		o.Status = next
		o.UpdatedAt = now
		out = o
		return nil
	})
	if err != nil {
		return OrderSummary{}, s.fail(ctx, span, "order "+string(action), err,
			zap.String("order_id", orderID),
			zap.String("actor_id", p.UserID),
		)
	}

	s.log(ctx).Info("order status changed",
		zap.String("order_id", out.ID),
		zap.String("from", string(from)),
		zap.String("to", string(out.Status)),
		zap.String("actor_id", p.UserID),
	)
	return out.Summary(), nil
}

func (s *Service) GetOrder(ctx context.Context, p auth.Principal, orderID string) (OrderDetail, error) {
	ctx, span := tracer.Start(ctx, "orders.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if !p.Authenticated() {
		return OrderDetail{}, ErrUnauthorized
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderDetail{}, newError(KindValidation, "order id is required", nil)
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, errNotFound) {
		return OrderDetail{}, ErrOrderNotFound
	}
	if err != nil {
		return OrderDetail{}, s.fail(ctx, span, "get order", err, zap.String("order_id", orderID))
	}
	if !CanAccess(o, p) {
		return OrderDetail{}, ErrOrderAccessDenied
	}
	return o.Detail(), nil
}

func (s *Service) ListMyOrders(ctx context.Context, p auth.Principal, q ListQuery) (Page[OrderSummary], error) {
	ctx, span := tracer.Start(ctx, "orders.ListMyOrders")
	defer span.End()

	if !p.Authenticated() {
		return Page[OrderSummary]{}, ErrUnauthorized
	}
	if q.Size == 0 {
		q.Size = DefaultPageSize
	}
	if q.Page < 0 {
		return Page[OrderSummary]{}, newError(KindValidation, "page must be >= 0", nil)
	}
	if q.Size < 1 || q.Size > MaxPageSize {
		return Page[OrderSummary]{}, newError(KindValidation, fmt.Sprintf("size must be between 1 and %d", MaxPageSize), nil)
	}
	if q.Page > math.MaxInt32/q.Size {
		return Page[OrderSummary]{}, newError(KindValidation, "page out of range", nil)
	}

	// status tidak dikenal = tanpa filter
	status, _ := ParseStatusFilter(q.Status)

	list, total, err := s.store.ListOrdersByUser(ctx, ListFilter{
		UserID: p.UserID,
		Status: status,
		Limit:  q.Size,
		Offset: q.Page * q.Size,
	})
	if err != nil {
		return Page[OrderSummary]{}, s.fail(ctx, span, "list orders", err, zap.String("user_id", p.UserID))
	}

	items := make([]OrderSummary, 0, len(list))
	for _, o := range list {
		items = append(items, o.Summary())
	}
	return Page[OrderSummary]{
		Items:         items,
		Page:          q.Page,
		Size:          q.Size,
		TotalElements: total,
		TotalPages:    (total + q.Size - 1) / q.Size,
	}, nil
}

func (s *Service) newEvent(ctx context.Context, orderID, eventType string, payload any) (outbox.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return outbox.Message{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:       s.eventID(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock(),
		Producer:      s.producer,
		CorrelationID: orderID,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return outbox.Message{}, fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	return outbox.Message{
		ID:      env.EventID,
		Topic:   topicByEvent[eventType],
		Key:     PartitionKey(orderID),
		Payload: value,
		Headers: map[string]string{
			"x-event-type":    eventType,
			"x-event-version": "1",
		},
		CreatedAt: env.OccurredAt,
	}, nil
}

// fail passes business errors through and turns everything else into an
// opaque internal error after logging it.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error, fields ...zap.Field) error {
	if KindOf(err) != KindInternal {
		span.SetAttributes(attribute.String("error.kind", string(KindOf(err))))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.log(ctx).Error(op+" failed", append(fields, zap.Error(err))...)
	return newError(KindInternal, "", err)
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return observability.FromContext(ctx, s.logger)
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return newError(KindValidation, "order must contain at least one item", nil)
	}
	for i, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return newError(KindValidation, fmt.Sprintf("items[%d].product_id is required", i), nil)
		}
		if l.Qty < 1 {
			return newError(KindValidation, fmt.Sprintf("items[%d].quantity must be at least 1", i), nil)
		}
	}
	return nil
}

func sumLines(lines []OrderLine) (int64, error) {
	var total int64
	for _, l := range lines {
		if l.UnitPriceCents > 0 && int64(l.Qty) > math.MaxInt64/l.UnitPriceCents {
			return 0, newError(KindValidation, "order total out of range", nil)
		}
		sub := l.SubtotalCents()
		if total > math.MaxInt64-sub {
			return 0, newError(KindValidation, "order total out of range", nil)
		}
		total += sub
	}
	return total, nil
}

func reserveOrder(lines []LineInput) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return lines[idx[a]].ProductID < lines[idx[b]].ProductID })
	return idx
}

func releaseOrder(lines []OrderLine) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return lines[idx[a]].ProductID < lines[idx[b]].ProductID })
	return idx
}
