package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
)

// memOrders mirrors the compare-and-set behaviour of the gorm repository.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*models.PaymentOrder
	nextID uint
	now    func() time.Time
	// beforeUpdate runs inside UpdateStatus after the status check and before
	// the write, to interleave a competing writer.
	beforeUpdate func(orderID string)
}

func newMemOrders(now func() time.Time) *memOrders {
	return &memOrders{orders: map[string]*models.PaymentOrder{}, now: now}
}

func clone(o *models.PaymentOrder) *models.PaymentOrder {
	c := *o
	return &c
}

func strPtr(s string) *string { return &s }

func (m *memOrders) Create(_ context.Context, order *models.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return fmt.Errorf("%w: %s", repository.ErrOrderExists, order.OrderID)
	}
	m.nextID++
	order.ID = m.nextID
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = m.now()
	}
	order.UpdatedAt = order.CreatedAt
	m.orders[order.OrderID] = clone(order)
	return nil
}

func (m *memOrders) put(order *models.PaymentOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == 0 {
		m.nextID++
		order.ID = m.nextID
	}
	m.orders[order.OrderID] = clone(order)
}

func (m *memOrders) GetByOrderID(_ context.Context, orderID string) (*models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return clone(o), nil
}

func (m *memOrders) GetByProviderOrderID(_ context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ProviderRef() == providerOrderID {
			return clone(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *memOrders) UpdateStatus(_ context.Context, orderID string, next models.OrderStatus, f repository.StatusFields) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return repository.ErrOrderNotFound
	}
	expected := o.Status
	if !expected.CanTransitionTo(next) {
		m.mu.Unlock()
		return models.ErrInvalidTransition
	}
	hook := m.beforeUpdate
	m.mu.Unlock()
	if hook != nil {
		hook(orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o = m.orders[orderID]
	if o.Status != expected {
		return models.ErrInvalidTransition
	}
	if f.ProviderOrderID != "" {
		if ref := o.ProviderRef(); ref != "" && ref != f.ProviderOrderID {
			return repository.ErrProviderOrderIDImmutable
		}
		o.ProviderOrderID = strPtr(f.ProviderOrderID)
	}
	if f.TransactionID != "" {
		o.TransactionID = strPtr(f.TransactionID)
	}
	if f.PaymentURL != "" {
		o.PaymentURL = f.PaymentURL
	}
	if f.FailureReason != "" {
		o.FailureReason = f.FailureReason
	}
	o.Status = next
	o.UpdatedAt = m.now()
	if next.IsTerminal() {
		at := m.now()
		o.ResolvedAt = &at
	}
	return nil
}

func (m *memOrders) AttachProviderOrderID(_ context.Context, orderID, providerOrderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.ProviderRef() != "" {
		return false, nil
	}
	o.ProviderOrderID = strPtr(providerOrderID)
	return true, nil
}

func (m *memOrders) MarkActivated(_ context.Context, orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.NeedsActivation() {
		o.ActivatedAt = &at
		o.ActivationError = ""
	}
	return nil
}

func (m *memOrders) MarkActivationFailed(_ context.Context, orderID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.NeedsActivation() {
		o.ActivationError = reason
	}
	return nil
}

func (m *memOrders) sorted(keep func(*models.PaymentOrder) bool) []models.PaymentOrder {
	var out []models.PaymentOrder
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memOrders) ListByMember(_ context.Context, memberID string, offset, limit int) ([]models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(o *models.PaymentOrder) bool { return o.MemberID == memberID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(o *models.PaymentOrder) bool {
		return o.Status == models.OrderStatusPending && o.CreatedAt.Before(createdBefore)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) ListPendingActivation(_ context.Context, limit int) ([]models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(o *models.PaymentOrder) bool { return o.NeedsActivation() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memMembers struct {
	mu      sync.Mutex
	members map[string]*models.Member
}

func newMemMembers(ids ...string) *memMembers {
	m := &memMembers{members: map[string]*models.Member{}}
	for _, id := range ids {
		m.members[id] = &models.Member{ID: id, FullName: "Member " + id, Status: models.MEMBER_STATUS_PENDING}
	}
	return m
}

func (m *memMembers) GetByID(_ context.Context, id string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, repository.ErrMemberNotFound
	}
	c := *mem
	return &c, nil
}

func (m *memMembers) UpdateSubscription(_ context.Context, id string, u models.SubscriptionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return repository.ErrMemberNotFound
	}
	start, end := u.StartDate, u.EndDate
	mem.SubscriptionType = u.Type
	mem.SubscriptionStartDate = &start
	mem.SubscriptionEndDate = &end
	mem.SubscriptionAmount = u.Amount
	mem.SubscriptionStatus = models.SUBSCRIPTION_STATUS_ACTIVE
	mem.Status = models.MEMBER_STATUS_ACTIVE
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events map[string]*models.PaymentWebhookEvent
	nextID uint
	now    func() time.Time
}

func newMemEvents(now func() time.Time) *memEvents {
	return &memEvents{events: map[string]*models.PaymentWebhookEvent{}, now: now}
}

func (m *memEvents) CreateIfNotExists(_ context.Context, e *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[e.EventKey]; ok {
		c := *existing
		return false, &c, nil
	}
	m.nextID++
	e.ID = m.nextID
	c := *e
	m.events[e.EventKey] = &c
	return true, e, nil
}

func (m *memEvents) MarkProcessed(_ context.Context, id uint, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			at := m.now()
			e.ProcessedAt = &at
			e.ProcessingError = processingError
			return nil
		}
	}
	return errors.New("event not found")
}

type fakeGateway struct {
	mu           sync.Mutex
	createCalls  int
	statusCalls  int
	createResult *gateway.CreateOrderResult
	createErr    error
	statusResult *gateway.StatusResult
	statusErr    error
	// onCreate runs before CreateOrder answers, like a webhook that races
	// the provider's response.
	onCreate func(req gateway.CreateOrderRequest)
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (*gateway.CreateOrderResult, error) {
	if g.onCreate != nil {
		g.onCreate(req)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.createResult != nil {
		return g.createResult, nil
	}
	return &gateway.CreateOrderResult{ProviderOrderID: "zp_" + req.OrderID}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, _ string) (*gateway.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.statusResult != nil {
		return g.statusResult, nil
	}
	return &gateway.StatusResult{Status: models.OrderStatusPending, Recognized: true}, nil
}

type activationCall struct {
	MemberID      string
	Frequency     models.BillingFrequency
	Amount        int64
	EffectiveDate time.Time
}

// recordingActivator counts calls and can fail the first failures calls.
type recordingActivator struct {
	mu       sync.Mutex
	calls    []activationCall
	failures int
}

func (a *recordingActivator) Activate(_ context.Context, memberID string, f models.BillingFrequency, amount int64, effective time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, activationCall{memberID, f, amount, effective})
	if a.failures > 0 {
		a.failures--
		return errors.New("member store unavailable")
	}
	return nil
}

func (a *recordingActivator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type recordingQueue struct {
	mu     sync.Mutex
	queued []string
	err    error
}

func (q *recordingQueue) EnqueueActivation(_ context.Context, orderID, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, orderID)
	return nil
}

type denyThrottle struct{}

func (denyThrottle) Allow(context.Context, string) bool { return false }

type fixture struct {
	svc       *Service
	orders    *memOrders
	members   *memMembers
	events    *memEvents
	gw        *fakeGateway
	activator *recordingActivator
	queue     *recordingQueue
	clock     *time.Time
}

var fixtureNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newFixture(cfg Config) *fixture {
	now := fixtureNow
	f := &fixture{clock: &now}
	clock := func() time.Time { return *f.clock }
	f.orders = newMemOrders(clock)
	f.members = newMemMembers("m1", "m2")
	f.events = newMemEvents(clock)
	f.gw = &fakeGateway{}
	f.activator = &recordingActivator{}
	f.queue = &recordingQueue{}
	f.svc = NewService(Dependencies{
		Orders:    f.orders,
		Members:   f.members,
		Events:    f.events,
		Gateway:   f.gw,
		Activator: f.activator,
		Queue:     f.queue,
	}, cfg)
	f.svc.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

// pendingOrder stores a pending order that already has a provider id.
func (f *fixture) pendingOrder(orderID, providerID string) *models.PaymentOrder {
	o := &models.PaymentOrder{
		OrderID:          orderID,
		MemberID:         "m1",
		Amount:           50000,
		Currency:         "TZS",
		PaymentMethod:    models.PaymentMethodMpesa,
		BillingFrequency: models.BillingMonthly,
		Status:           models.OrderStatusPending,
		CreatedAt:        *f.clock,
	}
	if providerID != "" {
		o.ProviderOrderID = strPtr(providerID)
	}
	f.orders.put(o)
	return o
}

func validInput() CreateOrderInput {
	return CreateOrderInput{
		OrderID:          "order_1",
		MemberID:         "m1",
		Amount:           50000,
		BuyerName:        "Asha Mwinyi",
		BuyerEmail:       "asha@example.com",
		BuyerPhone:       "0712345678",
		PaymentMethod:    models.PaymentMethodMpesa,
		BillingFrequency: models.BillingMonthly,
	}
}
