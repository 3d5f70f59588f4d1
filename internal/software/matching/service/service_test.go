package service

import (
	"context"
	"testing"

	"logistics/internal/domain/geo"
	"logistics/internal/domain/order"
	"logistics/internal/general/contracts"
	"logistics/internal/general/logger"
	"logistics/internal/general/validation"
	"logistics/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	orders *orderRepo
	outbox *outboxRepo
	pub    *fakePublisher
	dir    *fakeDirectory
	users  *validation.MemoryUserCache
	svc    ports.MatchingService
}

func newFixture() *fixture {
	f := &fixture{
		orders: newOrderRepo(),
		outbox: newOutboxRepo(),
		pub:    &fakePublisher{},
		dir:    &fakeDirectory{outcome: validation.Found},
		users:  validation.NewMemoryUserCache(10),
	}
	f.svc = NewMatchingService(logger.Nop(), passthroughUoW{}, f.orders, f.outbox, f.pub, f.dir, f.users)
	return f
}

var (
	pickup  = geo.Point{Latitude: 43.238, Longitude: 76.889}
	dropoff = geo.Point{Latitude: 43.256, Longitude: 76.928}
)

func (f *fixture) create(t *testing.T) ports.OrderResult {
	t.Helper()
	res, err := f.svc.CreateOrder(context.Background(), ports.CreateOrderInput{CustomerID: "c1", Pickup: pickup, Dropoff: dropoff})
	require.NoError(t, err)
	return res
}

func TestMatchPublishesOrderMatched(t *testing.T) {
	f := newFixture()
	created := f.create(t)
	assert.Equal(t, "pending", created.Status)

	res, err := f.svc.MatchOrder(context.Background(), ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42", DriverID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "processing", res.Status)
	assert.EqualValues(t, 2, res.Version)

	require.Equal(t, []contracts.Kind{contracts.KindOrderCreated, contracts.KindOrderMatched}, f.pub.kinds())
	last := f.pub.sent[1]
	assert.Equal(t, "order.matched", last.routingKey)

	var p contracts.OrderMatched
	require.NoError(t, last.evt.DecodeData(&p))
	assert.Equal(t, contracts.ID("42"), p.VehicleID)
	assert.Equal(t, contracts.ID("d1"), p.DriverID)
	assert.EqualValues(t, 2, p.Sequence)
	assert.Equal(t, contracts.DedupKey(contracts.KindOrderMatched, created.OrderID, 2), last.evt.DedupKey)
	assert.Zero(t, f.outbox.pending())
}

func TestRepeatedMatchDoesNotRepublish(t *testing.T) {
	f := newFixture()
	created := f.create(t)
	in := ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42", DriverID: "d1"}

	_, err := f.svc.MatchOrder(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.MatchOrder(context.Background(), in)
	require.NoError(t, err)

	assert.Len(t, f.pub.sent, 2)
}

func TestMatchRejectsUnknownDriver(t *testing.T) {
	f := newFixture()
	created := f.create(t)
	f.dir.outcome = validation.NotFound

	_, err := f.svc.MatchOrder(context.Background(), ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42", DriverID: "ghost"})
	assert.ErrorIs(t, err, ErrDriverNotFound)

	got, err := f.svc.GetOrder(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
}

func TestMatchReportsPeerOutage(t *testing.T) {
	f := newFixture()
	created := f.create(t)
	f.dir.outcome = validation.Unavailable

	_, err := f.svc.MatchOrder(context.Background(), ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42", DriverID: "d1"})
	assert.ErrorIs(t, err, ErrPeerUnavailable)
	assert.ErrorIs(t, err, validation.ErrUnavailable)
}

func TestMatchRequiresBothIDs(t *testing.T) {
	f := newFixture()
	created := f.create(t)

	_, err := f.svc.MatchOrder(context.Background(), ports.MatchOrderInput{OrderID: created.OrderID, DriverID: "d1"})
	assert.ErrorIs(t, err, order.ErrVehicleRequired)
	_, err = f.svc.MatchOrder(context.Background(), ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42"})
	assert.ErrorIs(t, err, order.ErrDriverRequired)
}

func TestStatusChangeCarriesOldAndNewStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	created := f.create(t)
	_, err := f.svc.MatchOrder(ctx, ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42", DriverID: "d1"})
	require.NoError(t, err)

	_, err = f.svc.ChangeOrderStatus(ctx, created.OrderID, "IN_TRANSIT")
	require.NoError(t, err)
	res, err := f.svc.ChangeOrderStatus(ctx, created.OrderID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, "delivered", res.Status)

	last := f.pub.sent[len(f.pub.sent)-1]
	var p contracts.OrderStatusChanged
	require.NoError(t, last.evt.DecodeData(&p))
	assert.Equal(t, "in_transit", p.OldStatus)
	assert.Equal(t, "delivered", p.NewStatus)
	assert.Equal(t, contracts.ID("42"), p.VehicleID)
	assert.EqualValues(t, 4, p.Sequence)

	_, err = f.svc.ChangeOrderStatus(ctx, created.OrderID, "cancelled")
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = f.svc.ChangeOrderStatus(ctx, created.OrderID, "lost")
	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestBrokerOutageKeepsEventsInOutbox(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	created := f.create(t)

	f.pub.setDown(true)
	_, err := f.svc.MatchOrder(ctx, ports.MatchOrderInput{OrderID: created.OrderID, VehicleID: "42", DriverID: "d1"})
	require.NoError(t, err, "the order commit does not depend on the broker")
	_, err = f.svc.ChangeOrderStatus(ctx, created.OrderID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, 2, f.outbox.pending())

	f.pub.setDown(false)
	n, err := f.svc.RelayOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []contracts.Kind{
		contracts.KindOrderCreated, contracts.KindOrderMatched, contracts.KindOrderStatusChanged,
	}, f.pub.kinds())
}

func TestCandidatesSearchAroundPickup(t *testing.T) {
	f := newFixture()
	created := f.create(t)
	f.dir.nearby = []validation.DriverData{{ID: "d1"}, {ID: "d2"}}

	out, err := f.svc.Candidates(context.Background(), created.OrderID, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, pickup, f.dir.lastLoc)

	_, err = f.svc.Candidates(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestUserRegisteredWarmsCache(t *testing.T) {
	f := newFixture()
	evt, err := contracts.New(contracts.KindUserRegistered,
		contracts.UserRegistered{ID: "7", Email: "a@b.c", Role: "driver"}, contracts.ProducerAuth)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnUserRegistered(context.Background(), evt))
	u, ok := f.users.GetUser("7")
	require.True(t, ok)
	assert.Equal(t, "a@b.c", u.Email)
}
