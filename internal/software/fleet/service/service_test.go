package service

import (
	"context"
	"testing"
	"time"

	"logistics/internal/domain/assignment"
	"logistics/internal/domain/driver"
	"logistics/internal/domain/vehicle"
	"logistics/internal/general/contracts"
	"logistics/internal/general/dedup"
	"logistics/internal/general/dispatch"
	"logistics/internal/general/logger"
	"logistics/internal/general/rabbitmq"
	"logistics/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memStore
	svc   ports.FleetService
}

func newFixture() *fixture {
	s := newMemStore()
	s.vehicles["42"] = vehicle.Vehicle{ID: "42", Status: vehicle.StatusAvailable}
	s.vehicles["43"] = vehicle.Vehicle{ID: "43", Status: vehicle.StatusAvailable}
	s.drivers["d1"] = driver.Driver{ID: "d1", UserID: "u1", Status: driver.StatusAvailable}
	s.drivers["d2"] = driver.Driver{ID: "d2", UserID: "u2", Status: driver.StatusAvailable}

	svc := NewFleetService(logger.Nop(), passthroughUoW{},
		driverRepo{s}, vehicleRepo{s}, assignmentRepo{s}, settlementRepo{s})
	return &fixture{store: s, svc: svc}
}

func mustEvent(t *testing.T, kind contracts.Kind, payload any) contracts.Event {
	t.Helper()
	evt, err := contracts.New(kind, payload, contracts.ProducerMatching)
	require.NoError(t, err)
	return evt
}

func matched(t *testing.T, orderID, vehicleID, driverID string) contracts.Event {
	return mustEvent(t, contracts.KindOrderMatched, contracts.OrderMatched{
		OrderID: contracts.ID(orderID), VehicleID: contracts.ID(vehicleID), DriverID: contracts.ID(driverID), Sequence: 2,
	})
}

func statusChanged(t *testing.T, orderID, newStatus, vehicleID, driverID string) contracts.Event {
	return mustEvent(t, contracts.KindOrderStatusChanged, contracts.OrderStatusChanged{
		OrderID: contracts.ID(orderID), OldStatus: "in_transit", NewStatus: newStatus,
		VehicleID: contracts.ID(vehicleID), DriverID: contracts.ID(driverID), Sequence: 4,
	})
}

func TestOrderLifecycleReservesAndReleasesVehicle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "d1")))
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)
	assert.Equal(t, "o1", f.store.vehicles["42"].OrderID)
	assert.Equal(t, driver.StatusBusy, f.store.drivers["d1"].Status)

	// a second match for the same order changes nothing
	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "d1")))
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)

	require.NoError(t, f.svc.OnOrderStatusChanged(ctx, statusChanged(t, "o1", "delivered", "42", "d1")))
	assert.Equal(t, vehicle.StatusAvailable, f.store.vehicles["42"].Status)
	assert.Empty(t, f.store.vehicles["42"].OrderID)
	assert.Equal(t, driver.StatusAvailable, f.store.drivers["d1"].Status)
}

func TestNumericVehicleIDIsAccepted(t *testing.T) {
	f := newFixture()
	evt := contracts.Event{
		ID:   "e1",
		Kind: contracts.KindOrderMatched,
		Data: []byte(`{"orderId":"o1","vehicleId":42}`),
	}

	require.NoError(t, f.svc.OnOrderMatched(context.Background(), evt))
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)
}

func TestCancelledBeforeMatchedLeavesVehicleAvailable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnOrderStatusChanged(ctx, statusChanged(t, "o2", "cancelled", "", "")))
	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o2", "42", "d1")))

	assert.Equal(t, vehicle.StatusAvailable, f.store.vehicles["42"].Status)
	assert.Equal(t, driver.StatusAvailable, f.store.drivers["d1"].Status)
}

func TestReleaseIgnoresOtherOrders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "d1")))
	require.NoError(t, f.svc.OnOrderStatusChanged(ctx, statusChanged(t, "o-other", "cancelled", "42", "d1")))

	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)
	assert.Equal(t, driver.StatusBusy, f.store.drivers["d1"].Status)
}

func TestConflictingMatchIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "d1")))
	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o9", "42", "d2")))

	assert.Equal(t, "o1", f.store.vehicles["42"].OrderID)
	assert.Equal(t, driver.StatusBusy, f.store.drivers["d2"].Status, "driver is handled independently of the vehicle")
}

func TestMaintenanceVehicleIsNotReserved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SetVehicleMaintenance(ctx, "42")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "")))
	assert.Equal(t, vehicle.StatusMaintenance, f.store.vehicles["42"].Status)
}

func TestNonTerminalStatusIsIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "")))
	require.NoError(t, f.svc.OnOrderStatusChanged(ctx, statusChanged(t, "o1", "in_transit", "42", "")))
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)
	assert.Empty(t, f.store.settled)
}

func TestUnknownVehicleIsPermanent(t *testing.T) {
	f := newFixture()
	err := f.svc.OnOrderMatched(context.Background(), matched(t, "o1", "404", ""))
	assert.ErrorIs(t, err, dispatch.ErrPermanent)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestMissingVehicleIDIsRejected(t *testing.T) {
	f := newFixture()
	err := f.svc.OnOrderMatched(context.Background(), matched(t, "o1", "", "d1"))
	assert.ErrorIs(t, err, contracts.ErrMissingField)
}

func TestDispatcherSkipsRedeliveredDuplicate(t *testing.T) {
	f := newFixture()
	d := dispatch.New(logger.Nop(), dedup.NewMemory(time.Minute), nil)
	d.Handle(contracts.KindOrderMatched, f.svc.OnOrderMatched)
	d.Handle(contracts.KindOrderStatusChanged, f.svc.OnOrderStatusChanged)

	matchedBody := `{"id":"e1","event":"ORDER_MATCHED","data":{"orderId":"o1","vehicleId":"42","sequence":2},"dedupKey":"k-match"}`
	doneBody := `{"id":"e2","event":"ORDER_STATUS_CHANGED","data":{"orderId":"o1","newStatus":"delivered","vehicleId":"42","sequence":3},"dedupKey":"k-done"}`

	ctx := context.Background()
	assert.Equal(t, rabbitmq.Ack, d.Dispatch(ctx, []byte(matchedBody), false))
	assert.Equal(t, rabbitmq.Ack, d.Dispatch(ctx, []byte(doneBody), false))
	// the stale redelivery must not re-reserve the vehicle
	assert.Equal(t, rabbitmq.Ack, d.Dispatch(ctx, []byte(matchedBody), true))

	assert.Equal(t, vehicle.StatusAvailable, f.store.vehicles["42"].Status)
}

func TestRepeatedMinimalMatchReservesAgain(t *testing.T) {
	f := newFixture()
	d := dispatch.New(logger.Nop(), dedup.NewMemory(time.Minute), nil)
	d.Handle(contracts.KindOrderMatched, f.svc.OnOrderMatched)
	d.Handle(contracts.KindOrderStatusChanged, f.svc.OnOrderStatusChanged)
	ctx := context.Background()

	minimal := []byte(`{"event":"ORDER_MATCHED","data":{"vehicleId":42}}`)
	assert.Equal(t, rabbitmq.Ack, d.Dispatch(ctx, minimal, false))
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)

	assert.Equal(t, rabbitmq.Ack, d.Dispatch(ctx,
		[]byte(`{"event":"ORDER_STATUS_CHANGED","data":{"orderId":"o1","newStatus":"delivered","vehicleId":42}}`), false))
	assert.Equal(t, vehicle.StatusAvailable, f.store.vehicles["42"].Status)

	assert.Equal(t, rabbitmq.Ack, d.Dispatch(ctx, minimal, false))
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)
}

func TestDriverOnlineFromBusyIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o1", "42", "d1")))
	_, err := f.svc.SetDriverOnline(ctx, "d1")
	assert.ErrorIs(t, err, driver.ErrInvalidStatusSwitch)

	res, err := f.svc.SetDriverOffline(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "OFFLINE", res.Status)

	res, err = f.svc.SetDriverOnline(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", res.Status)
}

func TestAssignmentLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.CreateAssignment(ctx, ports.CreateAssignmentInput{DriverID: "d1", VehicleID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", res.Status)
	assert.Equal(t, driver.StatusBusy, f.store.drivers["d1"].Status)
	assert.Equal(t, vehicle.StatusInUse, f.store.vehicles["42"].Status)

	_, err = f.svc.CreateAssignment(ctx, ports.CreateAssignmentInput{DriverID: "d2", VehicleID: "42"})
	assert.ErrorIs(t, err, ErrActiveAssignment)

	assert.ErrorIs(t, f.svc.DeleteVehicle(ctx, "42"), ErrActiveAssignment)
	assert.ErrorIs(t, f.svc.DeleteDriver(ctx, "d1"), ErrActiveAssignment)

	res, err = f.svc.UpdateAssignmentStatus(ctx, res.AssignmentID, "completed")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", res.Status)
	assert.Equal(t, driver.StatusAvailable, f.store.drivers["d1"].Status)
	assert.Equal(t, vehicle.StatusAvailable, f.store.vehicles["42"].Status)

	_, err = f.svc.UpdateAssignmentStatus(ctx, res.AssignmentID, "cancelled")
	assert.ErrorIs(t, err, assignment.ErrAlreadyClosed)

	require.NoError(t, f.svc.DeleteVehicle(ctx, "42"))
	assert.NotContains(t, f.store.vehicles, "42")
}

func TestServiceActionsRespectActiveAssignment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.CreateAssignment(ctx, ports.CreateAssignmentInput{DriverID: "d1", VehicleID: "42"})
	require.NoError(t, err)

	_, err = f.svc.SetVehicleMaintenance(ctx, "42")
	require.NoError(t, err)
	_, err = f.svc.ReturnVehicleToService(ctx, "42")
	assert.ErrorIs(t, err, ErrActiveAssignment)
	assert.Equal(t, vehicle.StatusMaintenance, f.store.vehicles["42"].Status)

	_, err = f.svc.SetDriverOffline(ctx, "d1")
	require.NoError(t, err)
	_, err = f.svc.SetDriverOnline(ctx, "d1")
	assert.ErrorIs(t, err, ErrActiveAssignment)
	assert.Equal(t, driver.StatusOffline, f.store.drivers["d1"].Status)

	// the vehicle cannot be reserved by an order meanwhile
	require.NoError(t, f.svc.OnOrderMatched(ctx, matched(t, "o9", "42", "")))
	assert.Equal(t, vehicle.StatusMaintenance, f.store.vehicles["42"].Status)

	_, err = f.svc.UpdateAssignmentStatus(ctx, res.AssignmentID, "completed")
	require.NoError(t, err)

	out, err := f.svc.ReturnVehicleToService(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", out.Status)
	out, err = f.svc.SetDriverOnline(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", out.Status)
}

func TestAssignmentNeedsAvailableEntities(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.SetDriverOffline(ctx, "d1")
	require.NoError(t, err)

	_, err = f.svc.CreateAssignment(ctx, ports.CreateAssignmentInput{DriverID: "d1", VehicleID: "42"})
	assert.ErrorIs(t, err, ErrDriverUnavailable)

	_, err = f.svc.CreateAssignment(ctx, ports.CreateAssignmentInput{DriverID: "d2", VehicleID: "missing"})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
