package service

import (
	"errors"

	"logistics/internal/general/logger"
	"logistics/internal/ports"
)

var (
	ErrActiveAssignment   = errors.New("entity has an active assignment")
	ErrDriverUnavailable  = errors.New("driver is not available")
	ErrVehicleUnavailable = errors.New("vehicle is not available")
)

// fleetService holds all dependencies required by the fleet service.
type fleetService struct {
	logger      *logger.Logger
	uow         ports.UnitOfWork
	drivers     ports.DriverRepository
	vehicles    ports.VehicleRepository
	assignments ports.AssignmentRepository
	settlements ports.SettlementRepository
}

// NewFleetService constructs the service with required dependencies.
func NewFleetService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	drivers ports.DriverRepository,
	vehicles ports.VehicleRepository,
	assignments ports.AssignmentRepository,
	settlements ports.SettlementRepository,
) ports.FleetService {
	return &fleetService{
		logger:      logger,
		uow:         uow,
		drivers:     drivers,
		vehicles:    vehicles,
		assignments: assignments,
		settlements: settlements,
	}
}
