package service

import (
	"errors"

	"logistics/internal/general/logger"
	"logistics/internal/general/validation"
	"logistics/internal/ports"
)

var (
	ErrDriverNotFound  = errors.New("driver not found")
	ErrPeerUnavailable = errors.New("user/driver service unavailable")
)

const outboxBatch = 25

// matchingService holds all dependencies required by the matching service.
type matchingService struct {
	logger    *logger.Logger
	uow       ports.UnitOfWork
	orders    ports.OrderRepository
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	drivers   ports.DriverDirectory
	users     validation.UserCache
}

// NewMatchingService constructs the service with required dependencies.
// users may be nil when no cache is shared with the validation proxy.
func NewMatchingService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	orders ports.OrderRepository,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	drivers ports.DriverDirectory,
	users validation.UserCache,
) ports.MatchingService {
	return &matchingService{
		logger:    logger,
		uow:       uow,
		orders:    orders,
		outbox:    outbox,
		publisher: publisher,
		drivers:   drivers,
		users:     users,
	}
}
