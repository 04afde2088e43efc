package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/google/uuid"
)

// Connection requests are stored twice so each side can list its own.
const (
	connectionsByInvestor = "investor"
	connectionsByVendor   = "vendor"
)

// RequestConnection records a vendor's request to connect with an investor.
func (s *Service) RequestConnection(ctx context.Context, vendor *domain.User, req domain.CreateConnectionRequest) (*domain.ConnectionRequest, error) {
	if err := RequireRole(vendor, domain.RoleVendor); err != nil {
		return nil, err
	}
	investor, err := s.repo.FindUserByID(ctx, req.InvestorID)
	if err != nil {
		return nil, err
	}
	if investor.Role != domain.RoleInvestor {
		return nil, store.ErrUserNotFound
	}

	existing, err := s.connections.Get(ctx, connectionsByInvestor, investor.ID.String(), vendor.ID.String())
	switch {
	case err == nil && existing.Status != domain.ConnectionDeclined:
		return nil, ErrConnectionExists
	case err != nil && !errors.Is(err, kvstore.ErrNotFound):
		return nil, err
	}

	connection := domain.ConnectionRequest{
		VendorID:   vendor.ID,
		VendorName: vendor.Name,
		InvestorID: investor.ID,
		Message:    sanitizeText(req.Message),
		Status:     domain.ConnectionPending,
		CreatedAt:  s.now(),
	}
	if err := s.saveConnection(ctx, connection); err != nil {
		return nil, err
	}

	if _, err := s.Notify(ctx, investor.ID, domain.NotificationConnectionRequest,
		"New connection request",
		fmt.Sprintf("%s would like to connect with you.", vendor.Name),
	); err != nil {
		s.logger.Warn("failed to notify investor of connection request", "investor_id", investor.ID, "error", err)
	}
	s.publish(ctx, domain.EventConnectionRequested, domain.ConnectionRequestedEvent{VendorID: vendor.ID, InvestorID: investor.ID})
	return &connection, nil
}

// ListConnections returns the caller's connection requests: sent ones for a
// vendor, received ones for an investor.
func (s *Service) ListConnections(ctx context.Context, user *domain.User) ([]domain.ConnectionRequest, error) {
	if err := RequireRole(user, domain.RoleVendor, domain.RoleInvestor); err != nil {
		return nil, err
	}
	side := connectionsByInvestor
	if user.Role == domain.RoleVendor {
		side = connectionsByVendor
	}
	return s.connections.List(ctx, side, user.ID.String())
}

// RespondConnection lets an investor accept or decline a pending request.
func (s *Service) RespondConnection(ctx context.Context, investor *domain.User, vendorID uuid.UUID, accept bool) (*domain.ConnectionRequest, error) {
	if err := RequireRole(investor, domain.RoleInvestor); err != nil {
		return nil, err
	}
	connection, err := s.connections.Get(ctx, connectionsByInvestor, investor.ID.String(), vendorID.String())
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	if connection.Status != domain.ConnectionPending {
		return nil, invalidInput("connection request was already answered")
	}

	now := s.now()
	connection.RespondedAt = &now
	connection.Status = domain.ConnectionDeclined
	verb := "declined"
	if accept {
		connection.Status = domain.ConnectionAccepted
		verb = "accepted"
	}
	if err := s.saveConnection(ctx, connection); err != nil {
		return nil, err
	}

	if _, err := s.Notify(ctx, vendorID, domain.NotificationConnectionResponse,
		"Connection request "+verb,
		fmt.Sprintf("%s %s your connection request.", investor.Name, verb),
	); err != nil {
		s.logger.Warn("failed to notify vendor of connection response", "vendor_id", vendorID, "error", err)
	}
	return &connection, nil
}

func (s *Service) saveConnection(ctx context.Context, connection domain.ConnectionRequest) error {
	investorID, vendorID := connection.InvestorID.String(), connection.VendorID.String()
	if err := s.connections.Put(ctx, connection, 0, connectionsByInvestor, investorID, vendorID); err != nil {
		return err
	}
	return s.connections.Put(ctx, connection, 0, connectionsByVendor, vendorID, investorID)
}
