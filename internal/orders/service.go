package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
)

// InvoiceReader loads the invoice recorded for a succeeded order.
type InvoiceReader interface {
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
}

// Viewer identifies who is reading an order.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (v Viewer) canSee(order *models.Order) bool {
	if v.Role == enums.RoleAdmin {
		return true
	}
	return v.UserID != uuid.Nil && (order.PayerID == v.UserID || order.PayeeID == v.UserID)
}

// Service exposes read access to orders. Status changes live in the reconciler.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDTO, error)
	ListForPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]OrderDTO, error)
}

type service struct {
	repo     Repository
	invoices InvoiceReader
}

func NewService(repo Repository, invoices InvoiceReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if invoices == nil {
		return nil, fmt.Errorf("invoice reader required")
	}
	return &service{repo: repo, invoices: invoices}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*OrderDTO, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	// other users' orders look missing rather than forbidden
	if !viewer.canSee(order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	dto := ToOrderDTO(*order)
	if order.Status == enums.OrderStatusSucceeded {
		invoice, err := s.invoices.FindByOrderID(ctx, order.ID)
		switch {
		case err == nil:
			view := ToInvoiceDTO(*invoice)
			dto.Invoice = &view
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
		}
	}
	return &dto, nil
}

func (s *service) ListForPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]OrderDTO, error) {
	if payerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	rows, err := s.repo.ListByPayer(ctx, payerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToOrderDTO(row))
	}
	return out, nil
}
