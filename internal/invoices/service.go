package invoices

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/internal/orders"
	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
	"github.com/angelmondragon/gearledger-backend/pkg/pagination"
	"github.com/angelmondragon/gearledger-backend/pkg/types"
)

// Service lists a payee's invoices.
type Service interface {
	ListForPayee(ctx context.Context, payeeID uuid.UUID, filter ListFilter) (types.ListResult[orders.InvoiceDTO], error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoice repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListForPayee(ctx context.Context, payeeID uuid.UUID, filter ListFilter) (types.ListResult[orders.InvoiceDTO], error) {
	if payeeID == uuid.Nil {
		return types.ListResult[orders.InvoiceDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "payee id is required")
	}
	rows, err := s.repo.ListByPayee(ctx, payeeID, filter)
	if err != nil {
		return types.ListResult[orders.InvoiceDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	page, next := pagination.Trim(rows, filter.Limit, func(inv models.Invoice) pagination.Cursor {
		return pagination.Cursor{CreatedAt: inv.CreatedAt, ID: inv.ID}
	})
	items := make([]orders.InvoiceDTO, 0, len(page))
	for _, row := range page {
		items = append(items, orders.ToInvoiceDTO(row))
	}
	result := types.NewListResult(items)
	result.NextCursor = next
	return result, nil
}
