// internal/core/services/pos.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// DefaultVATRate is applied to counter sales of VAT-registered stores.
var DefaultVATRate = decimal.RequireFromString("0.18")

// DefaultSignerTimeout bounds the call to the fiscal signer.
const DefaultSignerTimeout = 3 * time.Second

// POSService completes counter sales: the order is delivered on the spot and
// a fiscal invoice is issued with it.
type POSService struct {
	uow           ports.UnitOfWork
	ledger        *LedgerService
	signer        ports.FiscalSigner
	vatRate       decimal.Decimal
	signerTimeout time.Duration
	logger        *slog.Logger
}

var _ ports.POSService = (*POSService)(nil)

// NewPOSService creates a new point-of-sale service
func NewPOSService(uow ports.UnitOfWork, ledger *LedgerService, signer ports.FiscalSigner, vatRate decimal.Decimal, logger *slog.Logger) *POSService {
	if vatRate.IsZero() || vatRate.IsNegative() {
		vatRate = DefaultVATRate
	}
	return &POSService{
		uow:           uow,
		ledger:        ledger,
		signer:        signer,
		vatRate:       vatRate,
		signerTimeout: DefaultSignerTimeout,
		logger:        logger.With(slog.String("service", "pos")),
	}
}

// WithSignerTimeout replaces DefaultSignerTimeout. Non-positive values are ignored.
func (s *POSService) WithSignerTimeout(d time.Duration) *POSService {
	if d > 0 {
		s.signerTimeout = d
	}
	return s
}

// CompleteSale books a counter sale, decrements stock and issues the invoice
// in one unit of work. A failing signer yields the offline placeholder
// signature instead of failing the sale.
func (s *POSService) CompleteSale(ctx context.Context, req ports.SaleRequest) (*domain.Order, *domain.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, nil, domain.InvalidInput("basket is empty")
	}
	for _, item := range req.Items {
		if err := item.Validate(); err != nil {
			return nil, nil, err
		}
	}

	profile, err := s.uow.StoreProfile().Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load store profile: %w", err)
	}

	now := time.Now().UTC()
	order := s.buildOrder(req, profile, now)
	order.FiscalSignature = s.sign(ctx, order.Total, now, order.ID)

	var invoice *domain.Invoice
	err = s.ledger.withProducts(ctx, productIDs(order.Items), func() error {
		return s.uow.Atomically(ctx, func(ctx context.Context, repos ports.Repositories) error {
			for i, item := range order.Items {
				product, err := repos.Products().FindByIDForUpdate(ctx, item.ProductID)
				if err != nil {
					return fmt.Errorf("failed to load product: %w", err)
				}
				if product == nil {
					return domain.NotFound("product", item.ProductID)
				}
				if order.Items[i].ProductName == "" {
					order.Items[i].ProductName = product.Name
				}
			}

			inv := domain.NewInvoice(order, s.appliedRate(profile), now)
			order.InvoiceID = inv.ID

			if err := repos.Orders().Create(ctx, order); err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}
			for _, item := range order.Items {
				_, err := s.ledger.apply(ctx, repos, domain.MovementRequest{
					ProductID: item.ProductID,
					Quantity:  -item.Quantity,
					Type:      domain.MovementSale,
					Reason:    domain.POSSaleReason(order.ID),
					UserID:    req.UserID,
				}, now)
				if err != nil {
					return fmt.Errorf("failed to record sale of %s: %w", item.ProductID, err)
				}
			}
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return fmt.Errorf("failed to create invoice: %w", err)
			}
			invoice = inv
			return nil
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to complete sale: %w", err)
	}

	s.logger.InfoContext(ctx, "counter sale completed",
		slog.String("order_id", order.ID),
		slog.String("invoice_id", invoice.ID),
		slog.String("total", order.Total.String()),
		slog.Bool("offline_signature", order.FiscalSignature == domain.FiscalOfflineSig))

	return order, invoice, nil
}

func (s *POSService) buildOrder(req ports.SaleRequest, profile domain.StoreProfile, now time.Time) *domain.Order {
	rate := s.appliedRate(profile)
	items := make([]domain.OrderItem, len(req.Items))
	for i, item := range req.Items {
		item.TaxAmount = item.LineTotal().Mul(rate).Round(2)
		items[i] = item
	}

	id := domain.NewDocumentID("POS", now)
	order := &domain.Order{
		ID:             id,
		Channel:        domain.ChannelPOS,
		Date:           now.Format(time.DateOnly),
		Status:         domain.OrderDelivered,
		Items:          items,
		Currency:       profile.Currency,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerNIF:    strings.TrimSpace(req.CustomerNIF),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		EBMSResponseID: "EBMS-" + strings.TrimPrefix(id, "POS-"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if order.CustomerName == "" {
		order.CustomerName = domain.WalkInCustomer
	}
	order.Subtotal = order.ItemsSubtotal()
	order.TaxAmount = order.Subtotal.Mul(rate).Round(2)
	order.Total = order.Subtotal.Add(order.TaxAmount)
	return order
}

func (s *POSService) appliedRate(profile domain.StoreProfile) decimal.Decimal {
	if profile.VATAssured {
		return s.vatRate
	}
	return decimal.Zero
}

// sign asks the fiscal signer for a signature. It runs before the unit of work
// so a slow signer never holds product locks.
func (s *POSService) sign(ctx context.Context, total decimal.Decimal, at time.Time, orderID string) string {
	if s.signer == nil {
		return domain.FiscalOfflineSig
	}
	ctx, cancel := context.WithTimeout(ctx, s.signerTimeout)
	defer cancel()

	sig, err := s.signer.GenerateSignature(ctx, total, at, orderID)
	if err != nil || strings.TrimSpace(sig) == "" {
		attrs := []any{slog.String("order_id", orderID)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.WarnContext(ctx, "fiscal signer unavailable, using offline signature", attrs...)
		return domain.FiscalOfflineSig
	}
	return sig
}

// GetInvoice retrieves an invoice by id
func (s *POSService) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := s.uow.Invoices().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		return nil, domain.NotFound("invoice", id)
	}
	return inv, nil
}

// InvoiceForOrder retrieves the invoice issued for an order
func (s *POSService) InvoiceForOrder(ctx context.Context, orderID string) (*domain.Invoice, error) {
	inv, err := s.uow.Invoices().FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if inv == nil {
		return nil, domain.NotFound("invoice for order", orderID)
	}
	return inv, nil
}
