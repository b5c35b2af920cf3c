// internal/adapters/memory/repositories.go
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammerola/storefront-ledger/internal/core/domain"
)

type productRepo struct{ v *view }

func (r productRepo) Create(ctx context.Context, p *domain.Product) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.products[p.ID]; ok {
			return domain.Conflict("product", p.ID, "already exists")
		}
		st.products[p.ID] = cloneProduct(*p)
		return nil
	})
}

func (r productRepo) Update(ctx context.Context, p *domain.Product) error {
	return r.v.write(ctx, func(st *state) error {
		current, ok := st.products[p.ID]
		if !ok {
			return domain.NotFound("product", p.ID)
		}
		next := cloneProduct(*p)
		next.Stock = current.Stock
		next.LedgerBalance = current.LedgerBalance
		st.products[p.ID] = next
		return nil
	})
}

func (r productRepo) UpdateStock(ctx context.Context, id string, balance, stock int64, at time.Time) error {
	return r.v.write(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.NotFound("product", id)
		}
		p.LedgerBalance = balance
		p.Stock = stock
		p.UpdatedAt = at
		st.products[id] = p
		return nil
	})
}

func (r productRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var out *domain.Product
	r.v.read(ctx, func(st *state) {
		if p, ok := st.products[id]; ok {
			c := cloneProduct(p)
			out = &c
		}
	})
	return out, nil
}

func (r productRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return r.FindByID(ctx, id)
}

func (r productRepo) FindByName(ctx context.Context, name string) (*domain.Product, error) {
	var out *domain.Product
	r.v.read(ctx, func(st *state) {
		for _, p := range sortedProducts(st) {
			if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
				c := cloneProduct(p)
				out = &c
				return
			}
		}
	})
	return out, nil
}

func (r productRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	f.Normalize()
	var matched []domain.Product
	r.v.read(ctx, func(st *state) {
		search := strings.ToLower(f.Search)
		for _, p := range sortedProducts(st) {
			if search != "" &&
				!strings.Contains(strings.ToLower(p.Name), search) &&
				!strings.Contains(strings.ToLower(p.SKU), search) {
				continue
			}
			if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
				continue
			}
			if f.LowStock && !p.IsLowStock() {
				continue
			}
			matched = append(matched, cloneProduct(p))
		}
	})
	return page(matched, f.Offset, f.Limit), int64(len(matched)), nil
}

func (r productRepo) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.v.write(ctx, func(st *state) error {
		_, deleted = st.products[id]
		delete(st.products, id)
		return nil
	})
	return deleted, err
}

func (r productRepo) All(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	r.v.read(ctx, func(st *state) {
		for _, p := range sortedProducts(st) {
			out = append(out, cloneProduct(p))
		}
	})
	return out, nil
}

func (r productRepo) ReplaceAll(ctx context.Context, products []domain.Product) error {
	return r.v.write(ctx, func(st *state) error {
		st.products = make(map[string]domain.Product, len(products))
		for _, p := range products {
			st.products[p.ID] = cloneProduct(p)
		}
		return nil
	})
}

func sortedProducts(st *state) []domain.Product {
	out := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), cmp.Compare(a.ID, b.ID))
	})
	return out
}

type movementRepo struct{ v *view }

func (r movementRepo) Append(ctx context.Context, m *domain.StockMovement) error {
	return r.v.write(ctx, func(st *state) error {
		st.seq++
		m.Seq = st.seq
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r movementRepo) Head(ctx context.Context) (int64, error) {
	var head int64
	r.v.read(ctx, func(st *state) { head = st.seq })
	return head, nil
}

func (r movementRepo) ListByProduct(ctx context.Context, productID string, beforeSeq int64, limit int) ([]domain.StockMovement, error) {
	var out []domain.StockMovement
	r.v.read(ctx, func(st *state) {
		for i := len(st.movements) - 1; i >= 0 && len(out) < limit; i-- {
			m := st.movements[i]
			if m.Seq < beforeSeq && m.ProductID == productID {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

func (r movementRepo) SumByProduct(ctx context.Context, productID string) (int64, int64, error) {
	var sum, count int64
	r.v.read(ctx, func(st *state) {
		for _, m := range st.movements {
			if m.ProductID == productID {
				sum += m.Quantity
				count++
			}
		}
	})
	return sum, count, nil
}

func (r movementRepo) List(ctx context.Context, f domain.MovementFilter) ([]domain.StockMovement, error) {
	var out []domain.StockMovement
	r.v.read(ctx, func(st *state) {
		for i := len(st.movements) - 1; i >= 0; i-- {
			m := st.movements[i]
			if f.ProductID != "" && m.ProductID != f.ProductID {
				continue
			}
			if f.Type != "" && m.Type != f.Type {
				continue
			}
			if f.From != nil && m.CreatedAt.Before(*f.From) {
				continue
			}
			if f.To != nil && m.CreatedAt.After(*f.To) {
				continue
			}
			out = append(out, m)
			if f.Limit > 0 && len(out) >= f.Limit {
				return
			}
		}
	})
	return out, nil
}

func (r movementRepo) All(ctx context.Context) ([]domain.StockMovement, error) {
	var out []domain.StockMovement
	r.v.read(ctx, func(st *state) { out = slices.Clone(st.movements) })
	return out, nil
}

func (r movementRepo) ReplaceAll(ctx context.Context, movements []domain.StockMovement) error {
	return r.v.write(ctx, func(st *state) error {
		st.movements = make([]domain.StockMovement, 0, len(movements))
		st.seq = 0
		for _, m := range movements {
			st.seq++
			m.Seq = st.seq
			st.movements = append(st.movements, m)
		}
		return nil
	})
}

type orderRepo struct{ v *view }

func (r orderRepo) Create(ctx context.Context, o *domain.Order) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return domain.Conflict("order", o.ID, "already exists")
		}
		st.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}

func (r orderRepo) UpdateStatus(ctx context.Context, o *domain.Order) error {
	return r.v.write(ctx, func(st *state) error {
		current, ok := st.orders[o.ID]
		if !ok {
			return domain.NotFound("order", o.ID)
		}
		current.Status = o.Status
		current.RefundReason = o.RefundReason
		current.InvoiceID = o.InvoiceID
		current.UpdatedAt = o.UpdatedAt
		st.orders[o.ID] = current
		return nil
	})
}

func (r orderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var out *domain.Order
	r.v.read(ctx, func(st *state) {
		if o, ok := st.orders[id]; ok {
			c := cloneOrder(o)
			out = &c
		}
	})
	return out, nil
}

func (r orderRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r orderRepo) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	f.Normalize()
	var matched []domain.Order
	r.v.read(ctx, func(st *state) {
		for _, o := range sortedOrders(st) {
			if f.Matches(&o) {
				matched = append(matched, cloneOrder(o))
			}
		}
	})
	return page(matched, f.Offset, f.Limit), int64(len(matched)), nil
}

func (r orderRepo) All(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	r.v.read(ctx, func(st *state) {
		for _, o := range sortedOrders(st) {
			out = append(out, cloneOrder(o))
		}
	})
	return out, nil
}

func (r orderRepo) ReplaceAll(ctx context.Context, orders []domain.Order) error {
	return r.v.write(ctx, func(st *state) error {
		st.orders = make(map[string]domain.Order, len(orders))
		for _, o := range orders {
			st.orders[o.ID] = cloneOrder(o)
		}
		return nil
	})
}

func sortedOrders(st *state) []domain.Order {
	out := make([]domain.Order, 0, len(st.orders))
	for _, o := range st.orders {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return out
}

type invoiceRepo struct{ v *view }

func (r invoiceRepo) Create(ctx context.Context, inv *domain.Invoice) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.invoices[inv.ID]; ok {
			return domain.Conflict("invoice", inv.ID, "already exists")
		}
		for _, existing := range st.invoices {
			if existing.OrderID == inv.OrderID {
				return domain.Conflict("invoice", inv.OrderID, "order already has an invoice")
			}
		}
		st.invoices[inv.ID] = cloneInvoice(*inv)
		return nil
	})
}

func (r invoiceRepo) FindByID(ctx context.Context, id string) (*domain.Invoice, error) {
	var out *domain.Invoice
	r.v.read(ctx, func(st *state) {
		if inv, ok := st.invoices[id]; ok {
			c := cloneInvoice(inv)
			out = &c
		}
	})
	return out, nil
}

func (r invoiceRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Invoice, error) {
	var out *domain.Invoice
	r.v.read(ctx, func(st *state) {
		for _, inv := range st.invoices {
			if inv.OrderID == orderID {
				c := cloneInvoice(inv)
				out = &c
				return
			}
		}
	})
	return out, nil
}

func (r invoiceRepo) All(ctx context.Context) ([]domain.Invoice, error) {
	var out []domain.Invoice
	r.v.read(ctx, func(st *state) {
		for _, inv := range st.invoices {
			out = append(out, cloneInvoice(inv))
		}
	})
	slices.SortFunc(out, func(a, b domain.Invoice) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r invoiceRepo) ReplaceAll(ctx context.Context, invoices []domain.Invoice) error {
	return r.v.write(ctx, func(st *state) error {
		st.invoices = make(map[string]domain.Invoice, len(invoices))
		for _, inv := range invoices {
			st.invoices[inv.ID] = cloneInvoice(inv)
		}
		return nil
	})
}

type salesRepo struct{ v *view }

func (r salesRepo) Increment(ctx context.Context, bucket string, amount decimal.Decimal) error {
	return r.v.write(ctx, func(st *state) error {
		st.sales[bucket] = st.sales[bucket].Add(amount)
		return nil
	})
}

func (r salesRepo) List(ctx context.Context) ([]domain.SalesBucket, error) {
	var out []domain.SalesBucket
	r.v.read(ctx, func(st *state) {
		for _, day := range domain.Weekdays {
			if v, ok := st.sales[day]; ok {
				out = append(out, domain.SalesBucket{Name: day, Sales: v})
			}
		}
	})
	return out, nil
}

func (r salesRepo) ReplaceAll(ctx context.Context, buckets []domain.SalesBucket) error {
	return r.v.write(ctx, func(st *state) error {
		st.sales = make(map[string]decimal.Decimal, len(buckets))
		for _, b := range buckets {
			st.sales[b.Name] = b.Sales
		}
		return nil
	})
}

type purchaseOrderRepo struct{ v *view }

func (r purchaseOrderRepo) Create(ctx context.Context, po *domain.PurchaseOrder) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.pos[po.ID]; ok {
			return domain.Conflict("purchase_order", po.ID, "already exists")
		}
		st.pos[po.ID] = clonePurchaseOrder(*po)
		return nil
	})
}

func (r purchaseOrderRepo) Update(ctx context.Context, po *domain.PurchaseOrder) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.pos[po.ID]; !ok {
			return domain.NotFound("purchase_order", po.ID)
		}
		st.pos[po.ID] = clonePurchaseOrder(*po)
		return nil
	})
}

func (r purchaseOrderRepo) FindByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var out *domain.PurchaseOrder
	r.v.read(ctx, func(st *state) {
		if po, ok := st.pos[id]; ok {
			c := clonePurchaseOrder(po)
			out = &c
		}
	})
	return out, nil
}

func (r purchaseOrderRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return r.FindByID(ctx, id)
}

func (r purchaseOrderRepo) List(ctx context.Context) ([]domain.PurchaseOrder, error) {
	return r.All(ctx)
}

func (r purchaseOrderRepo) All(ctx context.Context) ([]domain.PurchaseOrder, error) {
	var out []domain.PurchaseOrder
	r.v.read(ctx, func(st *state) {
		for _, po := range st.pos {
			out = append(out, clonePurchaseOrder(po))
		}
	})
	slices.SortFunc(out, func(a, b domain.PurchaseOrder) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return out, nil
}

func (r purchaseOrderRepo) ReplaceAll(ctx context.Context, pos []domain.PurchaseOrder) error {
	return r.v.write(ctx, func(st *state) error {
		st.pos = make(map[string]domain.PurchaseOrder, len(pos))
		for _, po := range pos {
			st.pos[po.ID] = clonePurchaseOrder(po)
		}
		return nil
	})
}

type profileRepo struct{ v *view }

func (r profileRepo) Get(ctx context.Context) (domain.StoreProfile, error) {
	profile := domain.DefaultStoreProfile()
	r.v.read(ctx, func(st *state) {
		if st.profile != nil {
			profile = *st.profile
		}
	})
	return profile, nil
}

func (r profileRepo) Save(ctx context.Context, profile domain.StoreProfile) error {
	return r.v.write(ctx, func(st *state) error {
		st.profile = &profile
		return nil
	})
}

type customerRepo struct{ v *view }

func (r customerRepo) Create(ctx context.Context, c *domain.Customer) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.customers[c.ID]; ok {
			return domain.Conflict("customer", c.ID, "already exists")
		}
		st.customers[c.ID] = *c
		return nil
	})
}

func (r customerRepo) FindByID(ctx context.Context, id string) (*domain.Customer, error) {
	var out *domain.Customer
	r.v.read(ctx, func(st *state) {
		if c, ok := st.customers[id]; ok {
			out = &c
		}
	})
	return out, nil
}

func (r customerRepo) List(ctx context.Context) ([]domain.Customer, error) {
	var out []domain.Customer
	r.v.read(ctx, func(st *state) {
		for _, c := range st.customers {
			out = append(out, c)
		}
	})
	slices.SortFunc(out, func(a, b domain.Customer) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r customerRepo) ReplaceAll(ctx context.Context, customers []domain.Customer) error {
	return r.v.write(ctx, func(st *state) error {
		st.customers = make(map[string]domain.Customer, len(customers))
		for _, c := range customers {
			st.customers[c.ID] = c
		}
		return nil
	})
}

type vendorRepo struct{ v *view }

func (r vendorRepo) Create(ctx context.Context, v *domain.Vendor) error {
	return r.v.write(ctx, func(st *state) error {
		if _, ok := st.vendors[v.ID]; ok {
			return domain.Conflict("vendor", v.ID, "already exists")
		}
		st.vendors[v.ID] = *v
		return nil
	})
}

func (r vendorRepo) FindByID(ctx context.Context, id string) (*domain.Vendor, error) {
	var out *domain.Vendor
	r.v.read(ctx, func(st *state) {
		if v, ok := st.vendors[id]; ok {
			out = &v
		}
	})
	return out, nil
}

func (r vendorRepo) List(ctx context.Context) ([]domain.Vendor, error) {
	var out []domain.Vendor
	r.v.read(ctx, func(st *state) {
		for _, v := range st.vendors {
			out = append(out, v)
		}
	})
	slices.SortFunc(out, func(a, b domain.Vendor) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r vendorRepo) ReplaceAll(ctx context.Context, vendors []domain.Vendor) error {
	return r.v.write(ctx, func(st *state) error {
		st.vendors = make(map[string]domain.Vendor, len(vendors))
		for _, v := range vendors {
			st.vendors[v.ID] = v
		}
		return nil
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
