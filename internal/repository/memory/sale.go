package memory

import (
	"context"
	"sort"
	"time"

	"github.com/permalink-studio/pos/internal/domain"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

type saleRepo struct {
	v view
}

func (r *saleRepo) Create(_ context.Context, sale *domain.Sale) error {
	return r.v.write("Sales.Create", func(st *state) error {
		if _, ok := st.sales[sale.ID]; ok {
			return apperrors.AlreadyExists("sale", "id", sale.ID)
		}
		header := *sale
		header.Items = nil
		st.sales[sale.ID] = header
		return nil
	})
}

func (r *saleRepo) CreateItem(_ context.Context, item *domain.SaleItem) error {
	return r.v.write("Sales.CreateItem", func(st *state) error {
		if _, ok := st.sales[item.SaleID]; !ok {
			return apperrors.NotFound("sale", item.SaleID)
		}
		st.saleItems[item.SaleID] = append(st.saleItems[item.SaleID], *item)
		return nil
	})
}

func (r *saleRepo) GetByID(_ context.Context, tenantID, id string) (*domain.Sale, error) {
	var out domain.Sale
	err := r.v.read(func(st *state) error {
		sale, ok := st.sales[id]
		if !ok || sale.TenantID != tenantID {
			return apperrors.NotFound("sale", id)
		}
		out = sale
		out.Items = append([]domain.SaleItem{}, st.saleItems[id]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *saleRepo) List(_ context.Context, tenantID string, filter domain.SaleFilter, p, perPage int) ([]domain.Sale, int, error) {
	var out []domain.Sale
	_ = r.v.read(func(st *state) error {
		for _, sale := range st.sales {
			if sale.TenantID != tenantID || !matchesSale(sale, filter) {
				continue
			}
			out = append(out, sale)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, p, perPage), len(out), nil
}

func matchesSale(sale domain.Sale, f domain.SaleFilter) bool {
	if f.ClientID != nil && (sale.ClientID == nil || *sale.ClientID != *f.ClientID) {
		return false
	}
	if f.EventID != nil && (sale.EventID == nil || *sale.EventID != *f.EventID) {
		return false
	}
	if f.From != nil && sale.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !sale.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (r *saleRepo) MarkReceiptSent(_ context.Context, tenantID, id string, at time.Time) error {
	return r.v.write("Sales.MarkReceiptSent", func(st *state) error {
		sale, ok := st.sales[id]
		if !ok || sale.TenantID != tenantID {
			return apperrors.NotFound("sale", id)
		}
		sale.ReceiptSentAt = &at
		st.sales[id] = sale
		return nil
	})
}

type clientRepo struct {
	v view
}

func (r *clientRepo) find(tenantID string, match func(domain.Client) bool, what string) (*domain.Client, error) {
	var out *domain.Client
	_ = r.v.read(func(st *state) error {
		for _, c := range st.clients {
			if c.TenantID == tenantID && match(c) {
				c := c
				out = &c
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, apperrors.NotFound("client", what)
	}
	return out, nil
}

func (r *clientRepo) GetByID(_ context.Context, tenantID, id string) (*domain.Client, error) {
	return r.find(tenantID, func(c domain.Client) bool { return c.ID == id }, id)
}

func (r *clientRepo) FindByEmail(_ context.Context, tenantID, email string) (*domain.Client, error) {
	return r.find(tenantID, func(c domain.Client) bool { return c.Email != nil && *c.Email == email }, email)
}

func (r *clientRepo) FindByPhone(_ context.Context, tenantID, phone string) (*domain.Client, error) {
	return r.find(tenantID, func(c domain.Client) bool { return c.Phone != nil && *c.Phone == phone }, phone)
}

func (r *clientRepo) Create(_ context.Context, client *domain.Client) error {
	return r.v.write("Clients.Create", func(st *state) error {
		st.clients[client.ID] = *client
		return nil
	})
}
