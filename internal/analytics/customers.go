package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
)

// CustomerSort selects the ordering of Customers.
type CustomerSort string

const (
	SortTotalSpent  CustomerSort = "totalSpent"
	SortTotalOrders CustomerSort = "totalOrders"
	SortName        CustomerSort = "name"
	SortEmail       CustomerSort = "email"
	SortLastOrder   CustomerSort = "lastOrder"
	SortFirstOrder  CustomerSort = "createdAt"
)

// ParseCustomerSort maps a query value to a sort, defaulting to SortTotalSpent.
func ParseCustomerSort(v string) (CustomerSort, bool) {
	switch s := CustomerSort(strings.TrimSpace(v)); s {
	case "":
		return SortTotalSpent, true
	case SortTotalSpent, SortTotalOrders, SortName, SortEmail, SortLastOrder, SortFirstOrder:
		return s, true
	default:
		return "", false
	}
}

// Customer is one shopper's order history rolled up for the admin list.
// Contact details come from the most recent order's shipping address.
type Customer struct {
	UserID            string        `json:"userId"`
	Name              string        `json:"name"`
	Email             string        `json:"email"`
	Phone             string        `json:"phone,omitempty"`
	TotalOrders       int           `json:"totalOrders"`
	TotalSpent        pricing.Money `json:"totalSpent"`
	AverageOrderValue pricing.Money `json:"averageOrderValue"`
	FirstOrderAt      time.Time     `json:"firstOrderAt"`
	LastOrderAt       time.Time     `json:"lastOrderAt"`
}

// Customers aggregates orders per user. Cancelled orders are ignored, so a
// user whose every order was cancelled is not listed. search matches name,
// email or user id case-insensitively.
func Customers(orders []order.Order, by CustomerSort, search string) []Customer {
	byUser := map[string]*Customer{}
	for _, o := range orders {
		if o.Status == order.StatusCancelled || o.UserID == "" {
			continue
		}
		c, ok := byUser[o.UserID]
		if !ok {
			c = &Customer{UserID: o.UserID, TotalSpent: decimal.Zero, FirstOrderAt: o.CreatedAt}
			byUser[o.UserID] = c
		}
		c.TotalOrders++
		c.TotalSpent = c.TotalSpent.Add(o.Total)
		if o.CreatedAt.Before(c.FirstOrderAt) {
			c.FirstOrderAt = o.CreatedAt
		}
		if !o.CreatedAt.Before(c.LastOrderAt) {
			c.LastOrderAt = o.CreatedAt
			c.Name = o.ShippingAddress.Name
			c.Email = o.ShippingAddress.Email
			c.Phone = o.ShippingAddress.Phone
		}
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]Customer, 0, len(byUser))
	for _, c := range byUser {
		if needle != "" && !matchesCustomer(*c, needle) {
			continue
		}
		c.AverageOrderValue = c.TotalSpent.Div(decimal.NewFromInt(int64(c.TotalOrders))).Round(2)
		out = append(out, *c)
	}
	sortCustomers(out, by)
	return out
}

func matchesCustomer(c Customer, needle string) bool {
	return strings.Contains(strings.ToLower(c.Name), needle) ||
		strings.Contains(strings.ToLower(c.Email), needle) ||
		strings.Contains(strings.ToLower(c.UserID), needle)
}

func sortCustomers(cs []Customer, by CustomerSort) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		switch by {
		case SortTotalOrders:
			if a.TotalOrders != b.TotalOrders {
				return a.TotalOrders > b.TotalOrders
			}
		case SortName:
			if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
				return an < bn
			}
		case SortEmail:
			if ae, be := strings.ToLower(a.Email), strings.ToLower(b.Email); ae != be {
				return ae < be
			}
		case SortLastOrder:
			if !a.LastOrderAt.Equal(b.LastOrderAt) {
				return a.LastOrderAt.After(b.LastOrderAt)
			}
		case SortFirstOrder:
			if !a.FirstOrderAt.Equal(b.FirstOrderAt) {
				return a.FirstOrderAt.After(b.FirstOrderAt)
			}
		default:
			if !a.TotalSpent.Equal(b.TotalSpent) {
				return a.TotalSpent.GreaterThan(b.TotalSpent)
			}
		}
		return a.UserID < b.UserID
	})
}
