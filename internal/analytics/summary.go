package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
)

const (
	topProductLimit = 5
	monthsOfHistory = 6
)

// ProductSales aggregates one product's sales within the period.
type ProductSales struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	Quantity  int           `json:"quantity"`
	Revenue   pricing.Money `json:"revenue"`
}

// CategorySales aggregates revenue by product category.
type CategorySales struct {
	Category string        `json:"category"`
	Revenue  pricing.Money `json:"revenue"`
}

// MonthRevenue is the revenue booked in one calendar month.
type MonthRevenue struct {
	Month   string        `json:"month"`
	Revenue pricing.Money `json:"revenue"`
}

// Overview is the admin dashboard summary for a trailing window of days.
type Overview struct {
	Days              int                  `json:"days"`
	From              time.Time            `json:"from"`
	To                time.Time            `json:"to"`
	Revenue           pricing.Money        `json:"revenue"`
	Orders            int                  `json:"orders"`
	AverageOrderValue pricing.Money        `json:"averageOrderValue"`
	RevenueGrowth     float64              `json:"revenueGrowth"`
	OrderGrowth       float64              `json:"orderGrowth"`
	Customers         int                  `json:"customers"`
	OrdersByStatus    map[order.Status]int `json:"ordersByStatus"`
	TopProducts       []ProductSales       `json:"topProducts"`
	SalesByCategory   []CategorySales      `json:"salesByCategory"`
	MonthlyRevenue    []MonthRevenue       `json:"monthlyRevenue"`
}

// HistoryStart returns the earliest creation time Summarize looks at.
func HistoryStart(now time.Time, days int) time.Time {
	prev := now.AddDate(0, 0, -2*days)
	months := monthStart(now).AddDate(0, -(monthsOfHistory - 1), 0)
	if months.Before(prev) {
		return months
	}
	return prev
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Summarize computes the overview for the days ending at now. Cancelled
// orders count toward the status breakdown only.
func Summarize(orders []order.Order, now time.Time, days int) Overview {
	if days <= 0 {
		days = 30
	}
	from := now.AddDate(0, 0, -days)
	prevFrom := now.AddDate(0, 0, -2*days)

	ov := Overview{
		Days:           days,
		From:           from,
		To:             now,
		Revenue:        decimal.Zero,
		OrdersByStatus: map[order.Status]int{},
	}

	var (
		prevRevenue = decimal.Zero
		prevOrders  int
		customers   = map[string]struct{}{}
		products    = map[string]*ProductSales{}
		categories  = map[string]pricing.Money{}
	)
	months := make([]MonthRevenue, monthsOfHistory)
	monthIndex := make(map[string]int, monthsOfHistory)
	first := monthStart(now).AddDate(0, -(monthsOfHistory - 1), 0)
	for i := range months {
		key := first.AddDate(0, i, 0).Format("Jan 2006")
		months[i] = MonthRevenue{Month: key, Revenue: decimal.Zero}
		monthIndex[key] = i
	}

	for _, o := range orders {
		if o.CreatedAt.After(now) {
			continue
		}
		counted := o.Status != order.StatusCancelled
		if counted {
			if i, ok := monthIndex[o.CreatedAt.In(now.Location()).Format("Jan 2006")]; ok {
				months[i].Revenue = months[i].Revenue.Add(o.Total)
			}
		}
		switch {
		case !o.CreatedAt.Before(from):
			ov.OrdersByStatus[o.Status]++
			if !counted {
				continue
			}
			ov.Orders++
			ov.Revenue = ov.Revenue.Add(o.Total)
			customers[o.UserID] = struct{}{}
			for _, it := range o.Items {
				line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
				ps, ok := products[it.ProductID]
				if !ok {
					ps = &ProductSales{ProductID: it.ProductID, Name: it.Name, Revenue: decimal.Zero}
					products[it.ProductID] = ps
				}
				ps.Quantity += it.Quantity
				ps.Revenue = ps.Revenue.Add(line)
				categories[it.Category] = categories[it.Category].Add(line)
			}
		case !o.CreatedAt.Before(prevFrom) && counted:
			prevOrders++
			prevRevenue = prevRevenue.Add(o.Total)
		}
	}

	ov.Customers = len(customers)
	ov.AverageOrderValue = decimal.Zero
	if ov.Orders > 0 {
		ov.AverageOrderValue = ov.Revenue.Div(decimal.NewFromInt(int64(ov.Orders))).Round(2)
	}
	ov.RevenueGrowth = growth(ov.Revenue, prevRevenue)
	ov.OrderGrowth = growth(decimal.NewFromInt(int64(ov.Orders)), decimal.NewFromInt(int64(prevOrders)))

	ov.TopProducts = make([]ProductSales, 0, len(products))
	for _, ps := range products {
		ov.TopProducts = append(ov.TopProducts, *ps)
	}
	sort.Slice(ov.TopProducts, func(i, j int) bool {
		a, b := ov.TopProducts[i], ov.TopProducts[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.ProductID < b.ProductID
	})
	if len(ov.TopProducts) > topProductLimit {
		ov.TopProducts = ov.TopProducts[:topProductLimit]
	}

	ov.SalesByCategory = make([]CategorySales, 0, len(categories))
	for c, rev := range categories {
		ov.SalesByCategory = append(ov.SalesByCategory, CategorySales{Category: c, Revenue: rev})
	}
	sort.Slice(ov.SalesByCategory, func(i, j int) bool {
		a, b := ov.SalesByCategory[i], ov.SalesByCategory[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.Category < b.Category
	})
	ov.MonthlyRevenue = months
	return ov
}

// growth is the percentage change from prev to cur, rounded to one decimal.
// No previous activity reports zero.
func growth(cur, prev pricing.Money) float64 {
	if !prev.IsPositive() {
		return 0
	}
	pct, _ := cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	return pct
}
