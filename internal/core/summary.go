package core

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID int64
	Amount     Money
}

// MonthOverview is a compact financial summary for a reporting period.
// Month is 1-12, or 0 when the overview covers the whole year.
type MonthOverview struct {
	Year         int
	Month        int
	TotalExpense Money
	TotalIncome  Money
	Balance      Money
	ByCategory   []CategoryAmount

	// Installment totals come from the scheduler and keep the source's
	// floating-point split, so they are carried as pesos rather than cents.
	InstallmentsPending float64
	InstallmentsPaid    float64
}
