package core

// Summary is the aggregate over a user's full transaction set.
type Summary struct {
	TotalIncome  Money
	TotalExpense Money
	// Balance is always TotalIncome - TotalExpense; it may be negative.
	Balance Money
	// Recent holds the five most recent transactions by occurrence date.
	Recent []Transaction
}

// RecentLimit is how many transactions the summary carries.
const RecentLimit = 5

// NewSummary derives the balance from the two totals.
func NewSummary(income, expense Money, recent []Transaction) Summary {
	return Summary{
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      Money{Cents: income.Cents - expense.Cents},
		Recent:       recent,
	}
}
