package core

// Category is one fixed classification label for a transaction. The set is
// closed: values outside the taxonomy are rejected by every other component.
type Category string

const (
	// Income
	Salary      Category = "Salary"
	ArtIncome   Category = "Art Income"
	Grants      Category = "Grants & Scholarships"
	Bonus       Category = "Bonus & Allowance"
	Investment  Category = "Investment"
	GiftsIn     Category = "Gifts Received"
	Refunds     Category = "Refunds"
	OtherIncome Category = "Other Income"

	// Living basic
	Food      Category = "Food & Drink"
	Housing   Category = "Housing & Utilities"
	Transport Category = "Transport"

	// Health
	Medical     Category = "Medical"
	Fitness     Category = "Fitness"
	Supplements Category = "Supplements"

	// Personal
	Clothing      Category = "Clothing"
	DailySupplies Category = "Daily Supplies"
	Cleaning      Category = "Cleaning"
	Electronics   Category = "Electronics (3C)"
	PersonalCare  Category = "Personal Care"

	// Learning
	Education Category = "Education & Books"
	Software  Category = "Software & Cloud"

	// Art creation
	ArtMaterials Category = "Art Materials"
	Equipment    Category = "Equipment"
	Maintenance  Category = "Maintenance"

	// Project & exhibition
	ExhibitionProd Category = "Exhibition Production"
	SpaceLogistics Category = "Space & Logistics"
	Labor          Category = "Labor & Outsource"

	// Leisure
	Entertainment Category = "Entertainment"
	Travel        Category = "Travel"

	// Finance & admin
	Fees         Category = "Bank & Fees"
	InsuranceTax Category = "Insurance & Tax"
	Telecom      Category = "Telecom & Internet"

	// Family & social
	Family   Category = "Family Support"
	GiftsOut Category = "Gifts Given"

	OtherExpense Category = "Other Expense"
)

// Partition splits the taxonomy into income and expense. It is derived from
// group membership, never stored.
type Partition string

const (
	Income  Partition = "income"
	Expense Partition = "expense"
)

// Group is a named display bucket of related categories.
type Group struct {
	Name       string
	Categories []Category
}

// IncomeGroup is the one group whose categories form the income partition.
const IncomeGroup = "Income Classification"

// Groups lists every category exactly once, in display order. This order is
// also the deterministic tie-break for aggregation rankings.
var Groups = []Group{
	{IncomeGroup, []Category{Salary, ArtIncome, Grants, Bonus, Investment, GiftsIn, Refunds, OtherIncome}},
	{"1. Living Basic", []Category{Food, Housing, Transport}},
	{"2. Health & Body", []Category{Medical, Fitness, Supplements}},
	{"3. Personal & Daily", []Category{Clothing, DailySupplies, Cleaning, Electronics, PersonalCare}},
	{"4. Learning & Tools", []Category{Education, Software}},
	{"5. Art Creation", []Category{ArtMaterials, Equipment, Maintenance}},
	{"6. Project & Exhibition", []Category{ExhibitionProd, SpaceLogistics, Labor}},
	{"7. Leisure", []Category{Entertainment, Travel}},
	{"8. Finance & Admin", []Category{Fees, InsuranceTax, Telecom}},
	{"9. Family & Social", []Category{Family, GiftsOut}},
	{"Other", []Category{OtherExpense}},
}

type categoryInfo struct {
	group string
	order int
}

var categoryIndex = buildCategoryIndex()

func buildCategoryIndex() map[Category]categoryInfo {
	idx := make(map[Category]categoryInfo)
	order := 0
	for _, g := range Groups {
		for _, c := range g.Categories {
			idx[c] = categoryInfo{group: g.Name, order: order}
			order++
		}
	}
	return idx
}

// Valid reports whether c is a member of the taxonomy.
func (c Category) Valid() bool {
	_, ok := categoryIndex[c]
	return ok
}

// PartitionOf returns Income for categories in the income group and Expense
// for everything else in the taxonomy. Unknown categories map to Expense;
// callers are expected to validate membership first.
func PartitionOf(c Category) Partition {
	if info, ok := categoryIndex[c]; ok && info.group == IncomeGroup {
		return Income
	}
	return Expense
}

// GroupOf returns the display group name for c, or "" for unknown categories.
func GroupOf(c Category) string {
	return categoryIndex[c].group
}

// CategoriesOf returns the ordered categories of the named group.
func CategoriesOf(group string) []Category {
	for _, g := range Groups {
		if g.Name == group {
			out := make([]Category, len(g.Categories))
			copy(out, g.Categories)
			return out
		}
	}
	return nil
}

// Categories returns every category in taxonomy order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryIndex))
	for _, g := range Groups {
		out = append(out, g.Categories...)
	}
	return out
}

// CategoryOrder returns the taxonomy position of c, used as a deterministic
// tie-break when ranking categories by amount. Unknown categories sort last.
func CategoryOrder(c Category) int {
	if info, ok := categoryIndex[c]; ok {
		return info.order
	}
	return len(categoryIndex)
}
