package hotpepper

import "strings"

type budgetBand struct {
	code     string
	min, max int
}

// budgetBands is ordered by price, which is also the order codes are reported in.
var budgetBands = []budgetBand{
	{"B009", 0, 500},
	{"B010", 501, 1000},
	{"B011", 1001, 1500},
	{"B001", 1501, 2000},
	{"B002", 2001, 3000},
	{"B003", 3001, 4000},
	{"B008", 4001, 5000},
	{"B004", 5001, 7000},
	{"B005", 7001, 10000},
	{"B006", 10001, 15000},
	{"B012", 15001, 20000},
	{"B013", 20001, 30000},
	{"B014", 30001, 100000},
}

// BudgetCode returns up to two comma-joined budget codes overlapping [minPrice, maxPrice].
func BudgetCode(minPrice, maxPrice int) (string, bool) {
	if minPrice > maxPrice {
		return "", false
	}
	codes := make([]string, 0, 2)
	for _, band := range budgetBands {
		if band.min <= maxPrice && band.max >= minPrice {
			codes = append(codes, band.code)
			if len(codes) == 2 {
				break
			}
		}
	}
	if len(codes) == 0 {
		return "", false
	}
	return strings.Join(codes, ","), true
}
