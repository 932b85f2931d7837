package utils

import (
	"math"
	"strconv"
)

// ToMinorUnits converts a major-unit amount (25.00) to the integer the
// provider expects (2500).
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}

func FormatMoney(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
