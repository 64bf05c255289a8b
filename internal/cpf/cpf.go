// Package cpf validates Brazilian CPF identity numbers: 11 digits where the
// last two are check digits computed from the first nine.
package cpf

// Valid reports whether value is an 11-digit CPF whose check digits match the
// weighted-sum-mod-11 algorithm. Formatting characters are not accepted; the
// caller strips them first.
func Valid(value string) bool {
	if len(value) != 11 {
		return false
	}
	var digits [11]int
	for i := 0; i < 11; i++ {
		c := value[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}

	return digits[9] == checkDigit(digits[:9], 10) &&
		digits[10] == checkDigit(digits[:10], 11)
}

// checkDigit computes one verification digit: weights descend from firstWeight
// down to 2, remainder below 2 maps to 0, anything else to 11 minus it.
func checkDigit(digits []int, firstWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (firstWeight - i)
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}
