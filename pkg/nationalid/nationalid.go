// Package nationalid validates Turkish national identity numbers.
package nationalid

// Valid reports whether id is a well-formed national identity number:
// 11 digits, non-zero leading digit, and both checksum digits correct.
// Digit 10 is ((odd positions)*7 - (even positions)) mod 10 over the first
// nine digits; digit 11 is the sum of the first ten mod 10.
func Valid(id string) bool {
	if len(id) != 11 || id[0] == '0' {
		return false
	}

	var digits [11]int
	for i := 0; i < 11; i++ {
		c := id[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}

	odd := digits[0] + digits[2] + digits[4] + digits[6] + digits[8]
	even := digits[1] + digits[3] + digits[5] + digits[7]
	d10 := ((odd*7-even)%10 + 10) % 10

	sum := 0
	for i := 0; i < 10; i++ {
		sum += digits[i]
	}

	return digits[9] == d10 && digits[10] == sum%10
}
