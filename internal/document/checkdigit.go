package document

// nationalCheckDigit weights body digit i by (len(digits) - i), where
// len(digits) counts the check digit too, and compares sum mod 10 with the
// last digit.
func nationalCheckDigit(digits string) bool {
	n := len(digits)
	if n < 2 {
		return false
	}
	sum := 0
	for i := 0; i < n-1; i++ {
		sum += int(digits[i]-'0') * (n - i)
	}
	return sum%10 == int(digits[n-1]-'0')
}

// foreignCheckDigit weights the first 7 digits by (i + 1) and compares sum
// mod 10 with the 8th.
func foreignCheckDigit(digits string) bool {
	if len(digits) != 8 {
		return false
	}
	sum := 0
	for i := 0; i < 7; i++ {
		sum += int(digits[i]-'0') * (i + 1)
	}
	return sum%10 == int(digits[7]-'0')
}

// passportCheckDigit weights all 7 digits by (i + 1); the number is valid
// when the weighted sum is a multiple of 10. There is no trailing digit
// comparison for passports.
func passportCheckDigit(digits string) bool {
	if len(digits) != 7 {
		return false
	}
	sum := 0
	for i := 0; i < 7; i++ {
		sum += int(digits[i]-'0') * (i + 1)
	}
	return sum%10 == 0
}
