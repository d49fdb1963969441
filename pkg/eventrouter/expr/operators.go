package expr

// CompareNumbers orders left against right.
// Returns -1, 0 or 1, and false when either side is not numeric.
func CompareNumbers(left, right any) (int, bool) {
	l, ok := ToFloat64(left)
	if !ok {
		return 0, false
	}
	r, ok := ToFloat64(right)
	if !ok {
		return 0, false
	}
	switch {
	case l < r:
		return -1, true
	case l > r:
		return 1, true
	default:
		return 0, true
	}
}

// GreaterThan reports left > right for numeric values.
func GreaterThan(left, right any) bool {
	c, ok := CompareNumbers(left, right)
	return ok && c > 0
}

// GreaterOrEqual reports left >= right for numeric values.
func GreaterOrEqual(left, right any) bool {
	c, ok := CompareNumbers(left, right)
	return ok && c >= 0
}

// LessThan reports left < right for numeric values.
func LessThan(left, right any) bool {
	c, ok := CompareNumbers(left, right)
	return ok && c < 0
}

// LessOrEqual reports left <= right for numeric values.
func LessOrEqual(left, right any) bool {
	c, ok := CompareNumbers(left, right)
	return ok && c <= 0
}
