package fixed

func Min(a, b Point) Point {
	if a.Lt(b) {
		return a
	}
	return b
}

func Max(a, b Point) Point {
	if a.Gt(b) {
		return a
	}
	return b
}

// Clamp raises p to lo first and then caps it at hi, so hi wins when the
// bounds cross.
func Clamp(p, lo, hi Point) Point {
	return Min(Max(p, lo), hi)
}

func Sum(points []Point) Point {
	sum := Zero
	for _, point := range points {
		sum = sum.Add(point)
	}
	return sum
}

func Mean(points []Point) Point {
	if len(points) == 0 {
		return Zero
	}
	return Sum(points).DivInt(len(points))
}
