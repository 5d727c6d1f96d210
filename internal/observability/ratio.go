package observability

import "strconv"

func parseRatio(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, nil
	}
	if f > 1 {
		return 1, nil
	}
	return f, nil
}
