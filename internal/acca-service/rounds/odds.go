package rounds

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseOdds aceita odds fracionais ("2/1") ou decimais ("3.0") e devolve a
// forma normalizada + o multiplicador decimal. Fracional a/b vira a/b + 1
// (stake incluso). Odds decimais abaixo de 1.0 não existem.
func ParseOdds(raw string) (fractional string, decimal float64, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", 0, fmt.Errorf("%w: empty odds", ErrInvalidInput)
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || n <= 0 || d <= 0 {
			return "", 0, fmt.Errorf("%w: bad fractional odds %q", ErrInvalidInput, raw)
		}
		return strings.TrimSpace(num) + "/" + strings.TrimSpace(den), n/d + 1, nil
	}

	dec, perr := strconv.ParseFloat(s, 64)
	if perr != nil || dec < 1 {
		return "", 0, fmt.Errorf("%w: bad odds %q", ErrInvalidInput, raw)
	}
	return s, dec, nil
}
