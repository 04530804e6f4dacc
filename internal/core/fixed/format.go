package fixed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// fracDigits is the number of decimal digits kept when formatting or parsing.
const fracDigits = 9

const fracPow = 1_000_000_000

var ErrSyntax = errors.New("fixed: invalid decimal")

// String formats f as a decimal with at most nine fractional digits,
// truncated, trailing zeros trimmed.
func (f Fixed) String() string {
	var b strings.Builder
	m := absU64(int64(f))
	if f < 0 {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatUint(m>>Shift, 10))
	frac := (m & Mask) * fracPow >> Shift
	if frac != 0 {
		s := strconv.FormatUint(frac, 10)
		b.WriteByte('.')
		b.WriteString(strings.Repeat("0", fracDigits-len(s)))
		b.WriteString(strings.TrimRight(s, "0"))
	}
	return b.String()
}

// Parse reads a decimal such as "12", "-0.25" or "1.1". A trailing '%'
// divides by one hundred ("10%" == 0.1). Digits past the ninth fractional
// place are rejected rather than rounded.
func Parse(s string) (Fixed, error) {
	in := strings.TrimSpace(s)
	percent := strings.HasSuffix(in, "%")
	if percent {
		in = strings.TrimSuffix(in, "%")
	}
	negative := false
	if in != "" && (in[0] == '-' || in[0] == '+') {
		negative = in[0] == '-'
		in = in[1:]
	}
	intPart, fracPart, _ := strings.Cut(in, ".")
	if intPart == "" && fracPart == "" || !digits(intPart) || !digits(fracPart) {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if len(fracPart) > fracDigits {
		return 0, fmt.Errorf("%w: %q has more than %d fractional digits", ErrSyntax, s, fracDigits)
	}
	whole := int64(0)
	if intPart != "" {
		v, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		whole = v
	}
	num := int64(0)
	den := int64(1)
	if fracPart != "" {
		v, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		num = v
		for range fracPart {
			den *= 10
		}
	}
	var out Fixed
	if percent {
		out = FromRatio(whole, 100).Add(FromRatio(num, den*100))
	} else {
		out = FromInt(whole).Add(FromRatio(num, den))
	}
	if negative {
		out = out.Neg()
	}
	return out, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustParse is Parse for constants in tests and tables.
func MustParse(s string) Fixed {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Fixed) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fixed) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
