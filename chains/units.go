package chains

import (
	"fmt"
	"math/big"
	"strings"

	gateway "github.com/iotaevm/gateway"
)

// pow10 returns 10^n as a big.Int.
func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// FormatUnits renders a raw integer amount at the given decimal precision
// with full precision preserved: no rounding, trailing fractional zeros
// trimmed. A nil or zero amount renders "0".
func FormatUnits(x *big.Int, decimals uint8) string {
	if x == nil || x.Sign() == 0 {
		return "0"
	}
	neg := x.Sign() < 0
	abs := new(big.Int).Abs(x)

	q, r := new(big.Int).QuoRem(abs, pow10(int(decimals)), new(big.Int))
	s := q.String()
	if r.Sign() != 0 {
		frac := fmt.Sprintf("%0*s", int(decimals), r.String())
		frac = strings.TrimRight(frac, "0")
		s += "." + frac
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseUnits converts a decimal string into a raw integer amount at the
// given precision. More fractional digits than the precision allows is an
// error rather than silent truncation.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return nil, gateway.Validationf("empty amount")
	}
	neg := false
	switch in[0] {
	case '-':
		neg = true
		in = in[1:]
	case '+':
		in = in[1:]
	}

	intPart := in
	fracPart := ""
	if i := strings.IndexByte(in, '.'); i >= 0 {
		intPart, fracPart = in[:i], in[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, gateway.Validationf("malformed amount %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, gateway.Validationf("malformed amount %q", s)
	}
	if len(fracPart) > int(decimals) {
		return nil, gateway.Validationf("amount %q exceeds %d decimal places", s, decimals)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, gateway.Validationf("malformed amount %q", s)
	}
	whole.Mul(whole, pow10(int(decimals)))

	if fracPart != "" {
		frac, ok := new(big.Int).SetString(fracPart, 10)
		if !ok {
			return nil, gateway.Validationf("malformed amount %q", s)
		}
		frac.Mul(frac, pow10(int(decimals)-len(fracPart)))
		whole.Add(whole, frac)
	}
	if neg {
		whole.Neg(whole)
	}
	return whole, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FormatGwei renders a wei amount as a decimal gwei string with the unit
// suffix, full precision: 22.5e9 wei is "22.5 gwei".
func FormatGwei(wei *big.Int) string {
	return FormatUnits(wei, 9) + " gwei"
}

// FormatEtherWei renders a wei amount in 18-decimal ether units truncated
// to at most the given number of decimal places. This is the display form
// for gas costs: 5.67e14 wei at 6 places is "0.000567".
func FormatEtherWei(wei *big.Int, places int) string {
	if places < 0 {
		places = 0
	}
	if places > 18 {
		places = 18
	}
	if wei == nil {
		return "0"
	}
	scaled := new(big.Int).Quo(wei, pow10(18-places))
	return FormatUnits(scaled, uint8(places))
}
