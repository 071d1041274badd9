package symbol

import (
	"strings"
)

type Symbol struct {
	Base  string
	Quote string
}

// Exchange returns the futures symbol form used on the wire (e.g. BTCUSDT).
func (s Symbol) Exchange() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Display returns BASE/QUOTE.
func (s Symbol) Display() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "FDUSD", "TUSD"}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	s = separators.Replace(s)

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return checked(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return checked(s[:len(s)-len(quote)], quote)
		}
	}

	return Symbol{}
}

var separators = strings.NewReplacer("-", "/", "_", "/")

func checked(base, quote string) Symbol {
	if !alnum(base) || !alnum(quote) {
		return Symbol{}
	}
	return Symbol{Base: base, Quote: quote}
}

func alnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Normalize converts "btc/usdt", "BTC/USDT:USDT" or "btcusdt" to BTCUSDT.
// Unparseable input returns "".
func Normalize(s string) string {
	return Parse(s).Exchange()
}

// NormalizeList normalizes and de-duplicates symbols, keeping first-seen order.
// Entries that cannot be parsed are dropped and reported in rejected.
func NormalizeList(symbols []string) (out []string, rejected []string) {
	if len(symbols) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out = make([]string, 0, len(symbols))
	for _, s := range symbols {
		if strings.TrimSpace(s) == "" {
			continue
		}
		norm := Normalize(s)
		if norm == "" {
			rejected = append(rejected, s)
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out, rejected
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
