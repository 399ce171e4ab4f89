package canon

import (
	"regexp"

	"github.com/roach88/shadowai/internal/ir"
)

var (
	reUUID     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	reHex      = regexp.MustCompile(`^[0-9a-fA-F]{32,}$`)
	reBase64   = regexp.MustCompile(`^[A-Za-z0-9+/_-]{24,}={0,2}$`)
	reEmail    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reIPv4     = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)
	reNumericID = regexp.MustCompile(`^[0-9]{6,}$`)
)

// abstractToken checks s against the fixed token-type precedence order —
// UUID, hex, base64-like, email, IPv4, numeric ID — and returns the
// redaction token and PII kind for the first type that matches. The order
// matters: a UUID is also valid hex, and must be classified as a UUID.
func abstractToken(s string) (token string, kind ir.PIIKind, matched bool) {
	switch {
	case reUUID.MatchString(s):
		return ":uuid", ir.PIIKindUUID, true
	case reHex.MatchString(s):
		return ":hex", ir.PIIKindHex, true
	case reBase64.MatchString(s):
		return ":tok", ir.PIIKindBase64Like, true
	case reEmail.MatchString(s):
		return ":email", ir.PIIKindEmail, true
	case reIPv4.MatchString(s) && isValidIPv4(s):
		return ":ip", ir.PIIKindIPv4, true
	case reNumericID.MatchString(s):
		return ":id", ir.PIIKindNumericID, true
	default:
		return s, "", false
	}
}

func isValidIPv4(s string) bool {
	m := reIPv4.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	for _, g := range m[1:] {
		if len(g) > 1 && g[0] == '0' {
			return false
		}
		n := 0
		for _, c := range g {
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}
