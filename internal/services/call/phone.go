package call

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/warmleadnetwork/voice-call-service/internal/domain"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// NormalizePhoneNumber converts common human formats to E.164. Formatting
// characters are stripped; bare 10-digit and 1-prefixed 11-digit numbers are
// treated as domestic and given the +1 prefix. Normalization is idempotent.
func NormalizePhoneNumber(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", domain.NewCallError(domain.ErrCodeInvalidPhoneNumber, "phone number is empty")
	}

	hasPlus := strings.HasPrefix(cleaned, "+")
	var digits strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '(' || r == ')' || r == '-' || r == '.' || r == '+':
			// formatting noise
		default:
			return "", domain.NewCallError(domain.ErrCodeInvalidPhoneNumber,
				fmt.Sprintf("phone number %q contains invalid characters", raw))
		}
	}

	number := digits.String()
	switch {
	case hasPlus:
		number = "+" + number
	case len(number) == 10:
		number = "+1" + number
	case len(number) == 11 && strings.HasPrefix(number, "1"):
		number = "+" + number
	default:
		number = "+" + number
	}

	if !e164Pattern.MatchString(number) {
		return "", domain.NewCallErrorWithHint(domain.ErrCodeInvalidPhoneNumber,
			fmt.Sprintf("phone number %q is not a valid E.164 number (normalized to %q)", raw, number),
			"use the form +14155550100")
	}
	return number, nil
}
