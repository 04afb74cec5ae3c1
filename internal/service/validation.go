package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pesio-ai/be-procurement/internal/platform/errors"
	"github.com/pesio-ai/be-procurement/internal/repository"
)

// lengthRule bounds an optional text input to its column width.
type lengthRule struct {
	field string
	value *string
	limit int
}

func maxLen(field string, value *string, limit int) lengthRule {
	return lengthRule{field: field, value: value, limit: limit}
}

// checkLengths reports the first trimmed value longer than its limit.
func checkLengths(rules ...lengthRule) error {
	for _, r := range rules {
		if r.value == nil {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(*r.value)) > r.limit {
			return errors.InvalidInput(r.field, fmt.Sprintf("must be at most %d characters", r.limit))
		}
	}
	return nil
}

func vendorLengthRules(
	name, category, contact, phone, email, bankName, accountName, accountNumber, bankCode *string,
) []lengthRule {
	return []lengthRule{
		maxLen("name", name, repository.MaxNameLen),
		maxLen("category", category, repository.MaxCategoryLen),
		maxLen("contact_person", contact, repository.MaxContactLen),
		maxLen("phone", phone, repository.MaxPhoneLen),
		maxLen("email", email, repository.MaxEmailLen),
		maxLen("bank_name", bankName, repository.MaxBankNameLen),
		maxLen("account_name", accountName, repository.MaxBankNameLen),
		maxLen("account_number", accountNumber, repository.MaxAccountNumberLen),
		maxLen("bank_code", bankCode, repository.MaxBankCodeLen),
	}
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
