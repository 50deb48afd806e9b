package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// PasswordRule is one predicate a new password must satisfy.
type PasswordRule struct {
	Message string
	Check   func(string) bool
}

// PasswordPolicy lists rules in the order their messages are reported.
type PasswordPolicy []PasswordRule

// DefaultPasswordPolicy applies to every password change.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength(8),
	containsRune("password must contain an uppercase letter", unicode.IsUpper),
	containsRune("password must contain a lowercase letter", unicode.IsLower),
	containsRune("password must contain a number", unicode.IsDigit),
	containsRune("password must contain a special character", isSymbol),
}

// MinLength requires at least n characters.
func MinLength(n int) PasswordRule {
	return PasswordRule{
		Message: fmt.Sprintf("password must be at least %d characters", n),
		Check:   func(s string) bool { return utf8.RuneCountInString(s) >= n },
	}
}

// Violations returns the message of every rule the password fails.
func (p PasswordPolicy) Violations(password string) []string {
	var out []string
	for _, rule := range p {
		if !rule.Check(password) {
			out = append(out, rule.Message)
		}
	}
	return out
}

func containsRune(msg string, pred func(rune) bool) PasswordRule {
	return PasswordRule{
		Message: msg,
		Check: func(s string) bool {
			for _, r := range s {
				if pred(r) {
					return true
				}
			}
			return false
		},
	}
}

func isSymbol(r rune) bool {
	return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
