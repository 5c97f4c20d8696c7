package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordValidationError describes the first password rule a candidate broke.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator runs rules in order and stops at the first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	return &PasswordValidator{rules: append([]PasswordRule(nil), rules...)}
}

// Validate returns a *PasswordValidationError for the first failing rule.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// CharacterClass is one of the classes a strong operator password must mix.
type CharacterClass struct {
	Code  string
	Label string
	Match func(rune) bool
}

var (
	ClassUpper   = CharacterClass{Code: "uppercase", Label: "an uppercase letter", Match: unicode.IsUpper}
	ClassLower   = CharacterClass{Code: "lowercase", Label: "a lowercase letter", Match: unicode.IsLower}
	ClassDigit   = CharacterClass{Code: "digit", Label: "a digit", Match: unicode.IsDigit}
	ClassSpecial = CharacterClass{Code: "special", Label: "a special character", Match: func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}}
)

// RequireClassRule rejects passwords containing no character of class.
func RequireClassRule(class CharacterClass) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if class.Match(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    class.Code,
			Message: "password must include " + class.Label,
		}
	})
}

// RequireDifferentFrom ensures the new password differs from the provided comparator.
func RequireDifferentFrom(comparator string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if comparator != "" && password == comparator {
			return &PasswordValidationError{
				Code:    "different",
				Message: "new password must be different from current password",
			}
		}
		return nil
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score (0-4).
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	if minScore > 4 {
		minScore = 4
	}
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score >= minScore {
			return nil
		}
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too easy to guess; choose a less predictable value",
		}
	})
}
