package security

import (
	"github.com/azniosman/vms/internal/core/domain"
	"github.com/azniosman/vms/internal/core/port"
)

const (
	// DefaultMinPasswordLength matches the operator console's historical minimum.
	DefaultMinPasswordLength = 12
	defaultMinZxcvbnScore    = 2
)

// PasswordPolicy enforces length, the four character classes and a zxcvbn floor.
type PasswordPolicy struct {
	minLength int
	minScore  int
}

// NewPasswordPolicy builds a policy. Non-positive lengths fall back to the default.
func NewPasswordPolicy(minLength int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	return &PasswordPolicy{minLength: minLength, minScore: defaultMinZxcvbnScore}
}

// Validator returns the rule chain for one candidate, seeding zxcvbn with the username.
func (p *PasswordPolicy) Validator(ctx domain.PasswordContext) *PasswordValidator {
	var inputs []string
	if ctx.Username != "" {
		inputs = append(inputs, ctx.Username)
	}
	return NewPasswordValidator(
		MinLengthRule(p.minLength),
		RequireClassRule(ClassUpper),
		RequireClassRule(ClassLower),
		RequireClassRule(ClassDigit),
		RequireClassRule(ClassSpecial),
		RequirePasswordStrengthRule(p.minScore, inputs...),
	)
}

// Validate applies the rule chain to password.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	return p.Validator(ctx).Validate(password)
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
