package security

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

var (
	ErrEmptyPassword    = errors.New("password is required")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooWeak  = errors.New("password is too weak")
)

// PasswordPolicy is an operator-configured signup rule. The zero value accepts any
// non-empty password.
type PasswordPolicy struct {
	MinLength int // in characters
	MinScore  int // zxcvbn score 0-4; 0 disables the strength check
}

func (p PasswordPolicy) Check(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if n := utf8.RuneCountInString(password); n < p.MinLength {
		return fmt.Errorf("%w: %d characters, need %d", ErrPasswordTooShort, n, p.MinLength)
	}
	if p.MinScore > 0 {
		if score := zxcvbn.PasswordStrength(password, nil).Score; score < p.MinScore {
			return fmt.Errorf("%w: score %d, need %d", ErrPasswordTooWeak, score, p.MinScore)
		}
	}
	return nil
}
