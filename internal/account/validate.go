package account

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes
	maxPasswordBytes = 72
	minUsernameLen   = 3
	maxUsernameLen   = 50
	maxNameLen       = 100
)

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	MobileNumber string `json:"mobileNumber"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
}

func (in RegisterInput) normalized() RegisterInput {
	in.Username = normalizeUsername(in.Username)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return in
}

func (in RegisterInput) validate() error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if err := validateMobile(in.MobileNumber); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.FirstName) > maxNameLen || utf8.RuneCountInString(in.LastName) > maxNameLen {
		return invalidInput("names must be at most %d characters", maxNameLen)
	}
	if in.Email != "" {
		addr, err := mail.ParseAddress(in.Email)
		if err != nil || addr.Address != in.Email {
			return invalidInput("email is malformed")
		}
	}
	return nil
}

// normalizeUsername trims surrounding whitespace. Comparison stays case-sensitive.
func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

func validateUsername(u string) error {
	n := utf8.RuneCountInString(u)
	if n < minUsernameLen || n > maxUsernameLen {
		return invalidInput("username must be %d to %d characters", minUsernameLen, maxUsernameLen)
	}
	if strings.IndexFunc(u, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return invalidInput("username must not contain whitespace")
	}
	return nil
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return invalidInput("password must be at least %d characters", minPasswordLen)
	}
	if len(pw) > maxPasswordBytes {
		return invalidInput("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func validateMobile(m string) error {
	if !mobilePattern.MatchString(m) {
		return invalidInput("mobile number must be 10 digits")
	}
	return nil
}
