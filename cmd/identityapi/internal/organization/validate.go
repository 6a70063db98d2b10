package organization

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field limits.
const (
	MaxOrganizationNameLength        = 100
	MaxOrganizationDescriptionLength = 500
	MaxRoleNameLength                = 50
	MaxRoleDescriptionLength         = 200
	MaxEmailLength                   = 255
	MaxURLLength                     = 2048
)

var colorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

// ValidateOrganizationName checks a name for a new or renamed organization.
func ValidateOrganizationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxOrganizationNameLength {
		return invalid("name", "must be at most %d characters", MaxOrganizationNameLength)
	}
	return nil
}

func ValidateOrganizationDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxOrganizationDescriptionLength {
		return invalid("description", "must be at most %d characters", MaxOrganizationDescriptionLength)
	}
	return nil
}

func ValidateRoleName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxRoleNameLength {
		return invalid("name", "must be at most %d characters", MaxRoleNameLength)
	}
	return nil
}

func ValidateRoleDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxRoleDescriptionLength {
		return invalid("description", "must be at most %d characters", MaxRoleDescriptionLength)
	}
	return nil
}

// ValidateColor accepts an empty color or a #RGB / #RRGGBB hex value.
func ValidateColor(color string) error {
	if color == "" || colorPattern.MatchString(color) {
		return nil
	}
	return invalid("color", "must be a hex color such as #FF0000")
}

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return invalid("email", "must not be empty")
	}
	if len(email) > MaxEmailLength {
		return invalid("email", "must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("email", "is not a valid address")
	}
	return nil
}

// ValidateImageURL accepts an empty value (clears the image) or an absolute
// http(s) URL.
func ValidateImageURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxURLLength {
		return invalid(field, "must be at most %d characters", MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid(field, "must be an absolute http or https URL")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
