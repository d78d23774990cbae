package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

var errPhoneInvalid = errors.New("must be a valid phone number")

const (
	maxDisplayNameLength = 120
	maxNameLength        = 200
)

// ValidateEmail checks the address is syntactically valid. It never looks up
// MX records.
func ValidateEmail(email string) error {
	return validation.Validate(strings.TrimSpace(email),
		validation.Required,
		is.Email,
	)
}

// IsValidEmail is the boolean form of ValidateEmail.
func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}

// EmailRequest is the body of the password reset and email verification endpoints.
type EmailRequest struct {
	Email string `json:"email"`
}

// Validate implements validation.Validatable.
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// Validate implements validation.Validatable. Empty strings are allowed
// and mean "clear this field".
func (p ProfileUpdate) Validate() error {
	if p.IsEmpty() {
		return errors.New("display_name or profile is required")
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.DisplayName, validation.Length(0, maxDisplayNameLength)),
	)
	if err != nil {
		return err
	}
	if p.Profile == nil {
		return nil
	}
	return p.Profile.Validate()
}

// Validate implements validation.Validatable.
func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Length(0, maxNameLength)),
		validation.Field(&p.LastName, validation.Length(0, maxNameLength)),
		validation.Field(&p.Country, is.CountryCode2),
		validation.Field(&p.Phone, validation.By(phoneRule(p.Country))),
	)
}

// NormalizePhone renders a phone number in E.164, using the profile country
// as the default region for numbers without a leading +.
func NormalizePhone(phone string, country *string) (string, error) {
	region := ""
	if country != nil {
		region = strings.ToUpper(strings.TrimSpace(*country))
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(phone), region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errPhoneInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func phoneRule(country *string) validation.RuleFunc {
	return func(value interface{}) error {
		value, isNil := validation.Indirect(value)
		if isNil {
			return nil
		}
		phone, ok := value.(string)
		if !ok || phone == "" {
			return nil
		}
		if _, err := NormalizePhone(phone, country); err != nil {
			return errPhoneInvalid
		}
		return nil
	}
}

// normalizeProfileUpdate trims strings, upper-cases the country and rewrites
// phones in E.164.
func normalizeProfileUpdate(p ProfileUpdate) ProfileUpdate {
	out := ProfileUpdate{DisplayName: trimmed(p.DisplayName)}
	if p.Profile == nil {
		return out
	}
	profile := &Profile{
		FirstName: trimmed(p.Profile.FirstName),
		LastName:  trimmed(p.Profile.LastName),
		Phone:     trimmed(p.Profile.Phone),
		Country:   trimmed(p.Profile.Country),
	}
	if profile.Country != nil {
		upper := strings.ToUpper(*profile.Country)
		profile.Country = &upper
	}
	if profile.Phone != nil && *profile.Phone != "" {
		if e164, err := NormalizePhone(*profile.Phone, profile.Country); err == nil {
			profile.Phone = &e164
		}
	}
	out.Profile = profile
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
