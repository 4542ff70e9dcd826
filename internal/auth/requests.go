package auth

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
)

// RegisterRequest carries a registration for either principal kind. The
// business fields are required only for vendors.
type RegisterRequest struct {
	Role        string   `json:"role"`
	Phone       string   `json:"phone"`
	Name        string   `json:"name"`
	OwnerName   string   `json:"owner_name"`
	Address     string   `json:"address"`
	Location    string   `json:"location"`
	City        string   `json:"city"`
	Province    string   `json:"province"`
	CategoryIDs []string `json:"category_ids"`
	DeviceInfo  string   `json:"device_info"`
}

// Validate checks the shape of r.
func (r RegisterRequest) Validate() error {
	nameRules := []validation.Rule{validation.Length(0, 200)}
	if r.Role == string(identity.RoleVendor) {
		nameRules = append(nameRules, validation.Required)
	}
	fields := []*validation.FieldRules{
		validation.Field(&r.Role, validation.Required, validation.In(string(identity.RoleUser), string(identity.RoleVendor))),
		validation.Field(&r.Phone, validation.Required, validation.Length(5, 32)),
		validation.Field(&r.Name, nameRules...),
	}
	if r.Role == string(identity.RoleVendor) {
		fields = append(fields,
			validation.Field(&r.OwnerName, validation.Required, validation.Length(1, 200)),
			validation.Field(&r.Address, validation.Required, validation.Length(1, 500)),
			validation.Field(&r.Location, validation.Required, validation.Length(1, 200)),
			validation.Field(&r.City, validation.Required, validation.Length(1, 100)),
			validation.Field(&r.Province, validation.Required, validation.Length(1, 100)),
			validation.Field(&r.CategoryIDs, validation.Required),
		)
	}
	return asValidation(validation.ValidateStruct(&r, fields...))
}

// VerifyRequest carries a phone and the code delivered to it. Role narrows
// the lookup when the phone is registered as both a user and a vendor.
type VerifyRequest struct {
	Phone      string `json:"phone"`
	OTP        string `json:"otp"`
	Role       string `json:"role"`
	DeviceInfo string `json:"device_info"`
}

// Validate checks the shape of r.
func (r VerifyRequest) Validate() error {
	return asValidation(validation.ValidateStruct(&r,
		validation.Field(&r.Phone, validation.Required, validation.Length(5, 32)),
		validation.Field(&r.OTP, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&r.Role, validation.In(string(identity.RoleUser), string(identity.RoleVendor))),
	))
}

func asValidation(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation(err.Error())
}
