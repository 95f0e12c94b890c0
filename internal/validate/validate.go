package validate

import (
	"github.com/go-playground/validator/v10"

	"github.com/mr1hm/go-civdef-map/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(contactLevel, models.EmergencyContact{})
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return validate.Struct(s)
}

// Contact also enforces that an email-preferred contact has an address.
func Contact(c models.EmergencyContact) error {
	return validate.Struct(c)
}

func contactLevel(sl validator.StructLevel) {
	c := sl.Current().Interface().(models.EmergencyContact)
	if c.PreferredMethod == models.MethodEmail && c.Email == "" {
		sl.ReportError(c.Email, "Email", "email", "required_for_method", "")
	}
}
