package models

type ContactRole string

const (
	RoleFamily ContactRole = "family"
	RoleMedic  ContactRole = "medic"
	RoleSquad  ContactRole = "squad"
	RoleOther  ContactRole = "other"
)

type ContactMethod string

const (
	MethodSMS      ContactMethod = "sms"
	MethodWhatsApp ContactMethod = "whatsapp"
	MethodSignal   ContactMethod = "signal"
	MethodEmail    ContactMethod = "email"
)

// EmergencyContact is owned by the local user and only leaves the device
// inside an explicitly shared roster link.
type EmergencyContact struct {
	ID              string        `json:"id"`
	Name            string        `json:"name" validate:"required,max=80"`
	Phone           string        `json:"phone" validate:"required,max=32"`
	Email           string        `json:"email,omitempty" validate:"omitempty,email"`
	Network         string        `json:"network,omitempty" validate:"max=80"`
	Role            ContactRole   `json:"role" validate:"required,oneof=family medic squad other"`
	PreferredMethod ContactMethod `json:"preferredMethod" validate:"required,oneof=sms whatsapp signal email"`
}
