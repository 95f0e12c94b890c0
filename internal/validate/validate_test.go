package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mr1hm/go-civdef-map/internal/models"
)

func TestContact(t *testing.T) {
	base := models.EmergencyContact{
		Name:            "Anna",
		Phone:           "+48 600 100 200",
		Role:            models.RoleFamily,
		PreferredMethod: models.MethodSMS,
	}

	tests := []struct {
		name    string
		mutate  func(c *models.EmergencyContact)
		wantErr bool
	}{
		{"valid", func(c *models.EmergencyContact) {}, false},
		{"missing phone", func(c *models.EmergencyContact) { c.Phone = "" }, true},
		{"unknown role", func(c *models.EmergencyContact) { c.Role = "boss" }, true},
		{"unknown method", func(c *models.EmergencyContact) { c.PreferredMethod = "pigeon" }, true},
		{"bad email", func(c *models.EmergencyContact) { c.Email = "not-an-email" }, true},
		{"email method without email", func(c *models.EmergencyContact) { c.PreferredMethod = models.MethodEmail }, true},
		{"email method with email", func(c *models.EmergencyContact) {
			c.PreferredMethod = models.MethodEmail
			c.Email = "anna@example.com"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := Contact(c)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
