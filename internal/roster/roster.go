// Package roster encodes emergency contacts into a shareable link and
// decodes such links back into a preview set.
package roster

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mr1hm/go-civdef-map/internal/models"
	"github.com/mr1hm/go-civdef-map/internal/validate"
)

const QueryParam = "roster"

// maxEncodedLen bounds what Decode will look at; a roster is a handful of
// contacts, not a payload channel.
const maxEncodedLen = 64 << 10

var ErrMalformed = errors.New("malformed roster link")

func Encode(contacts []models.EmergencyContact) (string, error) {
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	data, err := json.Marshal(contacts)
	if err != nil {
		return "", fmt.Errorf("error encoding roster: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// ShareURL returns base with the encoded roster set as its query parameter.
func ShareURL(base string, contacts []models.EmergencyContact) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid share base url: %w", err)
	}
	encoded, err := Encode(contacts)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(QueryParam, encoded)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Decode returns the contacts carried by a roster parameter. Every contact
// must validate; a partially valid roster is rejected as a whole.
func Decode(param string) ([]models.EmergencyContact, error) {
	param = strings.TrimSpace(param)
	if param == "" || len(param) > maxEncodedLen {
		return nil, ErrMalformed
	}

	data, err := decodeBase64(param)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var contacts []models.EmergencyContact
	if err := json.Unmarshal(data, &contacts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, c := range contacts {
		if err := validate.Contact(c); err != nil {
			return nil, fmt.Errorf("%w: contact %d: %v", ErrMalformed, i, err)
		}
	}
	return contacts, nil
}

// decodeBase64 accepts both the URL-safe form this package writes and the
// standard alphabet older links used, padded or not.
func decodeBase64(s string) ([]byte, error) {
	unpadded := strings.TrimRight(s, "=")
	if data, err := base64.RawURLEncoding.DecodeString(unpadded); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(unpadded)
}
