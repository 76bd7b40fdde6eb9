package qrcode

import (
	"errors"
	"regexp"
	"strings"
)

// Identity is what a student badge QR code encodes.
type Identity struct {
	SubjectID   string `json:"subject_id"`
	DisplayName string `json:"display_name"`
	Contact     string `json:"contact"`
}

// Payload grammar: exactly three pipe-separated non-empty fields.
const Grammar = "subjectId|displayName|contact"

var (
	// ErrMalformed means the scanned text does not match the grammar at all.
	ErrMalformed = errors.New("payload must be " + Grammar)
	// ErrMissingSubject means an otherwise identity-shaped input has no subject id.
	ErrMissingSubject = errors.New("payload has no subject id")
)

var payloadRe = regexp.MustCompile(`^([^|]+)\|([^|]+)\|([^|]+)$`)

// Parse validates raw scanned text against the grammar and decodes it. The
// whole input must match after trimming and stripping a leading BOM; anything
// else is rejected outright, never partially extracted.
func Parse(raw string) (Identity, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")
	m := payloadRe.FindStringSubmatch(cleaned)
	if m == nil {
		return Identity{}, ErrMalformed
	}
	return Identity{SubjectID: m[1], DisplayName: m[2], Contact: m[3]}, nil
}

// FromFields builds an Identity from an already-decoded record, applying the
// same postconditions as Parse. Scan sources that hand over structured data
// instead of raw text go through here.
func FromFields(subjectID, displayName, contact string) (Identity, error) {
	if strings.TrimSpace(subjectID) == "" {
		return Identity{}, ErrMissingSubject
	}
	for _, f := range []string{subjectID, displayName, contact} {
		if strings.TrimSpace(f) == "" || strings.ContainsRune(f, '|') {
			return Identity{}, ErrMalformed
		}
	}
	return Identity{SubjectID: subjectID, DisplayName: displayName, Contact: contact}, nil
}

// Encode renders the identity in wire format. Fields are expected to be
// pipe-free, which Parse and FromFields guarantee.
func (i Identity) Encode() string {
	return i.SubjectID + "|" + i.DisplayName + "|" + i.Contact
}
