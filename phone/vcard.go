// ABOUTME: Generates the device's legacy vCard upload buffer
// ABOUTME: One card per phone number, ISO 8859-15 encoded, 16-character name budget
package phone

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"github.com/harperreed/gigasync/models"
)

// The handset display shows at most 16 characters of a name.
const maxNameLen = 16

// Labels worth appending to the name when a contact has several numbers.
// Other and Mobile entries stay unsuffixed even when that leaves duplicate
// names on the handset.
var suffixLabels = map[string]bool{
	models.LabelWork: true,
	models.LabelHome: true,
}

// BuildAddressBook drains src into the upload buffer and returns the
// number of contacts consumed alongside the encoded bytes. The count is
// per contact, not per card: a three-number contact emits three cards but
// counts once.
func BuildAddressBook(src ContactSource) (int, []byte, error) {
	var buf bytes.Buffer
	count := 0
	for src.Next() {
		c := src.Contact()
		for _, p := range c.Phones {
			writeCard(&buf, cardName(c, p), p.Number)
		}
		count++
	}
	if err := src.Err(); err != nil {
		return 0, nil, err
	}

	encoded, err := charmap.ISO8859_15.NewEncoder().Bytes(buf.Bytes())
	if err != nil {
		return 0, nil, fmt.Errorf("address book is not representable in ISO 8859-15: %w", err)
	}
	if encoded == nil {
		encoded = []byte{}
	}
	return count, encoded, nil
}

// cardName disambiguates multi-number contacts by appending the label,
// shortening the base name so the result still fits the display.
func cardName(c *models.Contact, p models.Phone) string {
	if len(c.Phones) < 2 || !suffixLabels[p.Label] {
		return c.FullName
	}
	suffix := " " + p.Label
	name := c.FullName
	if budget := maxNameLen - len(suffix); len([]rune(name)) > budget {
		name = string([]rune(name)[:budget])
	}
	return name + suffix
}

// writeCard appends one card in the exact shape the device firmware
// expects, leading space before FN included, with a blank line after.
func writeCard(buf *bytes.Buffer, name, number string) {
	fmt.Fprintf(buf, "BEGIN:VCARD\r\nVERSION:2.1\r\n FN:%s\r\nN:%s\r\nTEL;HOME:%s\r\nEND:VCARD\r\n\r\n", name, name, number)
}
