// ABOUTME: Value types for contacts pushed to the phone
// ABOUTME: Defines Contact, Phone, the label vocabulary, and number sanitization
package models

import "strings"

// Phone number labels understood by the card generator.
const (
	LabelWork   = "Work"
	LabelHome   = "Home"
	LabelOther  = "Other"
	LabelMobile = "Mobile"
)

// Contact is one address book entry in flight from Google to the phone.
// It is transient: built per remote record and consumed once by the upload.
type Contact struct {
	FullName string
	Phones   []Phone
}

// Phone is a single number with its label. Number is always stored in
// sanitized form.
type Phone struct {
	Number string
	Label  string
}

// NewPhone builds a Phone with the number run through SanitizeNumber.
func NewPhone(number, label string) Phone {
	return Phone{Number: SanitizeNumber(number), Label: label}
}

// SanitizeNumber strips spaces and rewrites a leading + as the 00
// international prefix the phone dials. Idempotent.
func SanitizeNumber(number string) string {
	number = strings.ReplaceAll(number, " ", "")
	if strings.HasPrefix(number, "+") {
		number = "00" + number[1:]
	}
	return number
}
