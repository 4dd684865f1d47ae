// ABOUTME: Lazy paginated contact source over the People API
// ABOUTME: Maps relation codes to phone labels and skips entries without numbers
package gcontacts

import (
	"fmt"

	people "google.golang.org/api/people/v1"

	"github.com/harperreed/gigasync/models"
)

const connectionsPageSize = 200

// relationLabels maps People API phone types to the device label
// vocabulary. Missing or unknown types count as home numbers.
var relationLabels = map[string]string{
	"work":   models.LabelWork,
	"home":   models.LabelHome,
	"other":  models.LabelOther,
	"mobile": models.LabelMobile,
}

// Source walks the connection list one page at a time. It is single-pass
// and forward-only: create one per sync run and drain it exactly once.
type Source struct {
	service   *people.Service
	pending   []*models.Contact
	current   *models.Contact
	pageToken string
	done      bool
	err       error
}

// NewSource builds a source over the authenticated user's contacts.
func NewSource(service *people.Service) *Source {
	return &Source{service: service}
}

// Next advances to the following contact, fetching the next page when the
// buffered one runs out.
func (s *Source) Next() bool {
	for len(s.pending) == 0 {
		if s.done || s.err != nil {
			return false
		}
		s.fetchPage()
	}
	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Contact returns the contact Next advanced to.
func (s *Source) Contact() *models.Contact { return s.current }

// Err reports the fetch error that cut iteration short, if any.
func (s *Source) Err() error { return s.err }

func (s *Source) fetchPage() {
	call := s.service.People.Connections.List("people/me").
		PageSize(connectionsPageSize).
		PersonFields("names,phoneNumbers")
	if s.pageToken != "" {
		call = call.PageToken(s.pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		s.err = fmt.Errorf("failed to fetch contacts: %w", err)
		return
	}
	if resp == nil || resp.Connections == nil {
		s.done = true
		return
	}

	for _, person := range resp.Connections {
		if c := convertPerson(person); c != nil {
			s.pending = append(s.pending, c)
		}
	}

	s.pageToken = resp.NextPageToken
	if s.pageToken == "" {
		s.done = true
	}
}

// convertPerson reshapes a People API person into a device contact.
// Entries without phone numbers are dropped.
func convertPerson(person *people.Person) *models.Contact {
	if person == nil || len(person.PhoneNumbers) == 0 {
		return nil
	}

	c := &models.Contact{}
	if len(person.Names) > 0 {
		c.FullName = person.Names[0].DisplayName
	}

	for _, phone := range person.PhoneNumbers {
		if phone.Value == "" {
			continue
		}
		label, ok := relationLabels[phone.Type]
		if !ok {
			label = models.LabelHome
		}
		c.Phones = append(c.Phones, models.NewPhone(phone.Value, label))
	}
	if len(c.Phones) == 0 {
		return nil
	}
	return c
}
