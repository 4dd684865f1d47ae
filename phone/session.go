// ABOUTME: Session state machine for the phone's web configurator
// ABOUTME: Login and logout plus the TDT submit-and-poll protocol behind upload and delete
package phone

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/harperreed/gigasync/models"
)

// TDT function codes understood by the management form.
const (
	FunctionUploadAddressBook = "2"
	FunctionDeleteAddressBook = "3"
)

const (
	deviceFormName    = "gigaset"
	pinFieldName      = "password"
	functionFieldName = "tdt_function"
	handsetIndexField = "hs2_0"
	handsetNameField  = "hs0_0"

	managementPage = "settings_telephony_tdt.html"
	statusPage     = "status.html"
	stopJobPage    = "stoptdt.html"
	logoutPage     = "logout.html"
)

// Error codes embedded in the login response body.
const (
	errCodeSessionRunning      = 2
	errCodeLangDownloadRunning = 160
)

var (
	errorRe  = regexp.MustCompile(`var error = (\d+);`)
	statusRe = regexp.MustCompile(`var status = (\d+);`)
)

// ContactSource yields contacts one at a time, bufio.Scanner style.
// Sources are single-pass: once Next returns false the source is drained
// and Err reports what, if anything, cut the iteration short.
type ContactSource interface {
	Next() bool
	Contact() *models.Contact
	Err() error
}

// Session is a browser session against one base station. Create one per
// command invocation and defer Logout; it is not safe for concurrent use.
type Session struct {
	browser      *Browser
	pin          string
	loggedIn     bool
	pollInterval time.Duration
}

// NewSession prepares a session against the base station at baseURL.
// Nothing is sent until the first operation logs in.
func NewSession(baseURL, pin string) (*Session, error) {
	b, err := NewBrowser(baseURL)
	if err != nil {
		return nil, err
	}
	return &Session{browser: b, pin: pin, pollInterval: time.Second}, nil
}

// Login authenticates against the web configurator with the system PIN.
func (s *Session) Login(ctx context.Context) error {
	page, err := s.browser.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}
	form, err := page.Form(deviceFormName)
	if err != nil {
		return err
	}
	if err := form.Set(pinFieldName, s.pin); err != nil {
		return err
	}
	page, err = form.Submit(ctx, nil)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	if m := errorRe.FindStringSubmatch(page.Body); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == errCodeSessionRunning:
			return ErrSessionRunning
		case code == errCodeLangDownloadRunning:
			// Benign: the base is busy fetching a language file but the
			// login itself went through.
		case code != 0:
			return &LoginError{Code: code}
		}
	} else if !page.HasLink(logoutPage) {
		// No error code reported; only a logout link proves we got in.
		return &LoginError{Code: -1}
	}

	s.loggedIn = true
	return nil
}

// Logout is best effort: the session counts as closed whatever the device
// answers.
func (s *Session) Logout(ctx context.Context) {
	if s.loggedIn {
		_, _ = s.browser.Get(ctx, logoutPage)
	}
	s.loggedIn = false
}

// DeleteContacts clears the address book of the given handset.
func (s *Session) DeleteContacts(ctx context.Context, handset int) error {
	return s.execute(ctx, FunctionDeleteAddressBook, handset, nil)
}

// AddContacts drains src into the device address book of the given handset
// and reports how many contacts were consumed. A contact with several
// numbers becomes several cards, one number each, because the device
// stores a single number per entry.
func (s *Session) AddContacts(ctx context.Context, src ContactSource, handset int) (int, error) {
	count, book, err := BuildAddressBook(src)
	if err != nil {
		return 0, err
	}
	if err := s.execute(ctx, FunctionUploadAddressBook, handset, book); err != nil {
		return 0, err
	}
	return count, nil
}

// execute runs one TDT management function: submit the management form
// with the synthetic handset fields, then poll the job status until the
// device reports anything other than "still running", and finally tell the
// device to stop the job.
func (s *Session) execute(ctx context.Context, function string, handset int, payload []byte) error {
	if !s.loggedIn {
		if err := s.Login(ctx); err != nil {
			return err
		}
	}

	page, err := s.browser.Get(ctx, managementPage)
	if err != nil {
		return fmt.Errorf("fetch management page: %w", err)
	}
	form, err := page.Form(deviceFormName)
	if err != nil {
		return err
	}

	// The served HTML keeps these two read-only and fills them through
	// client-side script, so they have to be injected by force.
	form.ForceSet(handsetIndexField, strconv.Itoa(handset))
	form.ForceSet(handsetNameField, fmt.Sprintf("INT %d", handset))

	if err := form.Set(functionFieldName, function); err != nil {
		return err
	}

	var file *FilePayload
	if payload != nil {
		file = &FilePayload{Name: "tdt.vcf", ContentType: "text/vcf", Data: payload}
	}

	page, err = form.Submit(ctx, file)
	if err != nil {
		return fmt.Errorf("submit management form: %w", err)
	}

	defer func() {
		// The device keeps the TDT job alive until told to stop, no
		// matter how the poll loop ended.
		_, _ = s.browser.Get(ctx, stopJobPage)
	}()

	body := page.Body
	for {
		m := statusRe.FindStringSubmatch(body)
		if m == nil || m[1] != "0" {
			return nil
		}
		time.Sleep(s.pollInterval)
		next, err := s.browser.Get(ctx, statusPage)
		if err != nil {
			// A failed status re-fetch is not worth surfacing; stopping
			// the job matters more than knowing how it ended.
			return nil
		}
		body = next.Body
	}
}
