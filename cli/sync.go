// ABOUTME: google-sync command
// ABOUTME: Walks the OAuth device flow, pulls Google contacts, and uploads them to the phone
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/harperreed/gigasync/gcontacts"
	"github.com/harperreed/gigasync/phone"
)

// GoogleSyncCommand copies the Google address book onto one handset.
func GoogleSyncCommand(cfg *Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("google-sync requires the phone URL")
	}
	phoneURL := args[0]

	fs := flag.NewFlagSet("google-sync", flag.ExitOnError)
	pin := fs.String("pin", "", "System PIN of the base station (prompted when omitted)")
	handset := fs.Int("handset", 1, "Handset index to target")
	forceAuth := fs.Bool("force-google-auth", false, "Discard stored tokens and restart the OAuth flow")
	overwrite := fs.Bool("overwrite", false, "Delete the on-device address book before uploading")
	_ = fs.Parse(args[1:])

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return ErrMissingCredentials
	}

	ctx := context.Background()
	auth := gcontacts.NewAuthorizer(gcontacts.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})

	token, err := auth.Token(ctx, *forceAuth)
	if err != nil {
		var pending *gcontacts.PendingAuthorizationError
		if errors.As(err, &pending) {
			// Not a failure: the user just has to finish the browser side.
			fmt.Printf("Visit %s and enter the code %s.\n", pending.VerificationURL, pending.UserCode)
			fmt.Println("Then run google-sync again to finish the authorization.")
			return nil
		}
		return err
	}

	service, err := auth.NewPeopleService(ctx, token)
	if err != nil {
		return err
	}
	source := gcontacts.NewSource(service)

	if *pin == "" {
		p, err := readPIN()
		if err != nil {
			return err
		}
		*pin = p
	}

	session, err := phone.NewSession(phoneURL, *pin)
	if err != nil {
		return err
	}
	defer session.Logout(ctx)

	if *overwrite {
		cfg.infof("Deleting address book on handset %d...\n", *handset)
		if err := session.DeleteContacts(ctx, *handset); err != nil {
			return err
		}
	}

	cfg.infof("Uploading Google contacts to handset %d...\n", *handset)
	count, err := session.AddContacts(ctx, source, *handset)
	if err != nil {
		return err
	}

	cfg.infof("✓ Uploaded %d contacts\n", count)
	return nil
}
