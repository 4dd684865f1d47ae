// ABOUTME: delete-contacts command
// ABOUTME: Clears the address book of one handset through the web configurator
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/gigasync/phone"
)

// DeleteContactsCommand wipes the address book of the selected handset.
func DeleteContactsCommand(cfg *Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete-contacts requires the phone URL")
	}
	phoneURL := args[0]

	fs := flag.NewFlagSet("delete-contacts", flag.ExitOnError)
	pin := fs.String("pin", "", "System PIN of the base station (prompted when omitted)")
	handset := fs.Int("handset", 1, "Handset index to target")
	_ = fs.Parse(args[1:])

	if *pin == "" {
		p, err := readPIN()
		if err != nil {
			return err
		}
		*pin = p
	}

	ctx := context.Background()
	session, err := phone.NewSession(phoneURL, *pin)
	if err != nil {
		return err
	}
	defer session.Logout(ctx)

	cfg.infof("Deleting address book on handset %d...\n", *handset)
	if err := session.DeleteContacts(ctx, *handset); err != nil {
		return err
	}

	cfg.infof("✓ Address book deleted\n")
	return nil
}
