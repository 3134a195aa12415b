// Package subaddress implements RFC 5233: the ":user"/":detail" address
// parts, splitting a mailbox's localpart on the first "+" the way
// "user+news@example.com" separates the account "user" from the detail
// "news". Like extensions/relational, this contributes no command or
// test of its own — it enriches the existing "address"/"envelope" tests'
// address-part tag set, the same "attach, don't define" shape
// registry.AddCommandTag's doc comment describes for imap4flags.
package subaddress

import (
	"github.com/dovesieve/sieve/match"
	"github.com/dovesieve/sieve/registry"
)

const Name = "subaddress"

func tags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "user"},
		{Name: "detail"},
	}
}

func Load(r *registry.Registry) error {
	r.AddAddressPart(match.AddressUser)
	r.AddAddressPart(match.AddressDetail)
	for _, tag := range tags() {
		if err := r.AddTestTag("address", tag); err != nil {
			return err
		}
		if err := r.AddTestTag("envelope", tag); err != nil {
			return err
		}
	}
	return nil
}

var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
