package core

import "strings"

type AddressKind string

const (
	AddressKindLID   AddressKind = "lid"
	AddressKindPhone AddressKind = "pn"
)

const (
	lidSuffix   = "@lid"
	phonePrefix = "+"
)

// Address is one provider addressing identifier for an end user. Value holds
// only the bare digits; the zero value means the address is absent.
type Address struct {
	Kind  AddressKind
	Value string
}

func LIDAddress(value string) Address {
	return Address{Kind: AddressKindLID, Value: strings.TrimSpace(value)}
}

func PhoneAddress(value string) Address {
	return Address{Kind: AddressKindPhone, Value: strings.TrimPrefix(strings.TrimSpace(value), phonePrefix)}
}

func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Value) == "" || (a.Kind != AddressKindLID && a.Kind != AddressKindPhone)
}

// SourceID is the binding form of the address.
func (a Address) SourceID() string {
	if a.IsZero() {
		return ""
	}
	return a.Value
}

// ContactField is the contact attribute that stores this address.
func (a Address) ContactField() ContactField {
	switch a.Kind {
	case AddressKindLID:
		return ContactFieldIdentifier
	case AddressKindPhone:
		return ContactFieldPhoneNumber
	default:
		return ""
	}
}

// ContactValue is the contact form of the address: "<lid>@lid" or "+<digits>".
func (a Address) ContactValue() string {
	if a.IsZero() {
		return ""
	}
	switch a.Kind {
	case AddressKindLID:
		return a.Value + lidSuffix
	default:
		return phonePrefix + a.Value
	}
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return string(a.Kind) + ":" + a.Value
}

// AddressFromContactValue parses the contact form back into an address.
func AddressFromContactValue(field ContactField, value string) (Address, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Address{}, false
	}
	switch field {
	case ContactFieldIdentifier:
		if !strings.HasSuffix(value, lidSuffix) {
			return Address{}, false
		}
		return LIDAddress(strings.TrimSuffix(value, lidSuffix)), true
	case ContactFieldPhoneNumber:
		if !strings.HasPrefix(value, phonePrefix) {
			return Address{}, false
		}
		return PhoneAddress(value), true
	default:
		return Address{}, false
	}
}
