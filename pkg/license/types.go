package license

import (
	"errors"
	"time"
)

// Status is the approval status of one required license.
type Status string

const (
	// StatusPending means no application has been filed
	StatusPending Status = "pending"
	// StatusApplied means an application was submitted
	StatusApplied Status = "applied"
	// StatusApproved means the department approved the application
	StatusApproved Status = "approved"
	// StatusRejected means the department rejected the application
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApplied, StatusApproved, StatusRejected:
		return true
	}
	return false
}

var (
	// ErrBusinessNotFound is returned when no business matches the lookup
	ErrBusinessNotFound = errors.New("business not found")
	// ErrLicenseNotFound is returned when the business has no license entry of that type
	ErrLicenseNotFound = errors.New("license entry not found")
)

// Business is the profile an owner registers before automating applications.
type Business struct {
	ID               string    `yaml:"id" json:"id" bson:"_id"`
	OwnerID          string    `yaml:"owner_id" json:"ownerId" bson:"owner_id"`
	Name             string    `yaml:"name" json:"businessName" bson:"name"`
	Type             string    `yaml:"type" json:"businessType" bson:"type"`
	Industry         string    `yaml:"industry" json:"industry" bson:"industry"`
	Location         Location  `yaml:"location" json:"location" bson:"location"`
	Contact          Contact   `yaml:"contact" json:"contactInfo" bson:"contact"`
	RequiredLicenses []License `yaml:"required_licenses" json:"requiredLicenses" bson:"required_licenses"`
	CreatedAt        time.Time `yaml:"-" json:"createdAt" bson:"created_at"`
}

// Location is the registered address of a business.
type Location struct {
	Address string `yaml:"address" json:"address" bson:"address"`
	City    string `yaml:"city" json:"city" bson:"city"`
	State   string `yaml:"state" json:"state" bson:"state"`
	Pincode string `yaml:"pincode" json:"pincode" bson:"pincode"`
}

// Contact holds the owner's registered contact details. Portals send
// one-time passcodes to Phone.
type Contact struct {
	Email   string `yaml:"email" json:"email" bson:"email"`
	Phone   string `yaml:"phone" json:"phone" bson:"phone"`
	Website string `yaml:"website,omitempty" json:"website,omitempty" bson:"website,omitempty"`
}

// License is one required registration tracked on a business.
type License struct {
	Type            string     `yaml:"type" json:"licenseType" bson:"license_type"`
	Department      string     `yaml:"department" json:"department" bson:"department"`
	Status          Status     `yaml:"status" json:"status" bson:"status"`
	ApplicationDate *time.Time `yaml:"-" json:"applicationDate,omitempty" bson:"application_date,omitempty"`
}

// License returns the entry of the given type, if present.
func (b *Business) License(licenseType string) (License, bool) {
	for _, l := range b.RequiredLicenses {
		if l.Type == licenseType {
			return l, true
		}
	}
	return License{}, false
}

// Clone returns a deep copy so callers never share slices with a store.
func (b *Business) Clone() *Business {
	if b == nil {
		return nil
	}
	out := *b
	out.RequiredLicenses = make([]License, len(b.RequiredLicenses))
	for i, l := range b.RequiredLicenses {
		if l.ApplicationDate != nil {
			t := *l.ApplicationDate
			l.ApplicationDate = &t
		}
		out.RequiredLicenses[i] = l
	}
	return &out
}
