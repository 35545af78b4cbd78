package automation

import (
	"fmt"
	"strings"

	"github.com/entrhq/regpilot/pkg/license"
)

// LicenseKind names a registration the orchestrator can automate.
type LicenseKind string

const (
	// KindTaxRegistration files a GST registration
	KindTaxRegistration LicenseKind = "tax-registration"
	// KindSmallEnterprise files an Udyam (MSME) registration
	KindSmallEnterprise LicenseKind = "small-enterprise-registration"
)

// ParseLicenseKind maps a client-supplied kind to a LicenseKind.
func ParseLicenseKind(s string) (LicenseKind, error) {
	kind := LicenseKind(strings.TrimSpace(s))
	if _, ok := scripts[kind]; !ok {
		return "", fmt.Errorf("%w: unknown license kind %q", ErrValidation, s)
	}
	return kind, nil
}

// Kinds returns every supported kind.
func Kinds() []LicenseKind {
	return []LicenseKind{KindTaxRegistration, KindSmallEnterprise}
}

type stepKind int

const (
	stepOpen stepKind = iota
	stepNavigate
	stepFill
	stepAwaitInput
	stepVerifyOTP
	stepFinalize
)

func (k stepKind) String() string {
	switch k {
	case stepOpen:
		return "open"
	case stepNavigate:
		return "navigate"
	case stepFill:
		return "fill"
	case stepAwaitInput:
		return "await-input"
	case stepVerifyOTP:
		return "verify-otp"
	case stepFinalize:
		return "finalize"
	}
	return "unknown"
}

// step is one entry of a script. The runner enters state (appending label and
// detail) before calling the driver. The await-input step is the exception: it
// enters otp_required only after the driver reports a prompt.
type step struct {
	kind   stepKind
	state  State
	label  string
	detail string
}

// Script is the declarative flow for one license kind.
type Script struct {
	Kind              LicenseKind
	LicenseType       string
	PortalURL         string
	EstimatedDuration string
	StartedMessage    string
	CompletedDetail   string
	IncludeIndustry   bool
	steps             []step
}

const (
	labelCompleted = "Registration Completed"
	labelFailed    = "Automation Failed"
	labelCancelled = "Automation Cancelled"
	labelAborted   = "Automation Aborted"
	labelTimedOut  = "OTP Timed Out"
	labelRejected  = "OTP Rejected"
	labelSubmitted = "OTP Submitted"
	labelRequired  = "OTP Required"
)

func buildScript(kind LicenseKind, licenseType, portalName, portalURL, portalDetail, formDetail, short, estimate string, industry bool) *Script {
	return &Script{
		Kind:              kind,
		LicenseType:       licenseType,
		PortalURL:         portalURL,
		EstimatedDuration: estimate,
		StartedMessage:    short + " registration automation started",
		CompletedDetail:   short + " registration successful",
		IncludeIndustry:   industry,
		steps: []step{
			{stepOpen, StateInitializing, "Launching Browser", "Starting automated browser session"},
			{stepNavigate, StateNavigating, "Navigating to " + portalName, portalDetail},
			{stepFill, StateFillingForm, "Filling Registration Form", formDetail},
			{stepAwaitInput, StateOTPRequired, labelRequired, "Waiting for user to provide OTP"},
			{stepVerifyOTP, StateVerifyingOTP, "Verifying OTP", "Submitting OTP for verification"},
			{stepFinalize, StateCompletingRegistration, "Completing Registration", "Finalizing " + short + " registration"},
		},
	}
}

var scripts = map[LicenseKind]*Script{
	KindTaxRegistration: buildScript(KindTaxRegistration,
		"GST Registration", "GST Portal", "https://www.gst.gov.in/",
		"Accessing GST registration portal", "Entering business details",
		"GST", "5-10 minutes", false),
	KindSmallEnterprise: buildScript(KindSmallEnterprise,
		"MSME Registration", "MSME Portal", "https://udyamregistration.gov.in/",
		"Accessing Udyam registration portal", "Entering enterprise details",
		"MSME", "3-5 minutes", true),
}

// ScriptFor returns the script for kind.
func ScriptFor(kind LicenseKind) (*Script, bool) {
	s, ok := scripts[kind]
	return s, ok
}

// indexOf returns the position of the first step of kind k.
func (s *Script) indexOf(k stepKind) int {
	for i, st := range s.steps {
		if st.kind == k {
			return i
		}
	}
	return -1
}

// FormFor builds the form content for this script from a business profile.
func (s *Script) FormFor(b *license.Business) FormData {
	form := FormData{
		BusinessName: b.Name,
		BusinessType: b.Type,
		Address:      b.Location.Address,
		City:         b.Location.City,
		State:        b.Location.State,
		Pincode:      b.Location.Pincode,
		Email:        b.Contact.Email,
		Phone:        b.Contact.Phone,
	}
	if s.IncludeIndustry {
		form.Industry = b.Industry
	}
	return form
}
