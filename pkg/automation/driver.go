package automation

import (
	"context"
	"time"
)

// Driver drives one browser through a registration portal. A session owns its
// driver exclusively; implementations need not support concurrent calls other
// than Close.
type Driver interface {
	// Open launches the browser.
	Open(ctx context.Context) error

	// Navigate loads the portal page at url.
	Navigate(ctx context.Context, url string) error

	// FillForm enters the business details into the registration form.
	FillForm(ctx context.Context, data FormData) error

	// WaitForHumanInput blocks until the portal shows a prompt only the owner
	// can answer and describes it.
	WaitForHumanInput(ctx context.Context) (InputRequest, error)

	// SubmitOTP enters the code. It returns ErrOTPRejected (possibly wrapped)
	// when the portal refuses it.
	SubmitOTP(ctx context.Context, otp string) error

	// Finalize submits the application.
	Finalize(ctx context.Context) error

	// Close releases the browser. It must be idempotent, safe when Open never
	// succeeded and safe to call while another call is in flight.
	Close() error
}

// DriverFactory allocates a driver for a new session. Allocation must be cheap;
// the browser itself is launched by Open.
type DriverFactory func(kind LicenseKind) (Driver, error)

// InputRequest describes a prompt the portal is waiting on.
type InputRequest struct {
	Message   string
	Contact   string
	Kind      string
	Channel   string
	ExpiresIn time.Duration
}

// FormData is the registration form content, drawn from the business profile.
type FormData struct {
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Industry     string `json:"industry,omitempty"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

// Fields returns the non-empty form values keyed by field name.
func (f FormData) Fields() map[string]string {
	all := map[string]string{
		"business_name": f.BusinessName,
		"business_type": f.BusinessType,
		"industry":      f.Industry,
		"address":       f.Address,
		"city":          f.City,
		"state":         f.State,
		"pincode":       f.Pincode,
		"email":         f.Email,
		"phone":         f.Phone,
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
