package portal

import "github.com/rotisserie/eris"

// Sentinel errors for the portal's semantic rejections. These never count
// toward the circuit breaker.
var (
	// ErrInvalidCaptcha means the portal rejected the submitted captcha code.
	ErrInvalidCaptcha = eris.New("portal: invalid captcha")

	// ErrNoRecordFound means the search matched nothing. Terminal for the
	// session; retrying with the same inputs cannot succeed.
	ErrNoRecordFound = eris.New("portal: no record found")

	// ErrNoSessionCookie means the PDF download had no portal session cookie
	// to build the report URL from.
	ErrNoSessionCookie = eris.New("portal: no session cookie for pdf download")
)

// TokenError signals the portal rotated the anti-automation token while
// rejecting the request. The caller must resubmit with the rotated token,
// which the client has already adopted.
type TokenError struct {
	Token string
	Msg   string
}

func (e *TokenError) Error() string {
	return "portal: token rotated with error: " + e.Msg
}

// PortalError is a portal-reported failure that is not one of the known
// sentinels. Retryable marks the "Invalid Request" / "Something went wrong"
// class that a resubmission with the same inputs can clear.
type PortalError struct {
	Msg       string
	Retryable bool
}

func (e *PortalError) Error() string {
	return "portal: " + e.Msg
}

// Message returns the portal's own error text for a portal-originated
// failure, without the error-chain prefix, or "" when err did not come from
// the portal.
func Message(err error) string {
	var te *TokenError
	if eris.As(err, &te) {
		return te.Msg
	}
	var pe *PortalError
	if eris.As(err, &pe) {
		return pe.Msg
	}
	switch {
	case eris.Is(err, ErrInvalidCaptcha):
		return "Invalid Captcha"
	case eris.Is(err, ErrNoRecordFound):
		return "No Record Found"
	}
	return ""
}

// IsSearchRetryable reports whether err is worth one resubmission with the
// same captcha code: a token rotation or a retryable portal rejection.
func IsSearchRetryable(err error) bool {
	var te *TokenError
	if eris.As(err, &te) {
		return true
	}
	var pe *PortalError
	return eris.As(err, &pe) && pe.Retryable
}
