package recaptcha

import (
	"fmt"
	"strings"
)

// Message keys for validation failures. Hosts map these to user-facing
// strings; each expectation gets its own key so a spoofed hostname can be
// told apart from a misconfigured one.
const (
	KeyMissing  = "recaptcha.missing"
	KeyRejected = "recaptcha.rejected"
	KeyFailed   = "recaptcha.failed"
	KeyHostname = "recaptcha.hostname"
	KeyAPK      = "recaptcha.apk_package_name"
	KeyAction   = "recaptcha.action"
)

// Expectations binds a response to the context it was issued in. An empty
// field is no expectation and always passes; operators who rely on the
// reCAPTCHA admin console's own origin enforcement can leave them unset.
type Expectations struct {
	Hostname       string
	APKPackageName string
	Action         string
}

// ValidationError is a field-keyed verification failure. Field is the form
// input or context attribute at fault; Key is a stable message key; Codes
// carries the oracle's raw error codes when the oracle itself rejected the
// challenge.
type ValidationError struct {
	Field string
	Key   string
	Codes []string
}

func (e *ValidationError) Error() string {
	if len(e.Codes) > 0 {
		return fmt.Sprintf("recaptcha validation failed on %s (%s): %s",
			e.Field, e.Key, strings.Join(e.Codes, ", "))
	}
	return fmt.Sprintf("recaptcha validation failed on %s (%s)", e.Field, e.Key)
}

// Validate checks a resolved response against the expectations. Checks run
// in a fixed order so error attribution is deterministic: oracle rejection
// first, then hostname, APK package name, and action. input names the form
// field the token arrived in and is used as the error field for oracle
// rejections.
func Validate(resp *Response, input string, exp Expectations) error {
	ok, err := resp.IsValid()
	if err != nil {
		return err
	}
	if !ok {
		return &ValidationError{Field: input, Key: KeyRejected, Codes: resp.ErrorCodes}
	}

	if exp.Hostname != "" && resp.Hostname != exp.Hostname {
		return &ValidationError{Field: "hostname", Key: KeyHostname}
	}
	if exp.APKPackageName != "" && resp.APKPackageName != exp.APKPackageName {
		return &ValidationError{Field: "apk_package_name", Key: KeyAPK}
	}
	if exp.Action != "" && resp.Action != exp.Action {
		return &ValidationError{Field: "action", Key: KeyAction}
	}
	return nil
}
