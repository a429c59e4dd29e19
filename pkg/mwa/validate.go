package mwa

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce  sync.Once
	validatorImpl *validator.Validate
)

// getValidator lazily builds the shared struct validator used for the
// struct-tag presence rules. It registers no custom validations; the
// privileged-method and commitment-level checks are done by hand below.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		validatorImpl = v
	})
	return validatorImpl
}

// ValidationError reports that a field failed parameter validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mwa: invalid %s: %s", e.Field, e.Reason)
}

// ValidateAuthorizeRequest validates the struct-tagged fields of req plus
// the cross-field rules the struct tags cannot express: every privileged
// method name must be known, and Identity (if present) must satisfy
// ValidateIdentity.
func ValidateAuthorizeRequest(req *AuthorizeRequest) error {
	if err := getValidator().Struct(req); err != nil {
		return &ValidationError{Field: "privileged_methods", Reason: "required, non-empty"}
	}
	for _, m := range req.PrivilegedMethods {
		if !m.IsKnown() {
			return &ValidationError{Field: "privileged_methods", Reason: fmt.Sprintf("unknown method %q", m)}
		}
	}
	if req.Identity != nil {
		if err := ValidateIdentity(req.Identity); err != nil {
			return err
		}
	}
	return nil
}

// ValidateIdentity enforces that Uri, when present, is absolute and
// hierarchical; Icon, when present, is relative; and Name, when Uri is
// present, is non-empty.
func ValidateIdentity(id *Identity) error {
	if id.Uri != "" {
		u, err := url.Parse(id.Uri)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return &ValidationError{Field: "identity.uri", Reason: "must be absolute and hierarchical"}
		}
	}
	if id.Icon != "" {
		icon, err := url.Parse(id.Icon)
		if err != nil || icon.IsAbs() {
			return &ValidationError{Field: "identity.icon", Reason: "must be a relative URI"}
		}
	}
	if id.Uri != "" && id.Name == "" {
		return &ValidationError{Field: "identity.name", Reason: "must be non-empty"}
	}
	return nil
}

// ValidateSignRequest enforces the struct-tagged auth_token/payloads
// presence rules plus the per-entry non-empty check the tags cannot
// express.
func ValidateSignRequest(req *SignRequest) error {
	if err := getValidator().Struct(req); err != nil {
		return &ValidationError{Field: "auth_token", Reason: "auth_token required, payloads required and non-empty"}
	}
	for i, p := range req.Payloads {
		if len(p) == 0 {
			return &ValidationError{Field: "payloads", Reason: fmt.Sprintf("entry %d must be non-empty", i)}
		}
	}
	return nil
}

// ValidateSignAndSendTransactionRequest additionally enforces the
// struct-tagged commitment presence rule and that Commitment is one of the
// three known levels.
func ValidateSignAndSendTransactionRequest(req *SignAndSendTransactionRequest) error {
	if err := ValidateSignRequest(&req.SignRequest); err != nil {
		return err
	}
	if err := getValidator().Struct(req); err != nil {
		return &ValidationError{Field: "commitment", Reason: "required"}
	}
	if !req.Commitment.IsKnown() {
		return &ValidationError{Field: "commitment", Reason: fmt.Sprintf("unknown commitment %q", req.Commitment)}
	}
	return nil
}
