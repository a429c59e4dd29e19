// Package association parses MWA handoff URIs that bootstrap a scenario
// (local, on-device, or remote, relayed) and extracts the association
// token they carry. It only classifies and extracts; starting the
// corresponding transport is the caller's responsibility via the injected
// ScenarioFactory.
package association

import (
	"net/url"
)

// Variant tags which scenario kind an AssociationUri describes.
type Variant int

const (
	// VariantLocal is a loopback-to-wallet association on the same device.
	VariantLocal Variant = iota
	// VariantRemote is a relayed association between separate devices.
	VariantRemote
)

func (v Variant) String() string {
	switch v {
	case VariantLocal:
		return "local"
	case VariantRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Scheme constants distinguishing the two variants. Fixed here per §6's
// "exact scheme constants fixed by the implementation".
const (
	SchemeLocal  = "solana-wallet"
	SchemeRemote = "solana-wallet-remote"
)

// AssociationUri is a parsed, validated handoff URI: hierarchical, with a
// non-empty association token, tagged by Variant.
type AssociationUri struct {
	Variant          Variant
	AssociationToken string
	Raw              *url.URL
}

// ParseError reports that a candidate URI failed association-URI
// validation.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "association: " + e.Reason }

// Parse classifies and validates uri, trying the local variant then the
// remote variant, returning the first that validates. It returns a
// *ParseError if neither variant accepts the URI.
func Parse(rawURI string) (*AssociationUri, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return nil, &ParseError{Reason: "malformed URI: " + err.Error()}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &ParseError{Reason: "URI must be absolute and hierarchical"}
	}

	token := u.Query().Get("association")
	if token == "" {
		return nil, &ParseError{Reason: "missing or empty association query parameter"}
	}

	var variant Variant
	switch u.Scheme {
	case SchemeLocal:
		variant = VariantLocal
	case SchemeRemote:
		variant = VariantRemote
	default:
		return nil, &ParseError{Reason: "unrecognized scheme " + u.Scheme}
	}

	return &AssociationUri{Variant: variant, AssociationToken: token, Raw: u}, nil
}

// ScenarioCallbacks and ScenarioHandlers are the collaborators a concrete
// scenario factory is built from; the association layer only forwards them,
// it never constructs a transport itself.
type ScenarioCallbacks interface {
	OnScenarioReady()
	OnScenarioTeardownComplete()
}

// ScenarioFactory builds and starts the concrete transport/session binding
// for this AssociationUri's variant. The factory is injected by the caller
// (per §4.7, "the factory is injected — this component only classifies and
// extracts, it does not start transports").
type ScenarioFactory func(callbacks ScenarioCallbacks, handlers interface{}) (Scenario, error)

// Scenario is the running transport/session binding produced by a
// ScenarioFactory.
type Scenario interface {
	Close() error
}

// CreateScenario invokes factory with callbacks and handlers, bound to this
// AssociationUri. It exists as a named entry point so callers don't need to
// thread variant-specific construction logic themselves.
func (a *AssociationUri) CreateScenario(factory ScenarioFactory, callbacks ScenarioCallbacks, handlers interface{}) (Scenario, error) {
	return factory(callbacks, handlers)
}
