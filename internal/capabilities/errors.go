package capabilities

import "fmt"

// ParseErrorKind says why a capabilities document was rejected.
type ParseErrorKind int

const (
	// KindMalformed: the document is not well-formed XML.
	KindMalformed ParseErrorKind = iota
	// KindServiceException: the server answered with an exception report.
	KindServiceException
	// KindNotCapabilities: the root element is not a capabilities root.
	KindNotCapabilities
	// KindNoVersion: the root carries no version attribute.
	KindNoVersion
	// KindNoContents: a WMTS document without usable layers.
	KindNoContents
)

// ParseError is returned by every parser in this package.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case KindMalformed:
		if e.Err != nil {
			return fmt.Sprintf("Could not parse XML: %v", e.Err)
		}
		return "Could not parse XML."
	case KindServiceException:
		if e.Detail != "" {
			return fmt.Sprintf("Service exception: %s", e.Detail)
		}
		return "Service exception"
	case KindNotCapabilities:
		return fmt.Sprintf("No Capabilities Element present: Root tag: %s", e.Detail)
	case KindNoVersion:
		return "Version cannot be identified."
	case KindNoContents:
		return fmt.Sprintf("No layers in capabilities: %s", e.Detail)
	default:
		return "capabilities parse error"
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
