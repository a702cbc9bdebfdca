package transport

// Outcome classifies a collector exchange. It drives what happens to
// the claimed batch: Ok and Created confirm delivery, NoResponse means
// retry later, everything else means the payload is not worth retrying.
type Outcome int

const (
	// client-side outcomes
	NoResponse Outcome = iota
	BadResponse
	RequestTimeout
	JSONEncodeFailed
	JSONDecodeFailed
	// server-side outcomes
	InternalServerError
	BadRequest
	Unauthorized
	UnknownResponseCode
	Ok
	Created
)

func (o Outcome) String() string {
	switch o {
	case NoResponse:
		return "NoResponse"
	case BadResponse:
		return "BadResponse"
	case RequestTimeout:
		return "RequestTimeout"
	case JSONEncodeFailed:
		return "JsonEncodeFailed"
	case JSONDecodeFailed:
		return "JsonDecodeFailed"
	case InternalServerError:
		return "InternalServerError"
	case BadRequest:
		return "BadRequest"
	case Unauthorized:
		return "Unauthorized"
	case UnknownResponseCode:
		return "UnknownResponseCode"
	case Ok:
		return "Ok"
	case Created:
		return "Created"
	}
	return "Unknown"
}

// Accepted reports whether the collector acknowledged the payload.
func (o Outcome) Accepted() bool {
	return o == Ok || o == Created
}
