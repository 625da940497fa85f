package apierr

// Status is the integer status code sent in every response envelope.
// Values are part of the wire protocol and must not change.
type Status int

const (
	Success          Status = 0
	InvalidCall      Status = 1
	PermissionDenied Status = 2
	Malformed        Status = 3
	SessionAborted   Status = 4
	EntityNotFound   Status = 5
	GeneralFailure   Status = 6
)

var statusNames = map[Status]string{
	Success:          "SUCCESS",
	InvalidCall:      "INVALID_CALL",
	PermissionDenied: "PERMISSION_DENIED",
	Malformed:        "MALFORMED",
	SessionAborted:   "SESSION_ABORTED",
	EntityNotFound:   "ENTITY_NOT_FOUND",
	GeneralFailure:   "GENERAL_FAILURE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
