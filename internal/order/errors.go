package order

// DecodeError represents a record value that could not be turned into an Event.
// Err carries the underlying unmarshal error when there is one.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode failed"
	if e == nil {
		return msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError represents a business rule violation on a request or an event.
// Field is the name of the invalid field; Reason describes why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	errMsg := "validation failed"
	if e != nil && e.Field != "" {
		errMsg += ": " + e.Field
	}
	if e != nil && e.Reason != "" {
		errMsg += ": " + e.Reason
	}
	return errMsg
}
