package sentinel

var _ error = Error("")

// Error is a comparable, const-declarable error value.
//
// errors.Is falls back to == for comparable targets, so a wrapped Error
// matches the constant it was created from.
type Error string

// Error returns the message.
func (e Error) Error() string {
	return string(e)
}
