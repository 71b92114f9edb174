// Package errors provides structured error handling with error codes for user switching.
//
// Every failure the switch endpoint can produce carries an ErrorCode that maps
// to an HTTP status:
//
//	err := errors.SwitchFailed(cause)     // 500, "Could not switch users."
//	err := errors.SwitchOffFailed(cause)  // 500, "Could not switch off."
//	err := errors.Forbidden("bad token")  // 403
//
// Inspect errors with IsCode and GetCode, or ask for the status directly:
//
//	if errors.IsCode(err, errors.ErrCodeSwitchFailed) {
//		http.Error(w, err.(*errors.Error).Message, errors.HTTPStatus(err))
//	}
//
// Error wraps its cause, so errors.Is / errors.As from the standard library
// keep working across package boundaries.
package errors
