package errortypes

// Severity tells whether an error stopped part of an auction or was only reported.
type Severity int

const (
	SeverityUnknown Severity = iota

	// SeverityFatal errors drop the bids or responses they concern.
	SeverityFatal

	// SeverityWarning errors leave the auction outcome unchanged. They are of type Warning.
	SeverityWarning
)

// Errors which carry no Severity are treated as fatal.
func isFatal(err error) bool {
	s, ok := err.(Coder)
	return !ok || s.Severity() == SeverityFatal
}

func IsWarning(err error) bool {
	s, ok := err.(Coder)
	return ok && s.Severity() == SeverityWarning
}

// FatalOnly returns the fatal errors of errs, keeping their order.
func FatalOnly(errs []error) []error {
	return filter(errs, isFatal)
}

// WarningOnly returns the warnings of errs, keeping their order.
func WarningOnly(errs []error) []error {
	return filter(errs, IsWarning)
}

func filter(errs []error, keep func(error) bool) []error {
	kept := make([]error, 0, len(errs))
	for _, err := range errs {
		if keep(err) {
			kept = append(kept, err)
		}
	}
	return kept
}
