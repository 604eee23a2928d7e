package interfaces

// -----------------------------------------------------------------------------
// ICredentialSource defines the contract for supplying the session credential.
// -----------------------------------------------------------------------------

type ICredentialSource interface {

	// -----------------------------------------------------------------------------

	// Get returns the current session credential. An empty string with a nil
	// error means no credential is stored (the caller decides how to escalate).
	Get() (string, error)

	// -----------------------------------------------------------------------------

	// Available reports whether a usable credential is currently stored.
	Available() bool
}
