// Package xerrors defines the error taxonomy shared across the installer
// packages and small wrapping helpers used consistently to add context to
// propagated errors.
package xerrors

import "fmt"

// Sentinel errors, grouped by the domain that raises them. Callers compare
// with errors.Is; helper constructors below attach per-instance detail.
var (
	// ErrKeyNotFound is returned by the variable store when a referenced
	// variable does not exist.
	ErrKeyNotFound = fmt.Errorf("variable not found")

	// ErrResolveCycle is returned when a $(...) reference is self-recursive.
	ErrResolveCycle = fmt.Errorf("variable resolution cycle detected")

	// ErrConstRedefined is returned when add_const is called twice with
	// different values for the same name.
	ErrConstRedefined = fmt.Errorf("const variable already defined with a different value")

	// ErrInheritCycle is returned when index item inheritance is cyclic.
	ErrInheritCycle = fmt.Errorf("inheritance cycle detected")

	// ErrSourceNotFound is returned when an install_sources path is absent
	// from the remote info-map.
	ErrSourceNotFound = fmt.Errorf("source not found in remote info map")

	// ErrFileNotFound is returned for expected local files that are missing.
	ErrFileNotFound = fmt.Errorf("file not found")

	// ErrChecksumMismatch is returned when a downloaded file's checksum does
	// not match the expected value.
	ErrChecksumMismatch = fmt.Errorf("checksum mismatch")

	// ErrLinkFailure is returned when creating a hard link fails.
	ErrLinkFailure = fmt.Errorf("hard link failed")

	// ErrProcessTerminatedExternally is returned when a sub-process is
	// killed due to an abort file vanishing or a signal.
	ErrProcessTerminatedExternally = fmt.Errorf("process terminated externally")

	// ErrLockedTable is returned when a mutation is attempted against the
	// index store after planning has locked it.
	ErrLockedTable = fmt.Errorf("table is locked for execution")

	// ErrConfig is returned for configuration loading/validation failures.
	ErrConfig = fmt.Errorf("invalid configuration")

	// ErrValidation is a catch-all for argument/precondition validation.
	ErrValidation = fmt.Errorf("validation failed")

	// ErrDownloadFailed is returned when a download transport call fails.
	ErrDownloadFailed = fmt.Errorf("download failed")

	// ErrSignatureInvalid is returned when a detached signature fails to
	// verify against a public key.
	ErrSignatureInvalid = fmt.Errorf("signature verification failed")

	// ErrTypeMismatch is returned when an install source's on-disk type
	// (file vs directory) doesn't match its declared tag.
	ErrTypeMismatch = fmt.Errorf("source type mismatch")

	// ErrUnknownSection is returned for an unrecognised batch section name.
	ErrUnknownSection = fmt.Errorf("unknown batch section")

	// ErrWriterBusy is returned when Add is called on a batch while a
	// sub-accumulator is open.
	ErrWriterBusy = fmt.Errorf("batch accumulator has an open sub-accumulator")
)

// Wrap annotates err with a message, preserving errors.Is/As compatibility.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// KeyError reports a missing variable name.
func KeyError(name string) error {
	return fmt.Errorf("variable %q: %w", name, ErrKeyNotFound)
}

// ResolveCycleError reports the chain that produced a self-reference.
func ResolveCycleError(chain []string) error {
	return fmt.Errorf("cycle %v: %w", chain, ErrResolveCycle)
}

// ConstRedefinedError reports the conflicting values.
func ConstRedefinedError(name string, oldValues, newValues []string) error {
	return fmt.Errorf("variable %q: old=%v new=%v: %w", name, oldValues, newValues, ErrConstRedefined)
}
