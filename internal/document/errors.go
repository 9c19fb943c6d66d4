package document

import "fmt"

// RecordError reports a node record that could not be rebuilt.
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("node record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("node record %d ('%s'): %v", e.Index, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// VersionError is returned for documents written by a newer format.
type VersionError struct {
	Version int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("document format version %d is newer than supported version %d", e.Version, FormatVersion)
}
