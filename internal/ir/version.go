package ir

// Version constants for the journal format and the binary.
const (
	// JournalVersion is the on-disk journal schema version.
	JournalVersion = "1"

	// Version is the tether release version.
	Version = "0.1.0"
)
