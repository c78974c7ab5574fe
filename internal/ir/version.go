package ir

// Version constants stamped into the transaction log.
const (
	// SchemaVersion is the version of the document/transaction encoding.
	SchemaVersion = "1"

	// EngineVersion is the process engine version.
	EngineVersion = "0.1.0"
)
