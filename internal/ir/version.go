package ir

// Version constants.
const (
	// IRVersion is the entity IR schema version.
	IRVersion = "1"

	// ServerVersion is the crudkit server version.
	ServerVersion = "0.3.0"
)
