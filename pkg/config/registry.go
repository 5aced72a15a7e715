package config

// Persistent state keys (Registry)
const (
	// KeyTrackingEnabled stores the user's tracking intent as the literal
	// strings "true"/"false". It is authoritative for restore decisions.
	KeyTrackingEnabled = "tracking_enabled"
)
