package testutil

// TS builds a timestamp-oracle value for physicalMillis with a zero
// logical component, matching the physical<<18|logical encoding
// pkg/txn assumes when comparing against lock TTLs.
func TS(physicalMillis uint64) uint64 {
	return physicalMillis << 18
}
