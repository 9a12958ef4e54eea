package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
)

// EventIDDelimiter never appears in machine ids or ISO-8601 timestamps.
const EventIDDelimiter = "|"

// RawEventIDPrefix namespaces ids hashed from payload bytes so they cannot
// collide with a machine_id|ts id.
const RawEventIDPrefix = "raw" + EventIDDelimiter

// EventIDLength is the hex length of a derived event id.
const EventIDLength = sha256.Size * 2

// DeriveEventID returns hex(sha256(machineID | rawTS)). It hashes the raw
// timestamp string, not the normalized instant.
func DeriveEventID(machineID, rawTS string) string {
	h := sha256.New()
	h.Write([]byte(machineID))
	h.Write([]byte(EventIDDelimiter))
	h.Write([]byte(rawTS))
	return hex.EncodeToString(h.Sum(nil))
}

// DeriveRawEventID returns hex(sha256("raw|" + payload)). Records without a
// machine_id or ts are identified by their bytes, so redelivery still
// collapses while distinct payloads stay distinct.
func DeriveRawEventID(payload []byte) string {
	h := sha256.New()
	h.Write([]byte(RawEventIDPrefix))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
