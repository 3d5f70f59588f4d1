package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// DedupKey derives a stable key from the event kind, entity id and version.
func DedupKey(kind Kind, entityID string, version int64) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(entityID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(version, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
