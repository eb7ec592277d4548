package silver

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// RecordHash digests the trimmed, uppercased business field values of a
// bronze row, pipe-joined in the canonical field order, null rendered as
// the empty string. The hash is a pure function of content: identical
// fields yield the identical hash regardless of run id or source row.
func RecordHash(r *model.RawRecord) string {
	fields := r.HashFields()
	for i, f := range fields {
		fields[i] = strings.ToUpper(strings.TrimSpace(f))
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}
