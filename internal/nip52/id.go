package nip52

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/florrin/calagenda/internal/models"
)

// ComputeID returns the record id: the sha256 of the canonical serialized
// form [0, pubkey, created_at, kind, tags, content]. The caller signs the
// record externally; the id is fixed before signing, which is what lets a
// locally built record be recognized when it comes back from the store.
func ComputeID(rec models.Record) (string, error) {
	tags := rec.Tags
	if tags == nil {
		tags = models.TagList{}
	}
	payload := []interface{}{
		0,
		rec.Pubkey,
		rec.CreatedAt,
		rec.Kind,
		tags,
		rec.Content,
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", err
	}
	// Encode appends a trailing newline that is not part of the canonical form.
	serialized := bytes.TrimRight(buf.Bytes(), "\n")

	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}
