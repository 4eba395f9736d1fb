package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Name-based UUIDs keep every derived id stable across re-runs over the same
// input, which the correction file depends on.
var (
	submissionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("progress-auditor:submission"))
	vacationNamespace   = uuid.NewSHA1(uuid.NameSpaceURL, []byte("progress-auditor:vacation"))
	errorNamespace      = uuid.NewSHA1(uuid.NameSpaceURL, []byte("progress-auditor:error"))
)

// NewSubmissionID derives a submission id from the record's identity.
func NewSubmissionID(owner OwnerKey, postID string, submitted time.Time) SubmissionID {
	name := string(owner) + "|" + postID + "|" + submitted.UTC().Format(time.RFC3339)
	return SubmissionID(shortID(submissionNamespace, name))
}

// NewVacationID derives a vacation id from owner and user-facing dates.
func NewVacationID(owner OwnerKey, start, end string) VacationID {
	return VacationID(shortID(vacationNamespace, string(owner)+"|"+start+"|"+end))
}

// NewErrorID derives an error id from its tag and a stable key.
func NewErrorID(tag Tag, key string) string {
	return shortID(errorNamespace, string(tag)+"|"+key)
}

func shortID(ns uuid.UUID, name string) string {
	return strings.ReplaceAll(uuid.NewSHA1(ns, []byte(name)).String(), "-", "")[:12]
}

// Hash fingerprints submission text. Surrounding whitespace is ignored.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:8])
}
