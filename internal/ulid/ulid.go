// Package ulid generates the client-side identifiers used for locally created
// entities. IDs are prefixed ULIDs ("dgm-01HT...") built on github.com/oklog/ulid/v2.
//
// The server never rewrites these IDs: whatever a client assigns is echoed back
// on every sync round trip, so generation must be stable and collision free
// across devices. ULIDs give that plus time ordering for free.
package ulid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the entity kinds the client creates
const (
	PrefixDiagram    = "dgm"
	PrefixCollection = "col"
	PrefixTemplate   = "tpl"
	PrefixSync       = "sync"
	PrefixSetting    = "set"
	PrefixRequest    = "req"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ULID wraps ulid.ULID with an optional prefix
type ULID struct {
	ulid.ULID
	prefix string
}

// Generate creates a new ULID with the current timestamp
func Generate() ULID {
	return NewWithTime(time.Now())
}

// GenerateWithPrefix creates a new ULID with the current timestamp and a prefix
func GenerateWithPrefix(prefix string) ULID {
	id := NewWithTime(time.Now())
	id.prefix = prefix
	return id
}

// NewWithTime creates a new ULID with a specific timestamp
func NewWithTime(t time.Time) ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ULID{id, ""}
}

// Parse parses a plain or prefixed ULID ("col-01AN4Z07BY79KA1307SR9X4MV3")
func Parse(id string) (ULID, error) {
	prefix, raw := split(id)

	parsed, err := ulid.Parse(raw)
	if err != nil {
		return ULID{}, err
	}

	return ULID{parsed, prefix}, nil
}

// Validate reports whether id is a plain or prefixed ULID
func Validate(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// HasKind reports whether id is a valid ULID carrying the given prefix
func HasKind(id, prefix string) bool {
	parsed, err := Parse(id)
	if err != nil {
		return false
	}
	return parsed.prefix == prefix
}

func split(id string) (string, string) {
	idx := strings.LastIndex(id, PrefixSeparator)
	if idx < 0 {
		return "", id
	}
	return id[:idx], id[idx+1:]
}

// Prefix returns the prefix of the ULID
func (u ULID) Prefix() string {
	return u.prefix
}

// IsZero returns true if the ULID is the zero value
func (u ULID) IsZero() bool {
	return u.ULID == ulid.ULID{}
}

// String returns "prefix-ulid", or the bare ULID when no prefix is set
func (u ULID) String() string {
	if u.prefix != "" {
		return u.prefix + PrefixSeparator + u.ULID.String()
	}
	return u.ULID.String()
}

// Time returns the timestamp component of the ULID
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// DiagramID generates a new diagram identifier
func DiagramID() string {
	return GenerateWithPrefix(PrefixDiagram).String()
}

// CollectionID generates a new template collection identifier
func CollectionID() string {
	return GenerateWithPrefix(PrefixCollection).String()
}

// TemplateID generates a new custom template identifier
func TemplateID() string {
	return GenerateWithPrefix(PrefixTemplate).String()
}

// SyncID generates a new sync log identifier
func SyncID() string {
	return GenerateWithPrefix(PrefixSync).String()
}

// SettingID generates a new setting row identifier
func SettingID() string {
	return GenerateWithPrefix(PrefixSetting).String()
}

// RequestID generates a new request identifier
func RequestID() string {
	return GenerateWithPrefix(PrefixRequest).String()
}
