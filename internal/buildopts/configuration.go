package buildopts

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// ConfigurationKey is the interned, content-addressed handle to a
// Configuration (spec.md §3: "Interned by its options hash; the
// configuration key is that hash."). Spec.md invariant 6 requires
// ConfigurationKey(o1) == ConfigurationKey(o2) iff o1 == o2, which holds
// here because the key is a cryptographic hash of BuildOptions'
// CanonicalString.
type ConfigurationKey struct {
	hash string
}

// String returns the hex-encoded hash, suitable for use as a graph Key's
// string form.
func (k ConfigurationKey) String() string { return k.hash }

// IsNull reports whether this is the zero key, used for the "null
// configuration" case in spec.md's ConfiguredTargetKey ("A null
// configuration key denotes a non-configurable target").
func (k ConfigurationKey) IsNull() bool { return k.hash == "" }

// Configuration is a BuildOptions plus a memoized hash and an eventId
// (spec.md §3). The eventId is minted once, at construction, and has no
// bearing on equality: it exists purely to let diagnostics emitted while
// processing this configuration refer back to "the same Configuration
// object" across goroutines without re-deriving the hash.
type Configuration struct {
	Options BuildOptions
	key     ConfigurationKey
	eventID uuid.UUID
}

// New computes the ConfigurationKey for opts and wraps both into a
// Configuration. This does not intern the result; use an Interner (below)
// to get the canonical, shared instance spec.md invariant 4 requires
// ("the resolver MUST return the same key for equal results").
func New(opts BuildOptions) Configuration {
	sum := sha256.Sum256([]byte(opts.CanonicalString()))
	return Configuration{
		Options: opts,
		key:     ConfigurationKey{hash: hex.EncodeToString(sum[:])},
		eventID: uuid.New(),
	}
}

// Key returns the content-addressed key for this configuration.
func (c Configuration) Key() ConfigurationKey { return c.key }

// EventID returns the configuration's diagnostic correlation id.
func (c Configuration) EventID() uuid.UUID { return c.eventID }
