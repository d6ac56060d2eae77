package cache

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/panesync/internal/profile"
)

// Key is the fingerprint of one alignment request.
type Key struct {
	Source     uint64
	Target     uint64
	SourceLang string
	TargetLang string
	Version    uint64
}

// NewKey fingerprints a source/target text pair. Language codes are
// canonicalized and texts are NFC-normalized before hashing, so visually
// identical input always produces the same key.
func NewKey(source, target, sourceLang, targetLang string, version uint64) Key {
	return Key{
		Source:     Fingerprint(source),
		Target:     Fingerprint(target),
		SourceLang: profile.Canonical(sourceLang),
		TargetLang: profile.Canonical(targetLang),
		Version:    version,
	}
}

// Fingerprint hashes NFC-normalized text.
func Fingerprint(text string) uint64 {
	return xxhash.Sum64String(norm.NFC.String(text))
}

func (k Key) String() string {
	return fmt.Sprintf("%016x:%016x:%s:%s:%x", k.Source, k.Target, k.SourceLang, k.TargetLang, k.Version)
}

// hash selects the shard.
func (k Key) hash() uint64 {
	d := xxhash.New()
	var buf [20]byte
	_, _ = d.Write(strconv.AppendUint(buf[:0], k.Source, 16))
	_, _ = d.Write(strconv.AppendUint(buf[:0], k.Target, 16))
	_, _ = d.WriteString(k.SourceLang)
	_, _ = d.WriteString(k.TargetLang)
	_, _ = d.Write(strconv.AppendUint(buf[:0], k.Version, 16))
	return d.Sum64()
}

// size approximates the bytes a key occupies in the lists.
func (k Key) size() int64 {
	return int64(24 + len(k.SourceLang) + len(k.TargetLang))
}
