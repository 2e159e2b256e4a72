package kvstore

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// namePrefix marks primitive entries owned by this store. The primitive
// namespace is shared with unrelated consumers; the prefix is how Keys()
// tells ours apart.
const namePrefix = "wkv."

// chunkHeaderSuffix tags the entry holding a chunked value's chunk count.
const chunkHeaderSuffix = "n"

// encodeKey derives the primitive-safe name for a logical key. Base64url
// carries arbitrary key bytes and contains no "." so the suffix separators
// below cannot collide with encoded content.
func encodeKey(key string) string {
	return namePrefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

// decodeKey reverses encodeKey. The bool reports whether the name belongs to
// this store and decodes cleanly.
func decodeKey(name string) (string, bool) {
	enc, ok := strings.CutPrefix(name, namePrefix)
	if !ok {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// chunkHeaderName is the entry holding the decimal chunk count for key.
func chunkHeaderName(key string) string {
	return encodeKey(key) + "." + chunkHeaderSuffix
}

// chunkName is the entry holding chunk i (zero-based) of key.
func chunkName(key string, i int) string {
	return encodeKey(key) + "." + strconv.Itoa(i)
}

// parseName classifies a primitive name. It returns the logical key and
// whether the name is this store's single-entry or chunk-header form; chunk
// body entries and foreign names report ok=false so enumeration surfaces each
// logical key at most twice (single + header), never once per chunk.
func parseName(name string) (key string, header bool, ok bool) {
	rest, found := strings.CutPrefix(name, namePrefix)
	if !found {
		return "", false, false
	}

	enc, suffix, hasSuffix := strings.Cut(rest, ".")
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false, false
	}

	if !hasSuffix {
		return string(raw), false, true
	}
	if suffix == chunkHeaderSuffix {
		return string(raw), true, true
	}
	return "", false, false
}
