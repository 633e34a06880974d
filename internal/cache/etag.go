package cache

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ETag digests the JSON form of v (map keys sorted by the encoder, times in
// RFC 3339). It is informational for HTTP consumers and never gates cache
// validity.
func ETag(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`
}
