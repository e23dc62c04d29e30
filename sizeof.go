package pagekit

import (
	"fmt"
	"image"

	"github.com/bytedance/sonic"
)

// itemOverheadBytes is a flat per-item charge covering map entry, struct and
// bookkeeping overhead.
const itemOverheadBytes = 64

// EstimateSize approximates the byte cost of a cache entry from the apparent
// shape of its value, key and metadata. It is an approximation, not an exact
// accounting: callers that know the real size should pass it with PutSize.
func EstimateSize(key string, value any, metadata map[string]any) int64 {
	size := int64(len(key)) + itemOverheadBytes
	size += valueSize(value)
	for k, v := range metadata {
		size += int64(len(k)) + valueSize(v)
	}
	return size
}

func valueSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(x))
	case []byte:
		return int64(len(x))
	case image.Image:
		return imageCost(x)
	case bool, int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int, int64, uint, uint64, float64, complex64:
		return 8
	case fmt.Stringer:
		return int64(len(x.String()))
	default:
		// Last resort: the serialized length is a reasonable proxy for
		// arbitrary structured values.
		data, err := sonic.Marshal(x)
		if err != nil {
			return itemOverheadBytes
		}
		return int64(len(data))
	}
}
