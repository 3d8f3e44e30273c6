package store

import (
	"encoding/binary"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
)

func serializeEmbedding(embedding []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(embedding)
}

// deserializeEmbedding reverses the little-endian float32 layout sqlite-vec writes.
func deserializeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}

	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
