package rag

import (
	"encoding/binary"
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or zero magnitude score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// rankByCosine scores every entry against query and returns the best topK
// chunks, highest similarity first. Ties keep insertion order.
func rankByCosine(entries []Entry, query []float32, topK int) []Chunk {
	scored := make([]Chunk, 0, len(entries))
	for _, e := range entries {
		c := e.Chunk
		c.Score = CosineSimilarity(e.Embedding, query)
		scored = append(scored, c)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// EncodeVector packs a vector as little-endian float32 bytes for BLOB storage.
func EncodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
