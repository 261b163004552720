package vectorstore

import (
	"hash/fnv"
	"math"

	"github.com/google/uuid"
	"github.com/nidhogg/vault-nexus/internal/hypercube"
)

// pointNamespace derives stable point ids from genomes.
var pointNamespace = uuid.MustParse("6f1c2a8e-4b7d-5e93-a0c1-2d8f46b9e715")

// PointID returns the Qdrant point id for a genome.
func PointID(genome string) string {
	return uuid.NewSHA1(pointNamespace, []byte(genome)).String()
}

// Project maps coordinates onto a 40-element vector. Absent dimensions are
// zero, numbers are log-compressed keeping their sign, booleans are 1 or -1
// and other values hash into (0, 1].
func Project(c *hypercube.Coordinates) []float32 {
	out := make([]float32, hypercube.DimensionCount)
	for i, v := range c {
		out[i] = component(v)
	}
	return out
}

func component(v any) float32 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return -1
	case string:
		return hashUnit(x)
	}
	if n, ok := hypercube.Number(v); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return float32(math.Copysign(math.Log1p(math.Abs(n)), n))
	}
	return 0.5
}

func hashUnit(s string) float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float32(h.Sum32()%1000+1) / 1000
}
