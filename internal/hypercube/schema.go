package hypercube

// DimensionCount is the fixed number of axes in the hypercube.
const DimensionCount = 40

// GroupSize is the number of dimensions in each group.
const GroupSize = 10

// DimensionNames is the ordered dimension schema. Positions are part of the
// wire and query contract: reordering or renaming a dimension is breaking.
var DimensionNames = [DimensionCount]string{
	// business (0-9)
	"sector", "brand", "product_type", "market", "region",
	"customer_segment", "revenue_tier", "growth_stage", "partnership", "compliance_zone",

	// technical (10-19)
	"tech_stack", "version", "deployment_env", "latency_tier", "storage_type",
	"api_protocol", "security_level", "integration_type", "compute_tier", "network_zone",

	// temporal (20-29)
	"year", "quarter", "month", "week", "day",
	"hour", "breath_cycle", "epoch", "milestone", "phase",

	// metadata (30-39)
	"quality_score", "completeness", "verified", "confidence", "relevance",
	"freshness", "authority", "coverage", "accessibility", "consistency",
}

// Group names a block of ten consecutive dimensions.
type Group string

const (
	GroupBusiness  Group = "business"
	GroupTechnical Group = "technical"
	GroupTemporal  Group = "temporal"
	GroupMetadata  Group = "metadata"
)

var groups = [DimensionCount / GroupSize]Group{GroupBusiness, GroupTechnical, GroupTemporal, GroupMetadata}

var dimensionIndex = func() map[string]int {
	m := make(map[string]int, DimensionCount)
	for i, name := range DimensionNames {
		m[name] = i
	}
	return m
}()

// DimensionIndex returns the schema position of name.
func DimensionIndex(name string) (int, bool) {
	i, ok := dimensionIndex[name]
	return i, ok
}

// GroupOf returns the group that dimension i belongs to.
func GroupOf(i int) Group {
	if i < 0 || i >= DimensionCount {
		return ""
	}
	return groups[i/GroupSize]
}

// Dimensions returns a copy of the schema as a slice.
func Dimensions() []string {
	out := make([]string, DimensionCount)
	copy(out, DimensionNames[:])
	return out
}
