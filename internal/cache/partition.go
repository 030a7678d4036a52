package cache

import "fmt"

// Partition is a named cache bucket holding one class of resources. Exactly
// one partition owns a given request class.
type Partition string

const (
	PartitionAppShell     Partition = "app-shell"
	PartitionRoutes       Partition = "routes"
	PartitionLocationData Partition = "location-data"
	PartitionVectorTiles  Partition = "vector-tiles"
	PartitionFontSprite   Partition = "font-sprite"
	PartitionStaticAssets Partition = "static-assets"
)

// AllPartitions lists every partition of the current generation.
func AllPartitions() []Partition {
	return []Partition{
		PartitionAppShell,
		PartitionRoutes,
		PartitionLocationData,
		PartitionVectorTiles,
		PartitionFontSprite,
		PartitionStaticAssets,
	}
}

// Versioned returns the generation-qualified bucket name, e.g.
// "vector-tiles-v10". A version bump makes every previous generation
// eligible for cleanup at the next activation.
func (p Partition) Versioned(version string) string {
	return fmt.Sprintf("%s-%s", p, version)
}
