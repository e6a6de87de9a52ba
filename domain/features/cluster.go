package features

// ClusterAssignment places one eligible item into a cluster.
// Items filtered out by the minimum-count threshold never receive one.
type ClusterAssignment struct {
	ItemKey          string  `json:"item_key" db:"item_key"`
	ClusterID        int     `json:"cluster_id" db:"cluster_id"`
	DistanceToCenter float64 `json:"distance_to_center" db:"distance_to_center"` // Euclidean, z-score space
}

// ClusterCenter is a centroid in z-score space, one coordinate per feature
type ClusterCenter struct {
	ClusterID int       `json:"cluster_id"`
	SeedKey   string    `json:"seed_key"`
	Size      int       `json:"size"`
	Coords    []float64 `json:"coords"`
}
