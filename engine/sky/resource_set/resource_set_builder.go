package resource_set

// ResourceSetBuilderOption configures a ResourceSet.
type ResourceSetBuilderOption func(*resourceSet)

// WithFaceSize sets the cubemap face edge length. Atlases become faceSize×(6·faceSize).
// New rejects sizes that are not multiples of TileSize.
func WithFaceSize(faceSize uint32) ResourceSetBuilderOption {
	return func(rs *resourceSet) {
		rs.faceSize = faceSize
	}
}
