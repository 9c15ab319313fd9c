package metadata

/**
 * @brief Describes a descriptor layout holding an array of sampled textures
 * visible to the fragment stage.
 */
type ResourceLayoutDescription struct {
	Name string
	/** @brief Binding index inside the set. */
	Binding uint32
	/** @brief Number of texture slots in the array. */
	Count uint32
}

/** @brief Buffer usage bit flags. */
type BufferUsage uint8

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
)

type BufferDescription struct {
	Name  string
	Usage BufferUsage
	Size  uint64
}
