package vulkan

/**
 * @brief Max number of resource sets alive per layout. A pool rebuild holds
 * the old and the new set at once.
 */
const VULKAN_MAX_RESOURCE_SETS uint32 = 8

/**
 * @brief Number of set slots a resource layout can be bound at.
 */
const VULKAN_MAX_BOUND_SETS uint32 = 4

/**
 * @brief Alignment of subresource copies inside a staging buffer. Covers
 * every block size the studio uploads.
 */
const VULKAN_COPY_ALIGNMENT uint64 = 16

/** @brief Timeout for an upload submission, in nanoseconds. */
const VULKAN_SUBMIT_TIMEOUT uint64 = 10_000_000_000
