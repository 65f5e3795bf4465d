package vfs

func ClusterPtrToVolumePtr(sb Superblock, ptr ClusterPtr) VolumePtr {
	return VolumePtr(ptr) * VolumePtr(sb.ClusterSize)
}

// CToGoString returns data up to the first zero byte.
func CToGoString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

func clustersForSize(sb Superblock, size int) int {
	cs := int(sb.ClusterSize)
	return (size + cs - 1) / cs
}
