package core

// MaxSamples is the total timestamp capacity of the sample buffer, shared
// across all active channels.
const MaxSamples = 10000

// partitionBuffer splits buf into n equal contiguous regions, one per
// active channel. Integer division: with a capacity not divisible by n the
// tail of the buffer belongs to no region. The three-index slices pin each
// region's capacity so a region can never grow into its neighbor.
func partitionBuffer(buf []uint16, n int) [][]uint16 {
	size := len(buf) / n
	regions := make([][]uint16, n)
	for i := range regions {
		regions[i] = buf[i*size : (i+1)*size : (i+1)*size]
	}
	return regions
}
