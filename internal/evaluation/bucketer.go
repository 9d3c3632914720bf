package evaluation

import (
	"github.com/spaolacci/murmur3"
)

const (
	bucketingSeed = 1
	// traffic allocations are expressed in basis points
	maxTrafficValue = 10000
	maxHashValue    = 1 << 32

	// BucketingIDAttribute overrides the user id for bucketing when it is a string
	BucketingIDAttribute = "$opt_bucketing_id"
)

// bucketValue maps a bucketing id onto [0, 10000) for one experiment or group.
// The same id and parent always land in the same bucket, which keeps
// assignments stable across datafile revisions and SDKs.
func bucketValue(bucketingID string, parentID string) int {
	hash := murmur3.Sum32WithSeed([]byte(bucketingID+parentID), bucketingSeed)
	ratio := float64(hash) / float64(maxHashValue)
	return int(ratio * maxTrafficValue)
}

// allocate returns the entity whose range contains value, or "" when the
// value falls past every range.
func allocate(value int, allocations []trafficRange) string {
	for _, allocation := range allocations {
		if value < allocation.EndOfRange {
			return allocation.EntityID
		}
	}
	return ""
}
