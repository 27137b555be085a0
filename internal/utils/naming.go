package utils

import "strings"

const jumpHostPrefix = "ElastiCacheJumpHost-"

// JumpHostName is the Name tag given to a jump host launched for a
// replication group.
func JumpHostName(replicationGroupID string) string {
	return jumpHostPrefix + replicationGroupID
}

// ReplicationGroupFromName recovers the replication group ID from a jump
// host Name tag. ok is false for names this tool did not assign.
func ReplicationGroupFromName(name string) (string, bool) {
	rg, ok := strings.CutPrefix(name, jumpHostPrefix)
	return rg, ok && rg != ""
}
