// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"crypto/md5"
	"math/big"
)

// feedHash returns the full 128-bit MD5 digest of a feed ID, read as a
// big-endian integer, reduced mod n; used for both shard assignment and
// startup staggering. MD5 is chosen for cross-process, cross-restart
// determinism, not for security.
func feedHash(feedID string, n int) int {
	sum := md5.Sum([]byte(feedID))
	return int(new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), big.NewInt(int64(n))).Int64())
}

// activeOnShard reports whether feedID is owned by this replica, given its
// shard index and the total shard count. totalShards <= 1 means every feed
// is active.
func activeOnShard(feedID string, shardIndex, totalShards int) bool {
	if totalShards <= 1 {
		return true
	}
	return feedHash(feedID, totalShards) == shardIndex
}

// staggerSeconds returns the deterministic startup delay, in seconds,
// before feedID's first tick — spreading feeds evenly across their period
// instead of all firing at t=0.
func staggerSeconds(feedID string, intervalSeconds int) int {
	if intervalSeconds <= 0 {
		return 0
	}
	return feedHash(feedID, intervalSeconds)
}
