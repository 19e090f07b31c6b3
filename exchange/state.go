// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package exchange

import redis "gopkg.in/redis.v5"

type deviceState interface {
	// Adds an element to the set. Returns whether
	// the item was added.
	Add(i interface{}) bool

	// Returns whether the given items
	// are all in the set.
	Contains(i ...interface{}) bool

	// Remove a single element from the set.
	Remove(i interface{})

	// Returns the members of the set as a slice.
	ToSlice() []interface{}
}

// defaultRedisStateKey is used as key when no key is given
var defaultRedisStateKey = "devicestate"

// InitRedisState initializes Redis-backed watch state for the exchange and returns the state stored in the database
func (b *Exchange) InitRedisState(client *redis.Client, key string) (deviceIDs []string) {
	if key == "" {
		key = defaultRedisStateKey
	}
	b.devices = &deviceStateWithRedisPersistence{
		deviceState: b.devices,
		client:      client,
		key:         key,
	}
	deviceIDs, _ = client.SMembers(key).Result()
	return
}

type deviceStateWithRedisPersistence struct {
	key    string
	client *redis.Client
	deviceState
}

func (s *deviceStateWithRedisPersistence) Add(i interface{}) bool {
	added := s.deviceState.Add(i)
	if added {
		go s.client.SAdd(s.key, i).Result()
	}
	return added
}

func (s *deviceStateWithRedisPersistence) Remove(i interface{}) {
	s.deviceState.Remove(i)
	go s.client.SRem(s.key, i).Result()
}
