// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"fmt"
	"sync"
)

// pendingOps tracks operations that are awaiting an acknowledgement from the
// broker, keyed by correlation key: the topic for subscribes, the
// broker-assigned message id for publishes. At most one operation may be in
// flight per key; entries are removed on every exit path of their operation.
type pendingOps struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newPendingOps() *pendingOps {
	return &pendingOps{keys: make(map[string]struct{})}
}

// add registers a key. It refuses to overwrite an unresolved entry.
func (p *pendingOps) add(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[key]; ok {
		return ErrOperationPending
	}
	p.keys[key] = struct{}{}
	return nil
}

func (p *pendingOps) remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, key)
}

func (p *pendingOps) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

func subscribeKey(topic string) string {
	return "subscribe:" + topic
}

func unsubscribeKey(topic string) string {
	return "unsubscribe:" + topic
}

func publishKey(messageID uint16) string {
	return fmt.Sprintf("publish:%d", messageID)
}
