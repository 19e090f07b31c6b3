// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package blocklist

import (
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/airseekers-community/device-connector-bridge/middleware"
	"github.com/airseekers-community/device-connector-bridge/types"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
)

type blockedItem struct {
	Device string `yaml:"device"`
}

// NewBlocklist returns a middleware that filters traffic from blocked devices
func NewBlocklist(lists ...string) (b *Blocklist, err error) {
	b = &Blocklist{
		lists:  make(map[string][]blockedItem),
		lookup: make(map[string]bool),
	}
	b.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, location := range lists {
		b.addList(location) // ignore errors for mvp
	}
	b.FetchRemotes()
	go func() {
		for e := range b.watcher.Events {
			if e.Op&fsnotify.Write == fsnotify.Write {
				b.read(e.Name) // ignore errors for mvp
			}
		}
	}()
	return b, nil
}

// Blocklist middleware
type Blocklist struct {
	watcher *fsnotify.Watcher
	urls    []string

	mu     sync.RWMutex
	lists  map[string][]blockedItem
	lookup map[string]bool
}

func (b *Blocklist) addList(location string) error {
	url, err := url.Parse(location)
	if err != nil {
		return err
	}
	switch url.Scheme {
	case "", "file":
		return b.addFile(location)
	case "http", "https":
		return b.addURL(url)
	}
	return errors.New("blocklist: unknown list type")
}

func (b *Blocklist) addFile(filename string) (err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err = b.watcher.Add(filename); err != nil {
		return err
	}
	return b.read(filename)
}

func (b *Blocklist) addURL(url *url.URL) error {
	b.urls = append(b.urls, url.String())
	return nil
}

// FetchRemotes fetches remote blocklists
func (b *Blocklist) FetchRemotes() error {
	for _, url := range b.urls {
		b.fetch(url) // ignore errors for mvp
	}
	return nil
}

// Close the blocklist watcher
func (b *Blocklist) Close() {
	b.watcher.Close()
}

func (b *Blocklist) read(filename string) error {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	var blocklist []blockedItem
	err = yaml.Unmarshal(contents, &blocklist)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.lists[filename] = blocklist
	b.updateLookup()
	b.mu.Unlock()
	return nil
}

func (b *Blocklist) fetch(location string) error {
	resp, err := http.Get(location)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var blocklist []blockedItem
	err = yaml.Unmarshal(body, &blocklist)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.lists[location] = blocklist
	b.updateLookup()
	b.mu.Unlock()
	return nil
}

func (b *Blocklist) updateLookup() {
	var n int
	for _, blocklist := range b.lists {
		n += len(blocklist)
	}
	b.lookup = make(map[string]bool, n)
	for _, blocklist := range b.lists {
		for _, item := range blocklist {
			if item.Device != "" {
				b.lookup[item.Device] = true
			}
		}
	}
}

// ErrBlockedDevice is returned for messages to or from a blocked device
var ErrBlockedDevice = errors.New("blocklist: device is blocked")

func (b *Blocklist) check(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lookup[id] {
		return ErrBlockedDevice
	}
	return nil
}

// HandleStatus blocks status messages from blocked devices
func (b *Blocklist) HandleStatus(_ middleware.Context, msg *types.StatusMessage) error {
	return b.check(msg.DeviceID)
}

// HandleCommand blocks commands to blocked devices
func (b *Blocklist) HandleCommand(_ middleware.Context, msg *types.CommandMessage) error {
	return b.check(msg.DeviceID)
}
