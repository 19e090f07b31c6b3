// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package main

import "github.com/airseekers-community/device-connector-bridge/cmd"

func main() {
	cmd.Execute()
}
