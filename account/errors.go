// Copyright © 2026 The Airseekers Community
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package account

import "errors"

// ErrNoRefreshToken is returned when a token refresh is requested but the
// client never obtained a refresh token
var ErrNoRefreshToken = errors.New("account: no refresh token")
