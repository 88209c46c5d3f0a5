/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package flow

import "context"

// Flow is the immutable triple {main, expect, upgrade} bound to one
// connection for its entire lifetime. It is built once per connection
// after all three services resolve and is shared by plain pointer
// across every goroutine handling that connection; it must never be
// mutated after construction.
type Flow struct {
	Main    MainService
	Expect  ExpectService
	Upgrade UpgradeService // nil iff the configuration did not opt in
}

// New builds a Flow. expect defaults to IdentityExpect when nil, so an
// expect service is always present.
func New(main MainService, expect ExpectService, upgrade UpgradeService) *Flow {
	if expect == nil {
		expect = IdentityExpect
	}
	return &Flow{Main: main, Expect: expect, Upgrade: upgrade}
}

// Ready combines the readiness of main, expect, and (if configured)
// upgrade with a logical AND, short-circuiting on the first not-ready
// service. Cancellation while waiting is safe: no side effects are
// taken by any Ready call before a service commits to handling a
// request.
func (f *Flow) Ready(ctx context.Context) error {
	if err := f.Main.Ready(ctx); err != nil {
		return err
	}
	if err := f.Expect.Ready(ctx); err != nil {
		return err
	}
	if f.Upgrade != nil {
		if err := f.Upgrade.Ready(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HasUpgrade reports whether this Flow was configured with an upgrade
// service.
func (f *Flow) HasUpgrade() bool { return f.Upgrade != nil }
