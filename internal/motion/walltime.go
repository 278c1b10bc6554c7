/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package motion

import (
	"golang.org/x/sys/unix"
)

// nowSeconds returns CLOCK_REALTIME, in seconds, as a float64. The
// reference clock a server advertises to its clients is explicitly
// this clock, not whatever wall-clock API a given language runtime
// happens to default to.
func nowSeconds() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return 0
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}

// Now returns the current reference-clock time in seconds since epoch.
func Now() float64 {
	return nowSeconds()
}

// NowMillis returns the current reference-clock time in milliseconds
// since epoch, the unit used by sync messages on the wire.
func NowMillis() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return 0
	}
	return ts.Sec*1000 + ts.Nsec/1e6
}
