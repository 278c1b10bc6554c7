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
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
)

// DefaultTickRateHz is the "timeupdate" cadence used when no
// TickRateExpr is configured (spec.md §4.8: "a periodic event, default
// 5 Hz").
const DefaultTickRateHz = 5.0

// defaultTickRateExpr reproduces the constant-5Hz default as an
// expression so TickRater always goes through the same evaluation
// path, the way fbclock/daemon's Math always evaluates an expression
// even for its documented defaults.
const defaultTickRateExpr = "5"

// TickRater evaluates a configurable expression of |velocity| and
// |acceleration| to decide the "timeupdate" cadence, the same
// mechanism fbclock/daemon/math.go uses to turn a handful of
// clock-quality samples into M/W values via govaluate.
type TickRater struct {
	expr *govaluate.EvaluableExpression
}

// NewTickRater prepares a TickRater from an expression string. An
// empty string uses the fixed 5Hz default.
func NewTickRater(exprStr string) (*TickRater, error) {
	if exprStr == "" {
		exprStr = defaultTickRateExpr
	}
	expr, err := govaluate.NewEvaluableExpression(exprStr)
	if err != nil {
		return nil, fmt.Errorf("parsing tick rate expression %q: %w", exprStr, err)
	}
	for _, v := range expr.Vars() {
		if v != "velocity" && v != "acceleration" {
			return nil, fmt.Errorf("unsupported variable %q in tick rate expression", v)
		}
	}
	return &TickRater{expr: expr}, nil
}

// RateHz evaluates the expression against v's velocity/acceleration
// and returns a tick rate clamped to a sane (0, 60] Hz range.
func (r *TickRater) RateHz(v Vector) float64 {
	params := map[string]interface{}{
		"velocity":     math.Abs(v.Velocity),
		"acceleration": math.Abs(v.Acceleration),
	}
	result, err := r.expr.Evaluate(params)
	if err != nil {
		return DefaultTickRateHz
	}
	hz, ok := result.(float64)
	if !ok || hz <= 0 {
		return DefaultTickRateHz
	}
	if hz > 60 {
		hz = 60
	}
	return hz
}
