// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import "fmt"

// Reason names why a decision was denied
type Reason string

const (
	ReasonPrincipalInactive     Reason = "principal_inactive"
	ReasonWrongTenant           Reason = "wrong_tenant"
	ReasonGrantMissingOrExpired Reason = "grant_missing_or_expired"
	ReasonUnknownPrincipalClass Reason = "unknown_principal_class"
	ReasonPermissionMissing     Reason = "permission_missing"
	ReasonEvaluationFailed      Reason = "evaluation_failed"
)

// Decision is the outcome of an authorization check. A zero Decision denies.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Err is set when the decision could not be evaluated. Allowed is then false.
	Err error
}

// Allow returns an allowing decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with reason
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

func evaluationFailed(err error) Decision {
	return Decision{Reason: ReasonEvaluationFailed, Err: err}
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	if d.Err != nil {
		return fmt.Sprintf("deny(%s: %v)", d.Reason, d.Err)
	}
	return fmt.Sprintf("deny(%s)", d.Reason)
}
