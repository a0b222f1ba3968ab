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

package identity

import (
	"encoding/json"
	"fmt"
)

// Attributes is the level-specific part of a principal.
// The set of implementations is closed to this package.
type Attributes interface {
	Level() Level
	sealed()
}

// OperatorAttributes describe platform staff (system and support operators).
type OperatorAttributes struct {
	Support    bool   `json:"support"`
	Department string `json:"department,omitempty"`
}

func (a OperatorAttributes) Level() Level {
	if a.Support {
		return LevelSupportOperator
	}
	return LevelSystemOperator
}

// OwnerAttributes describe the owner of a farm account.
type OwnerAttributes struct {
	FarmName string `json:"farm_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

func (OwnerAttributes) Level() Level { return LevelTenantPrincipal }

// DelegateAttributes describe an employee of a farm account.
type DelegateAttributes struct {
	JobTitle string `json:"job_title,omitempty"`
}

func (DelegateAttributes) Level() Level { return LevelTenantDelegate }

// VeterinarianAttributes describe a cross-tenant professional.
type VeterinarianAttributes struct {
	LicenseNumber  string `json:"license_number,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	ClinicName     string `json:"clinic_name,omitempty"`
}

func (VeterinarianAttributes) Level() Level { return LevelCrossTenantProfessional }

func (OperatorAttributes) sealed()     {}
func (OwnerAttributes) sealed()        {}
func (DelegateAttributes) sealed()     {}
func (VeterinarianAttributes) sealed() {}

// MarshalAttributes encodes attributes for storage. Nil encodes as nil.
func MarshalAttributes(a Attributes) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// UnmarshalAttributes decodes stored attributes for the given level.
func UnmarshalAttributes(level Level, data []byte) (Attributes, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var (
		attrs Attributes
		err   error
	)
	switch level {
	case LevelSystemOperator, LevelSupportOperator:
		var a OperatorAttributes
		err = json.Unmarshal(data, &a)
		a.Support = level == LevelSupportOperator
		attrs = a
	case LevelTenantPrincipal:
		var a OwnerAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	case LevelTenantDelegate:
		var a DelegateAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	case LevelCrossTenantProfessional:
		var a VeterinarianAttributes
		err = json.Unmarshal(data, &a)
		attrs = a
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s attributes: %w", level, err)
	}
	return attrs, nil
}
