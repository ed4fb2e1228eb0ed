// Copyright 2025 Tom Barlow
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

// Package introspect reads and writes unexported struct fields by name.
//
// Lookups only consider fields declared directly on the named struct type.
// Fields promoted from embedded structs are ignored, so a field with the
// same name on an embedded type never shadows the declared one. Every
// failure is reported as a *errors.StructuralDriftError.
package introspect

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
)

// Policy decides whether a private field may be accessed.
type Policy interface {
	Allow(owner reflect.Type, field string) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(owner reflect.Type, field string) error

// Allow implements Policy.
func (f PolicyFunc) Allow(owner reflect.Type, field string) error {
	return f(owner, field)
}

var (
	policyMu sync.RWMutex
	policy   Policy
)

// SetPolicy installs an access policy and returns a function that restores
// the previous one. A nil policy allows every field.
func SetPolicy(p Policy) (restore func()) {
	policyMu.Lock()
	prev := policy
	policy = p
	policyMu.Unlock()
	return func() {
		policyMu.Lock()
		policy = prev
		policyMu.Unlock()
	}
}

// Deny returns a policy refusing the named field on the named type.
func Deny(typeName, field string) Policy {
	return PolicyFunc(func(owner reflect.Type, name string) error {
		if owner.Name() == typeName && name == field {
			return fmt.Errorf("access to %s.%s is blocked", typeName, field)
		}
		return nil
	})
}

func checkPolicy(owner reflect.Type, field string) error {
	policyMu.RLock()
	p := policy
	policyMu.RUnlock()
	if p == nil {
		return nil
	}
	if err := p.Allow(owner, field); err != nil {
		return &zkerrors.StructuralDriftError{
			Type:   owner.Name(),
			Field:  field,
			Reason: zkerrors.DriftAccessDenied,
			Detail: err.Error(),
		}
	}
	return nil
}

// Lookup returns a usable, addressable reflect.Value for the field declared
// as name on obj, which must be a struct (or pointer to one) whose type is
// named typeName.
func Lookup(obj any, typeName, name string) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, &zkerrors.StructuralDriftError{
				Type:   typeName,
				Field:  name,
				Reason: zkerrors.DriftWrongOwner,
				Detail: "nil " + rv.Type().String(),
			}
		}
		rv = rv.Elem()
	}

	if !rv.IsValid() || rv.Kind() != reflect.Struct || rv.Type().Name() != typeName {
		detail := "invalid value"
		if rv.IsValid() {
			detail = "got " + rv.Type().String()
		}
		return reflect.Value{}, &zkerrors.StructuralDriftError{
			Type:   typeName,
			Field:  name,
			Reason: zkerrors.DriftWrongOwner,
			Detail: detail,
		}
	}

	t := rv.Type()
	if err := checkPolicy(t, name); err != nil {
		return reflect.Value{}, err
	}

	index := -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Name == name && !sf.Anonymous {
			index = i
			break
		}
	}
	if index < 0 {
		return reflect.Value{}, &zkerrors.StructuralDriftError{
			Type:   typeName,
			Field:  name,
			Reason: zkerrors.DriftMissingField,
		}
	}

	if !rv.CanAddr() {
		copied := reflect.New(t).Elem()
		copied.Set(rv)
		rv = copied
	}

	f := rv.Field(index)
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem(), nil
}

// Get reads the field declared as name on a value of type typeName. The
// field's static type must be assignable to T.
func Get[T any](obj any, typeName, name string) (T, error) {
	var out T
	f, err := Lookup(obj, typeName, name)
	if err != nil {
		return out, err
	}

	want := reflect.TypeFor[T]()
	if !f.Type().AssignableTo(want) {
		return out, &zkerrors.StructuralDriftError{
			Type:   typeName,
			Field:  name,
			Reason: zkerrors.DriftWrongType,
			Detail: fmt.Sprintf("have %s, want %s", f.Type(), want),
		}
	}

	reflect.ValueOf(&out).Elem().Set(f)
	return out, nil
}

// Set writes value into the field declared as name on a value of type
// typeName. obj must be a pointer so the write is visible to the caller.
func Set(obj any, typeName, name string, value any) error {
	if reflect.ValueOf(obj).Kind() != reflect.Pointer {
		return &zkerrors.StructuralDriftError{
			Type:   typeName,
			Field:  name,
			Reason: zkerrors.DriftWrongOwner,
			Detail: "set requires a pointer",
		}
	}

	f, err := Lookup(obj, typeName, name)
	if err != nil {
		return err
	}

	v := reflect.ValueOf(value)
	if !v.IsValid() {
		f.SetZero()
		return nil
	}
	if !v.Type().AssignableTo(f.Type()) {
		return &zkerrors.StructuralDriftError{
			Type:   typeName,
			Field:  name,
			Reason: zkerrors.DriftWrongType,
			Detail: fmt.Sprintf("cannot assign %s to %s", v.Type(), f.Type()),
		}
	}
	f.Set(v)
	return nil
}
