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

package framework

import (
	"context"
	"strings"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
)

// namespace prefixes paths with /name and creates that node on first use.
type namespace struct {
	name   string
	ensure func(ctx context.Context, client SessionClient) error
}

func newNamespace(name string) (*namespace, error) {
	ns := &namespace{name: name}
	if name == "" {
		ns.ensure = func(context.Context, SessionClient) error { return nil }
		return ns, nil
	}
	if err := ValidatePath("/" + name); err != nil {
		return nil, &zkerrors.ValidationError{
			Field:   "namespace",
			Message: err.Error(),
		}
	}
	ns.ensure = NewEnsurePath("/" + name).Ensure
	return ns, nil
}

// fix returns path under the namespace.
func (n *namespace) fix(path string) string {
	if n.name == "" {
		return path
	}
	return MakePath("/"+n.name, path)
}

// unfix strips the namespace prefix from path.
func (n *namespace) unfix(path string) string {
	if n.name == "" || path == "" {
		return path
	}
	prefix := "/" + n.name
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := path[len(prefix):]
	if rest == "" {
		return "/"
	}
	if rest[0] != '/' {
		return path
	}
	return rest
}
