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
	"errors"
	"fmt"
	"strings"

	"github.com/go-zookeeper/zk"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// ProtectedPrefix marks nodes created with CreateBuilder.WithProtection.
const ProtectedPrefix = "_c_"

// ValidatePath checks that path is an absolute ZooKeeper node path.
func ValidatePath(path string) error {
	invalid := func(reason string) error {
		return &zkerrors.ValidationError{
			Field:   "path",
			Message: fmt.Sprintf("invalid path %q: %s", path, reason),
		}
	}

	switch {
	case path == "":
		return invalid("must not be empty")
	case path[0] != '/':
		return invalid("must start with /")
	case path == "/":
		return nil
	case strings.HasSuffix(path, "/"):
		return invalid("must not end with /")
	case strings.ContainsRune(path, 0):
		return invalid("must not contain null characters")
	}

	for _, segment := range strings.Split(path[1:], "/") {
		switch segment {
		case "":
			return invalid("empty node name")
		case ".", "..":
			return invalid("relative paths are not allowed")
		}
	}
	return nil
}

// MakePath joins parent and child into a single absolute path.
func MakePath(parent, child string) string {
	var b strings.Builder
	if !strings.HasPrefix(parent, "/") {
		b.WriteByte('/')
	}
	b.WriteString(strings.TrimSuffix(parent, "/"))
	child = strings.Trim(child, "/")
	if child != "" {
		b.WriteByte('/')
		b.WriteString(child)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// SplitPath returns the parent and node name of path.
func SplitPath(path string) (parent, node string) {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/", path[i+1:]
	}
	return path[:i], path[i+1:]
}

// NodeFromPath returns the last segment of path.
func NodeFromPath(path string) string {
	_, node := SplitPath(path)
	return node
}

// mkdirs creates every missing ancestor of path, and path itself when
// makeLast is set. Existing nodes are left alone.
func mkdirs(conn zookeeper.Conn, path string, makeLast bool, acl []zk.ACL) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if !makeLast {
		segments = segments[:len(segments)-1]
	}

	current := ""
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		current += "/" + segment
		exists, _, err := conn.Exists(current)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := conn.Create(current, nil, 0, acl); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

// deleteChildren removes every descendant of path, and path itself when
// deleteSelf is set.
func deleteChildren(conn zookeeper.Conn, path string, deleteSelf bool) error {
	children, _, err := conn.Children(path)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nil
		}
		return err
	}
	for _, child := range children {
		if err := deleteChildren(conn, MakePath(path, child), true); err != nil {
			return err
		}
	}
	if !deleteSelf {
		return nil
	}
	if err := conn.Delete(path, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		if errors.Is(err, zk.ErrNotEmpty) {
			// a child was added concurrently
			return deleteChildren(conn, path, true)
		}
		return err
	}
	return nil
}

// EnsurePath creates a path and its parents the first time Ensure
// succeeds. Later calls are no-ops.
type EnsurePath struct {
	path     string
	makeLast bool
	acl      []zk.ACL

	done chan struct{}
	mu   chan struct{}
}

// NewEnsurePath returns an EnsurePath for path.
func NewEnsurePath(path string) *EnsurePath {
	return newEnsurePath(path, true)
}

func newEnsurePath(path string, makeLast bool) *EnsurePath {
	return &EnsurePath{
		path:     path,
		makeLast: makeLast,
		acl:      zk.WorldACL(zk.PermAll),
		done:     make(chan struct{}),
		mu:       make(chan struct{}, 1),
	}
}

// ExcludingLast returns an EnsurePath that creates only the parents of the path.
func (e *EnsurePath) ExcludingLast() *EnsurePath {
	return newEnsurePath(e.path, false)
}

// Path returns the path being ensured.
func (e *EnsurePath) Path() string {
	return e.path
}

// Ensure creates the path through client if it has not been created yet.
func (e *EnsurePath) Ensure(ctx context.Context, client SessionClient) error {
	select {
	case <-e.done:
		return nil
	default:
	}

	select {
	case e.mu <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.mu }()

	select {
	case <-e.done:
		return nil
	default:
	}

	_, err := callWithRetry(ctx, client, func(conn zookeeper.Conn) (struct{}, error) {
		return struct{}{}, mkdirs(conn, e.path, e.makeLast, e.acl)
	})
	if err != nil {
		return err
	}
	close(e.done)
	return nil
}
