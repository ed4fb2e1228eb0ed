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

	"github.com/go-zookeeper/zk"

	zkerrors "github.com/tombee/zktrace/pkg/errors"
	"github.com/tombee/zktrace/pkg/zookeeper"
)

// OperationType identifies an operation inside a transaction.
type OperationType int

const (
	OpCreate OperationType = iota
	OpDelete
	OpSetData
	OpCheck
)

func (t OperationType) String() string {
	switch t {
	case OpCreate:
		return "CREATE"
	case OpDelete:
		return "DELETE"
	case OpSetData:
		return "SET_DATA"
	case OpCheck:
		return "CHECK"
	default:
		return "UNKNOWN"
	}
}

// TransactionResult is the outcome of one operation of a committed transaction.
type TransactionResult struct {
	Type       OperationType
	ForPath    string
	ResultPath string
	ResultStat *zk.Stat
}

type transactionOp struct {
	kind    OperationType
	path    string
	data    []byte
	mode    zookeeper.CreateMode
	acl     []zk.ACL
	version int32
}

// Transaction collects operations that are committed atomically.
type Transaction struct {
	client *Client
	ctx    context.Context
	ops    []transactionOp
}

func newTransaction(c *Client) *Transaction {
	return &Transaction{client: c, ctx: context.Background()}
}

// WithContext sets the context Commit runs under.
func (t *Transaction) WithContext(ctx context.Context) *Transaction {
	t.ctx = ctx
	return t
}

// Create adds a create of path with the client's default ACL.
func (t *Transaction) Create(path string, data []byte, mode zookeeper.CreateMode) *Transaction {
	return t.CreateWithACL(path, data, mode, t.client.core.defaultACL)
}

// CreateWithACL adds a create of path with acl.
func (t *Transaction) CreateWithACL(path string, data []byte, mode zookeeper.CreateMode, acl []zk.ACL) *Transaction {
	t.ops = append(t.ops, transactionOp{kind: OpCreate, path: path, data: data, mode: mode, acl: acl})
	return t
}

// Delete adds a delete of path at version, or any version when version is -1.
func (t *Transaction) Delete(path string, version int32) *Transaction {
	t.ops = append(t.ops, transactionOp{kind: OpDelete, path: path, version: version})
	return t
}

// SetData adds a write of data to path at version.
func (t *Transaction) SetData(path string, data []byte, version int32) *Transaction {
	t.ops = append(t.ops, transactionOp{kind: OpSetData, path: path, data: data, version: version})
	return t
}

// Check adds a version check of path.
func (t *Transaction) Check(path string, version int32) *Transaction {
	t.ops = append(t.ops, transactionOp{kind: OpCheck, path: path, version: version})
	return t
}

// Commit runs the operations atomically. Either all of them apply or none do.
func (t *Transaction) Commit() ([]TransactionResult, error) {
	if len(t.ops) == 0 {
		return nil, &zkerrors.ValidationError{Field: "transaction", Message: "no operations to commit"}
	}

	requests := make([]any, 0, len(t.ops))
	for _, op := range t.ops {
		fixed, err := t.client.fixPath(t.ctx, op.path)
		if err != nil {
			return nil, err
		}
		switch op.kind {
		case OpCreate:
			requests = append(requests, &zk.CreateRequest{Path: fixed, Data: op.data, Acl: op.acl, Flags: op.mode.Flags()})
		case OpDelete:
			requests = append(requests, &zk.DeleteRequest{Path: fixed, Version: op.version})
		case OpSetData:
			requests = append(requests, &zk.SetDataRequest{Path: fixed, Data: op.data, Version: op.version})
		case OpCheck:
			requests = append(requests, &zk.CheckVersionRequest{Path: fixed, Version: op.version})
		}
	}

	responses, err := callWithRetry(t.ctx, t.client.core.client, func(conn zookeeper.Conn) ([]zk.MultiResponse, error) {
		res, err := conn.Multi(requests...)
		if err == nil {
			err = firstMultiError(res)
		}
		return res, err
	})
	if err != nil {
		return nil, err
	}

	results := make([]TransactionResult, len(t.ops))
	for i, op := range t.ops {
		results[i] = TransactionResult{Type: op.kind, ForPath: op.path}
		if i >= len(responses) {
			continue
		}
		if responses[i].String != "" {
			results[i].ResultPath = t.client.unfixPath(responses[i].String)
		}
		results[i].ResultStat = responses[i].Stat
	}
	return results, nil
}

func firstMultiError(res []zk.MultiResponse) error {
	for _, r := range res {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}
