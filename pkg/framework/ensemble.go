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

// EnsembleProvider supplies the connection string for the ensemble.
type EnsembleProvider interface {
	Start() error
	ConnectionString() string
	Close() error
}

// FixedEnsembleProvider always returns the same connection string.
type FixedEnsembleProvider struct {
	connectString string
}

// NewFixedEnsembleProvider returns a provider for connectString.
func NewFixedEnsembleProvider(connectString string) *FixedEnsembleProvider {
	return &FixedEnsembleProvider{connectString: connectString}
}

func (p *FixedEnsembleProvider) Start() error { return nil }

func (p *FixedEnsembleProvider) ConnectionString() string { return p.connectString }

func (p *FixedEnsembleProvider) Close() error { return nil }
