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

// FrameworkState is the lifecycle state of a Client.
type FrameworkState int32

const (
	Latent FrameworkState = iota
	Started
	Stopped
)

func (s FrameworkState) String() string {
	switch s {
	case Latent:
		return "LATENT"
	case Started:
		return "STARTED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ConnectionState is the client's view of its session.
type ConnectionState int

const (
	// Connected is sent for the first successful connection.
	Connected ConnectionState = iota
	// Suspended is sent when the connection is lost but the session may survive.
	Suspended
	// Reconnected is sent when a suspended or lost connection is re-established.
	Reconnected
	// Lost is sent when the session has expired.
	Lost
	// ReadOnly is sent when connected to a read-only server.
	ReadOnly
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Suspended:
		return "SUSPENDED"
	case Reconnected:
		return "RECONNECTED"
	case Lost:
		return "LOST"
	case ReadOnly:
		return "READ_ONLY"
	default:
		return "UNKNOWN"
	}
}

// IsConnected reports whether the state implies a usable connection.
func (s ConnectionState) IsConnected() bool {
	return s == Connected || s == Reconnected || s == ReadOnly
}
