// Package timeouts defines shared timeout constants used across the vault
// processes, so client and server limits stay in step.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single vault call made on behalf of an MCP tool.
const GRPCRequest = 5 * time.Second

// Execute caps an executor pass, which waits on ledger and canister calls.
const Execute = 30 * time.Second

// Shutdown limits how long the gRPC server drains in-flight calls.
const Shutdown = 5 * time.Second
