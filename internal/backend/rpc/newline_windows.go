//go:build windows

package rpc

// Newline terminates each outbound JSON line on this platform.
const Newline = "\r\n"
