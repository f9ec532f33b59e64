// Copyright 2024 RainyModel Authors. All rights reserved.
// Use of this source code is governed by an MIT license that can be
// found in the LICENSE file.

/*
Package server provides HTTP/HTTPS server lifecycle management, with
non-blocking startup, graceful shutdown, and OS signal handling.

# Overview

The package wraps net/http.Server behind Manager, unifying listen, serve,
shutdown, and error propagation into one lifecycle. It supports both plain
HTTP and TLS startup modes, with built-in SIGINT/SIGTERM handling suited to
production graceful-stop requirements.

# Core types

  - Manager: the HTTP server lifecycle manager. Holds the http.Server,
    net.Listener, and an asynchronous error channel, and exposes
    Start/StartTLS/Shutdown/WaitForShutdown.
  - Config: server configuration — listen address, read/write timeouts,
    idle timeout, max header size, and graceful shutdown timeout.

# Capabilities

  - Non-blocking start: Start/StartTLS run the server in a background
    goroutine; the caller never blocks.
  - Graceful shutdown: Shutdown drains in-flight requests and releases
    connections within the configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and
    triggers graceful shutdown automatically on receipt.
  - Error propagation: Errors() returns an asynchronous error channel so
    callers can monitor server failures.
  - TLS support: StartTLS takes a certificate and key file.
  - Status queries: IsRunning/Addr report running state and listen address.
*/
package server
