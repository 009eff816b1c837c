// Package model defines the provider‑agnostic participant capability used by
// conclave flows, plus small helpers around it.
//
// Core goals:
//   - Expose a single blocking Generate call per participant turn
//   - Keep request/response shapes minimal and transport independent
//   - Normalize vendor failures into a small ErrorKind taxonomy
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (engine, flows) remain decoupled from vendor SDKs.
package model
