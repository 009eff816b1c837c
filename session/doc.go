// Package session houses concrete implementations of core.SessionStore, the
// persistence of step-mode flow state between steps. The interface lives in
// the core package so the runner depends only on the contract.
//
// Add additional backends in sub‑packages without changing any calling code;
// only the wiring layer decides which implementation to instantiate.
package session
