// Package interfaces defines the core types and capability interfaces for the
// JACS document integrity system. It provides the contract between components
// without implementation details: identifiers, digests, signature and
// agreement records, key resolution, document storage, and schema validation.
//
// The core engine packages (canonical, signing, version, agreement, document)
// depend on this package only; concrete key providers and storage backends
// implement the interfaces declared here.
package interfaces
