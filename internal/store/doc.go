// Package store defines the wire contract between the coordinator and the
// GSM/LSM databases: the structured request/result payloads described in
// spec component D, the {major,minor} version markers used for
// compatibility negotiation, and the GlobalStore/LocalStore interfaces the
// coordinator drives through the four-phase protocol.
//
// The actual SQL wire protocol is an external collaborator (see spec.md
// §1): this package only defines the contract and ships one concrete
// implementation, an in-memory reference store (memory_gsm.go,
// memory_lsm.go), used by tests and by cmd/shardmapctl. A production
// deployment supplies its own GlobalStore/LocalStore wrapping a real SQL
// driver; the coordinator's protocol logic does not change.
package store
