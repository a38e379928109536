// Package wire encodes protocol messages and replica snapshots in the
// protobuf wire format. The same encoding frames gRPC payloads between
// nodes and produces canonical byte keys for model-checker states.
//
// Frame layout (field numbers):
//
//	1 kind        varint
//	2 request_id  varint
//	3 key         bytes
//	4 value       bytes
//	5 version     embedded Version
//	6 context     repeated embedded Version
//
//	Version: 1 counter varint, 2 replica varint
package wire
