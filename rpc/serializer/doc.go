// Package serializer provides message serialization for the ACI RPC system.
// It defines a common interface so the transports do not depend on a concrete
// encoding.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding, one object per frame, as spoken by the
//     Python and JavaScript clients. A message without a cmdType field is rejected,
//     a message with an unknown cmdType decodes to common.MsgTUnknown.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	serializer := serializer.NewJSONSerializer()
//	data, err := serializer.Serialize(message)
//	// ... send data ...
//	var receivedMsg common.Message
//	err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
