package serializer

import (
	"encoding/json"
	"errors"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// This is the wire format spoken by the websocket clients of ACI.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	var head frameHead
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	// every message must name its type
	if head.CmdType == nil {
		return errors.New("missing cmdType")
	}

	// commands this server does not speak may carry fields of any shape,
	// only the type and a numeric id are kept
	if *head.CmdType == common.MsgTUnknown {
		*msg = common.Message{CmdType: common.MsgTUnknown}
		_ = json.Unmarshal(head.ID, &msg.ID)
		return nil
	}

	return json.Unmarshal(b, msg)
}

// frameHead is the part of a frame that is decoded before the full message
type frameHead struct {
	CmdType *common.MessageType `json:"cmdType"`
	ID      json.RawMessage     `json:"id"`
}
