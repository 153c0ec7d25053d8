package serializer

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
)

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		common.NewGetRequest("notes", "a"),
		common.NewGetResponse(7, "notes", "a", json.RawMessage(`{"x":[1,2]}`)),
		common.NewSetRequest("notes", "a", json.RawMessage(`"text"`)),
		common.NewSetResponse(3),
		common.NewListResponse(4, []string{"a", "b"}),
		common.NewPersistRequest(""),
		common.NewAuthRequest("token"),
		common.NewSetIndexRequest("notes", "list", 2, json.RawMessage(`true`)),
		common.NewRecentIndexRequest("notes", "list", 5),
		{CmdType: common.MsgTError, ID: 9, Code: common.CodeStoreUnknown, Err: "store unknown"},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	serializer := NewJSONSerializer()

	for i, msg := range testMessages() {
		data, err := serializer.Serialize(msg)
		if err != nil {
			t.Errorf("Failed to serialize message %d: %v", i, err)
			continue
		}

		var result common.Message
		if err := serializer.Deserialize(data, &result); err != nil {
			t.Errorf("Failed to deserialize message %d: %v", i, err)
			continue
		}

		if !reflect.DeepEqual(msg, result) {
			t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, msg, result)
		}
	}
}

// TestDecodeLegacyFrames decodes frames as written by the Python and JS clients
func TestDecodeLegacyFrames(t *testing.T) {
	serializer := NewJSONSerializer()

	testCases := []struct {
		frame string
		want  common.Message
	}{
		{
			frame: `{"cmdType": "get_val", "key": "a", "db_key": "notes"}`,
			want:  common.Message{CmdType: common.MsgTGetVal, Key: "a", DBKey: "notes"},
		},
		{
			frame: `{"cmdType": "set_val", "key": "a", "db_key": "notes", "val": 1}`,
			want:  common.Message{CmdType: common.MsgTSetVal, Key: "a", DBKey: "notes", Val: json.RawMessage(`1`)},
		},
		{
			frame: `{"cmdType": "wtd", "db_key": ""}`,
			want:  common.Message{CmdType: common.MsgTPersist},
		},
		{
			frame: `{"cmdType": "g_auth", "id_token": "abc"}`,
			want:  common.Message{CmdType: common.MsgTAuth, IDToken: "abc"},
		},
		{
			frame: `{"cmdType": "event", "destination": "x"}`,
			want:  common.Message{CmdType: common.MsgTUnknown},
		},
	}

	for _, tc := range testCases {
		var got common.Message
		if err := serializer.Deserialize([]byte(tc.frame), &got); err != nil {
			t.Errorf("Deserialize(%s) failed: %v", tc.frame, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Deserialize(%s) = %+v, want %+v", tc.frame, got, tc.want)
		}
	}
}

// TestInvalidFrames tests that malformed frames are rejected
func TestInvalidFrames(t *testing.T) {
	serializer := NewJSONSerializer()

	for _, frame := range []string{
		``,
		`not json`,
		`{"key": "a"}`,
		`{"cmdType": 5}`,
		`[1, 2]`,
	} {
		var msg common.Message
		if err := serializer.Deserialize([]byte(frame), &msg); err == nil {
			t.Errorf("Expected error for frame %q", frame)
		}
	}
}

// TestUnsupportedCommands tests that commands of other deployments decode as
// MsgTUnknown regardless of the shape of their fields
func TestUnsupportedCommands(t *testing.T) {
	serializer := NewJSONSerializer()

	for frame, wantID := range map[string]uint64{
		`{"cmdType":"a_auth","id":"user-7","token":"x"}`: 0,
		`{"cmdType":"event","id":12,"data":{"x":1}}`:     12,
		`{"cmdType":"event","key":["not","a","string"]}`: 0,
	} {
		var msg common.Message
		if err := serializer.Deserialize([]byte(frame), &msg); err != nil {
			t.Errorf("Deserialize(%s) failed: %v", frame, err)
			continue
		}
		if msg.CmdType != common.MsgTUnknown || msg.ID != wantID {
			t.Errorf("Deserialize(%s) = %+v, want unknown command with id %d", frame, msg, wantID)
		}
	}
}

// TestWireNames tests that requests are encoded with the cmdType names of the protocol
func TestWireNames(t *testing.T) {
	serializer := NewJSONSerializer()

	data, err := serializer.Serialize(common.NewGetRequest("notes", "a"))
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if raw["cmdType"] != "get_val" || raw["db_key"] != "notes" || raw["key"] != "a" {
		t.Errorf("Unexpected wire encoding: %s", data)
	}
}
