package ws

import (
	"encoding/json"
	"testing"
)

func roundTripFrame(t *testing.T, f Frame) Frame {
	t.Helper()
	data, err := MarshalFrame(f)
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}
	got, err := UnmarshalFrame(data)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	return got
}

func payloadField(t *testing.T, raw json.RawMessage, key string) string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return m[key]
}

func TestRequestFrameRoundTrip(t *testing.T) {
	params, _ := json.Marshal(map[string]string{"content": "add milk to my list"})
	got := roundTripFrame(t, Frame{
		Type:   FrameTypeRequest,
		ID:     "req-1",
		Method: string(MethodChat),
		Params: params,
	})

	if got.Type != FrameTypeRequest {
		t.Errorf("Type = %q, want %q", got.Type, FrameTypeRequest)
	}
	if got.ID != "req-1" {
		t.Errorf("ID = %q, want req-1", got.ID)
	}
	if got.Method != string(MethodChat) {
		t.Errorf("Method = %q, want %q", got.Method, MethodChat)
	}
	if v := payloadField(t, got.Params, "content"); v != "add milk to my list" {
		t.Errorf("params.content = %q", v)
	}
}

func TestEventFrameRoundTrip(t *testing.T) {
	f, err := NewEventFrame("tool.result", "conv_42", map[string]string{"tool": "add_task"})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}

	got := roundTripFrame(t, f)
	if got.Type != FrameTypeEvent {
		t.Errorf("Type = %q, want %q", got.Type, FrameTypeEvent)
	}
	if got.Event != "tool.result" {
		t.Errorf("Event = %q, want tool.result", got.Event)
	}
	if got.ConversationID != "conv_42" {
		t.Errorf("ConversationID = %q, want conv_42", got.ConversationID)
	}
	if v := payloadField(t, got.Payload, "tool"); v != "add_task" {
		t.Errorf("payload.tool = %q, want add_task", v)
	}
}

func TestResponseFrames(t *testing.T) {
	ok, err := NewResponseFrame("req-5", true, map[string]string{"status": "completed"}, "")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if ok.Type != FrameTypeResponse || ok.ID != "req-5" {
		t.Errorf("frame = %+v, want response for req-5", ok)
	}
	if ok.OK == nil || !*ok.OK {
		t.Error("OK flag not set on success frame")
	}
	if v := payloadField(t, ok.Payload, "status"); v != "completed" {
		t.Errorf("payload.status = %q, want completed", v)
	}

	fail, err := NewResponseFrame("req-6", false, nil, "message content is empty")
	if err != nil {
		t.Fatalf("NewResponseFrame: %v", err)
	}
	if fail.OK == nil || *fail.OK {
		t.Error("OK flag set on failure frame")
	}
	if fail.Error != "message content is empty" {
		t.Errorf("Error = %q", fail.Error)
	}
	if fail.Payload != nil {
		t.Errorf("Payload = %s, want none", fail.Payload)
	}
}
