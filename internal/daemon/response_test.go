package daemon

import (
	"encoding/json"
	"testing"
)

func TestResponseToJSON(t *testing.T) {
	response := Response{}
	response.AddMessage("Router started", "INFO")
	response.AddData(map[string]string{"status": "connected"})

	var decoded Response
	if err := json.Unmarshal([]byte(response.ToJSON()), &decoded); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if len(decoded.Messages) != 1 || decoded.Messages[0].Message != "Router started" {
		t.Errorf("unexpected messages: %+v", decoded.Messages)
	}
	if decoded.Data == nil {
		t.Error("expected data to survive round trip")
	}
}

func TestResponseHasError(t *testing.T) {
	response := Response{}
	response.AddMessage("all good", "INFO")
	if response.HasError() {
		t.Error("expected no error")
	}

	response.AddMessage("boom", "ERROR")
	if !response.HasError() {
		t.Error("expected error to be detected")
	}
}
