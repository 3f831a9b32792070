package contract_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

type openAPISpec struct {
	Paths      map[string]map[string]json.RawMessage `json:"paths"`
	Components struct {
		Schemas map[string]json.RawMessage `json:"schemas"`
	} `json:"components"`
}

func TestRealtimeSpecificationIncludesGatewayEndpoints(t *testing.T) {
	spec := loadSpec(t, "docs/api/realtime.json")

	requiredPaths := []string{
		"/api/v1/ws",
		"/api/v1/order",
		"/api/v1/order/search/{term}",
		"/api/v1/order/{orderNumber}/track",
		"/api/v1/chat/create",
		"/api/v1/chat/{id}/messages",
		"/api/v1/chat/{id}/messages/{messageId}",
		"/api/v1/restaurant/orders",
		"/api/v1/restaurant/orders/{id}/accept",
		"/api/v1/restaurant/orders/{id}/reject",
		"/api/v1/restaurant/orders/{id}/status",
		"/api/v1/restaurant/chat/staff/chats",
		"/api/v1/restaurant/chat/{id}/accept",
	}

	for _, path := range requiredPaths {
		if _, ok := spec.Paths[path]; !ok {
			t.Fatalf("expected realtime spec to contain path %s", path)
		}
	}

	for _, schema := range []string{"Order", "DuplicateOrder", "ChatRoom", "ChatMessage", "RealtimeEnvelope"} {
		if _, ok := spec.Components.Schemas[schema]; !ok {
			t.Fatalf("expected realtime spec to contain schema %s", schema)
		}
	}
}

func TestOrderPlacementDocumentsDuplicateConflict(t *testing.T) {
	spec := loadSpec(t, "docs/api/realtime.json")

	raw, ok := spec.Paths["/api/v1/order"]["post"]
	if !ok {
		t.Fatal("expected realtime spec to document POST /api/v1/order")
	}

	var operation struct {
		Responses map[string]json.RawMessage `json:"responses"`
	}
	if err := json.Unmarshal(raw, &operation); err != nil {
		t.Fatalf("failed to unmarshal order placement operation: %v", err)
	}

	for _, status := range []string{"201", "409"} {
		if _, ok := operation.Responses[status]; !ok {
			t.Fatalf("expected order placement to document a %s response", status)
		}
	}
}

func TestAcceptEndpointsDocumentRaceConflict(t *testing.T) {
	spec := loadSpec(t, "docs/api/realtime.json")

	for _, path := range []string{
		"/api/v1/restaurant/orders/{id}/accept",
		"/api/v1/restaurant/chat/{id}/accept",
	} {
		raw, ok := spec.Paths[path]["post"]
		if !ok {
			t.Fatalf("expected realtime spec to document POST %s", path)
		}

		var operation struct {
			Responses map[string]json.RawMessage `json:"responses"`
		}
		if err := json.Unmarshal(raw, &operation); err != nil {
			t.Fatalf("failed to unmarshal operation for %s: %v", path, err)
		}
		if _, ok := operation.Responses["409"]; !ok {
			t.Fatalf("expected %s to document a 409 conflict for the losing claim", path)
		}
	}
}

func loadSpec(t *testing.T, relative string) openAPISpec {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("failed to resolve caller")
	}
	base := filepath.Join(filepath.Dir(filename), "..", "..")
	fullPath := filepath.Join(base, relative)

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatalf("failed to read %s: %v", fullPath, err)
	}
	var spec openAPISpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", fullPath, err)
	}
	return spec
}
