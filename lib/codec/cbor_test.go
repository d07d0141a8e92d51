// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type commandFrame struct {
	Kind    string `cbor:"kind"`
	Account string `cbor:"account,omitempty"`
}

type eventFrame struct {
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

func TestMarshalDeterministicKeyOrder(t *testing.T) {
	first, err := Marshal(map[string]any{"kind": "switch-account", "account": "alpha", "a": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(map[string]any{"a": 1, "account": "alpha", "kind": "switch-account"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("map encoding depends on insertion order: %x vs %x", first, second)
	}
}

func TestTimestampsKeepSubSecondPrecision(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 30, 0, 123456789, time.UTC)
	data, err := Marshal(eventFrame{Level: "info", Timestamp: at})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded eventFrame
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, at)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"kind": "stop-worker", "extra": []int{1, 2}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var frame commandFrame
	if err := Unmarshal(data, &frame); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if frame.Kind != "stop-worker" {
		t.Errorf("Kind = %q", frame.Kind)
	}
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"options": map[string]any{"headless": true}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	options, ok := decoded["options"].(map[string]any)
	if !ok {
		t.Fatalf("options decoded as %T, want map[string]any", decoded["options"])
	}
	if options["headless"] != true {
		t.Errorf("headless = %v", options["headless"])
	}
}

func TestStreamOfFrames(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, kind := range []string{"log", "progress", "status"} {
		if err := encoder.Encode(commandFrame{Kind: kind}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	var kinds []string
	for range 3 {
		var frame commandFrame
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		kinds = append(kinds, frame.Kind)
	}
	if strings.Join(kinds, ",") != "log,progress,status" {
		t.Errorf("decoded kinds = %v", kinds)
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(commandFrame{Kind: "get-log"})
	if err != nil {
		t.Fatal(err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"kind"`) || !strings.Contains(notation, `"get-log"`) {
		t.Errorf("Diagnose = %s", notation)
	}
}
