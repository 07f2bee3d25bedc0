package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "DEBUG": slog.LevelDebug, "": slog.LevelInfo, "info": slog.LevelInfo,
		"warn": slog.LevelWarn, "warning": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("json", slog.LevelInfo, &buf)
	l.Debug("hidden")
	l.Info("frame_decoded", "message", "ExampleMessage")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if rec["msg"] != "frame_decoded" || rec["message"] != "ExampleMessage" {
		t.Fatalf("record %v", rec)
	}
}

func TestSetIgnoresNil(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })
	var buf bytes.Buffer
	Set(New("text", slog.LevelInfo, &buf))
	Set(nil)
	L().Info("signal_out_of_range", "signal", "Temperature")
	if !strings.Contains(buf.String(), "signal_out_of_range") {
		t.Fatalf("text output %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"text": FormatText, "JSON": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for xml")
	}
}

func TestForTagsComponent(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })
	var buf bytes.Buffer
	Set(New(FormatText, slog.LevelDebug, &buf))
	For("hub").Debug("hub_subscribed", "name", "decoder")
	if !strings.Contains(buf.String(), "component=hub") {
		t.Fatalf("text output %q", buf.String())
	}
}
