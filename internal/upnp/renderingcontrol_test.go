// ABOUTME: Tests for the RenderingControl façade
// ABOUTME: Covers volume clamping and mute flag parsing
package upnp

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRenderingControlActions(t *testing.T) {
	fake := newFakeRenderer()
	fake.responses["GetVolume"] = map[string]string{"CurrentVolume": "37"}
	fake.responses["GetMute"] = map[string]string{"CurrentMute": "1"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	rc := NewRenderingControl(NewClient(2*time.Second), srv.URL)

	if err := rc.SetVolume(ctx, 150); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	body := fake.bodies["SetVolume"]
	if !strings.Contains(body, "<DesiredVolume>100</DesiredVolume>") {
		t.Errorf("volume not clamped to 100:\n%s", body)
	}
	if !strings.Contains(body, "<Channel>Master</Channel>") {
		t.Errorf("SetVolume missing Master channel:\n%s", body)
	}

	if err := rc.SetVolume(ctx, -4); err != nil {
		t.Fatalf("SetVolume: %v", err)
	}
	if !strings.Contains(fake.bodies["SetVolume"], "<DesiredVolume>0</DesiredVolume>") {
		t.Error("volume not clamped to 0")
	}

	v, err := rc.Volume(ctx)
	if err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if v != 37 {
		t.Errorf("Volume = %d, want 37", v)
	}

	if err := rc.SetMute(ctx, true); err != nil {
		t.Fatalf("SetMute: %v", err)
	}
	if !strings.Contains(fake.bodies["SetMute"], "<DesiredMute>1</DesiredMute>") {
		t.Error("SetMute body wrong")
	}

	muted, err := rc.Mute(ctx)
	if err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if !muted {
		t.Error("Mute = false, want true")
	}
}

func TestMuteAcceptsTextualTrue(t *testing.T) {
	fake := newFakeRenderer()
	fake.responses["GetMute"] = map[string]string{"CurrentMute": "true"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rc := NewRenderingControl(NewClient(2*time.Second), srv.URL)
	muted, err := rc.Mute(context.Background())
	if err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if !muted {
		t.Error(`Mute = false for "true"`)
	}
}
