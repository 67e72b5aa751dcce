// ABOUTME: Tests for the AVTransport façade
// ABOUTME: A fake renderer answers canned SOAP responses per action
package upnp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeRenderer answers SOAP requests by action name and records the last
// request body per action.
type fakeRenderer struct {
	responses map[string]map[string]string
	bodies    map[string]string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		responses: make(map[string]map[string]string),
		bodies:    make(map[string]string),
	}
}

func (f *fakeRenderer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	soapAction := strings.Trim(r.Header.Get("SOAPACTION"), `"`)
	action := soapAction[strings.Index(soapAction, "#")+1:]
	data, _ := io.ReadAll(r.Body)
	f.bodies[action] = string(data)
	w.Write(responseEnvelope(action, f.responses[action]))
}

func TestTransportStateMapping(t *testing.T) {
	cases := map[string]TransportState{
		"STOPPED":          StateStopped,
		"PLAYING":          StatePlaying,
		"PAUSED_PLAYBACK":  StatePaused,
		"TRANSITIONING":    StateTransitioning,
		"NO_MEDIA_PRESENT": StateNoMedia,
		"CUSTOM_VENDOR":    StateUnknown,
		"":                 StateUnknown,
	}
	for raw, want := range cases {
		if got := parseTransportState(raw); got != want {
			t.Errorf("parseTransportState(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestAVTransportActions(t *testing.T) {
	fake := newFakeRenderer()
	fake.responses["GetTransportInfo"] = map[string]string{"CurrentTransportState": "PAUSED_PLAYBACK"}
	fake.responses["GetPositionInfo"] = map[string]string{
		"TrackDuration": "0:04:30",
		"RelTime":       "0:01:15",
		"TrackURI":      "http://10.0.0.2:8090/media/1",
	}
	fake.responses["GetMediaInfo"] = map[string]string{
		"CurrentURI":    "http://10.0.0.2:8090/media/1",
		"MediaDuration": "0:04:30",
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	av := NewAVTransport(NewClient(2*time.Second), srv.URL)

	if err := av.SetURI(ctx, "http://10.0.0.2:8090/media/1", MediaMetadata("http://10.0.0.2:8090/media/1", "Track One")); err != nil {
		t.Fatalf("SetURI: %v", err)
	}
	if body := fake.bodies["SetAVTransportURI"]; !strings.Contains(body, "<CurrentURI>http://10.0.0.2:8090/media/1</CurrentURI>") {
		t.Errorf("SetAVTransportURI body missing URI:\n%s", body)
	}

	if err := av.Play(ctx); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if body := fake.bodies["Play"]; !strings.Contains(body, "<Speed>1</Speed>") {
		t.Errorf("Play body missing Speed:\n%s", body)
	}

	if err := av.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := av.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := av.Seek(ctx, 95*time.Second); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	body := fake.bodies["Seek"]
	if !strings.Contains(body, "<Unit>REL_TIME</Unit>") || !strings.Contains(body, "<Target>0:01:35</Target>") {
		t.Errorf("Seek body wrong:\n%s", body)
	}

	state, err := av.TransportState(ctx)
	if err != nil {
		t.Fatalf("TransportState: %v", err)
	}
	if state != StatePaused {
		t.Errorf("TransportState = %v, want paused", state)
	}

	pos, err := av.PositionInfo(ctx)
	if err != nil {
		t.Fatalf("PositionInfo: %v", err)
	}
	if pos.Duration != 4*time.Minute+30*time.Second {
		t.Errorf("Duration = %v", pos.Duration)
	}
	if pos.Position != time.Minute+15*time.Second {
		t.Errorf("Position = %v", pos.Position)
	}
	if pos.TrackURI != "http://10.0.0.2:8090/media/1" {
		t.Errorf("TrackURI = %q", pos.TrackURI)
	}

	media, err := av.MediaInfo(ctx)
	if err != nil {
		t.Fatalf("MediaInfo: %v", err)
	}
	if media.CurrentURI != "http://10.0.0.2:8090/media/1" {
		t.Errorf("CurrentURI = %q", media.CurrentURI)
	}
	if media.Duration != 4*time.Minute+30*time.Second {
		t.Errorf("MediaInfo Duration = %v", media.Duration)
	}
}

func TestPositionInfoToleratesUnimplementedTimes(t *testing.T) {
	fake := newFakeRenderer()
	fake.responses["GetPositionInfo"] = map[string]string{
		"TrackDuration": "NOT_IMPLEMENTED",
		"RelTime":       "NOT_IMPLEMENTED",
		"TrackURI":      "http://10.0.0.2:8090/media/3",
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	av := NewAVTransport(NewClient(2*time.Second), srv.URL)
	pos, err := av.PositionInfo(context.Background())
	if err != nil {
		t.Fatalf("PositionInfo: %v", err)
	}
	if pos.Duration != 0 || pos.Position != 0 {
		t.Errorf("unparseable times should read zero, got %+v", pos)
	}
	if pos.TrackURI == "" {
		t.Error("TrackURI lost")
	}
}
