package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLEDFrame(t *testing.T) {
	b, err := encodeLEDFrame([]LEDColor{
		{Index: 3, RGB: RGB{R: 255}},
		{Index: 50, RGB: colorGreen},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"frame","leds":[[3,255,0,0],[50,0,255,102]]}`, string(b))

	b, err = encodeLEDFrame(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"frame","leds":[]}`, string(b))
}

// ledController is a websocket endpoint that records every text frame.
func ledController(t *testing.T) (wsURL string, frames <-chan string) {
	t.Helper()
	ch := make(chan string, 16)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ch <- string(msg)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), ch
}

func TestLEDLink_SendsChangedFramesOnly(t *testing.T) {
	url, frames := ledController(t)
	link, err := NewLEDLink(url, quietLogger())
	require.NoError(t, err)
	defer link.Close()

	red := []LEDColor{{Index: 1, RGB: colorRed}}
	blue := []LEDColor{{Index: 1, RGB: colorBlue}}

	require.NoError(t, link.SetLEDs(red))
	require.NoError(t, link.SetLEDs(red))
	require.NoError(t, link.SetLEDs(blue))

	var got []string
	for len(got) < 2 {
		select {
		case f := <-frames:
			got = append(got, f)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 frames, got %d", len(got))
		}
	}
	assert.Contains(t, got[0], `[1,255,0,0]`)
	assert.Contains(t, got[1], `[1,77,166,255]`)

	select {
	case f := <-frames:
		t.Fatalf("duplicate frame sent: %s", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLEDLink_RetryIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	link, err := NewLEDLink(url, quietLogger())
	require.NoError(t, err)

	err = link.SetLEDs(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")

	// Within the retry interval no dial is attempted at all.
	err = link.SetLEDs(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
