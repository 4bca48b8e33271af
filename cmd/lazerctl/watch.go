package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the daemon state as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get("http://" + httpAddr + "/state")
		if err != nil {
			return fmt.Errorf("get state: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read state: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("get state: %s: %s", resp.Status, bytes.TrimSpace(body))
		}

		var out bytes.Buffer
		if err := json.Indent(&out, body, "", "  "); err != nil {
			_, _ = os.Stdout.Write(body)
			return nil
		}
		fmt.Println(out.String())
		return nil
	},
}

// wsEnvelope mirrors the daemon's WS frame.
type wsEnvelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream state changes from the daemon until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u := url.URL{Scheme: "ws", Host: httpAddr, Path: "/ws"}

		d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
		conn, _, err := d.Dial(u.String(), nil)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", u.String(), err)
		}
		defer conn.Close()

		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		done := make(chan error, 1)
		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					done <- err
					return
				}
				printFrame(msg)
			}
		}()

		select {
		case <-sigc:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	},
}

func printFrame(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		fmt.Println(string(msg))
		return
	}
	ts := time.Now()
	if env.Ts != nil {
		ts = env.Ts.Local()
	}
	data := string(env.Data)
	if data == "" {
		data = "{}"
	}
	fmt.Printf("%s %-22s %s\n", ts.Format("15:04:05.000"), env.Type, data)
}

func init() {
	rootCmd.AddCommand(stateCmd, watchCmd)
}
