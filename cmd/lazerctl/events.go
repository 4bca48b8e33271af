package main

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/spf13/cobra"
)

type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type keyEvent struct {
	Code    uint16 `json:"code"`
	Pressed bool   `json:"pressed"`
}

type hsv struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

func encodeEvent(typ string, payload any) ([]byte, error) {
	env := eventEnvelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// send writes each event on one connection and stops at the first rejection.
func send(msgs ...[]byte) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	dec := json.NewDecoder(conn)
	for _, m := range msgs {
		if _, err := fmt.Fprintf(conn, "%s\n", m); err != nil {
			return fmt.Errorf("send event: %w", err)
		}
		var resp ipcResponse
		if err := dec.Decode(&resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if resp.Status != "ok" {
			return fmt.Errorf("daemon error: %s", resp.Error)
		}
	}
	return nil
}

func sendOne(typ string, payload any) error {
	msg, err := encodeEvent(typ, payload)
	if err != nil {
		return err
	}
	return send(msg)
}

func parseKey(name string) (uint16, error) {
	n := strings.ToUpper(name)
	if !strings.HasPrefix(n, "KEY_") {
		n = "KEY_" + n
	}
	code, ok := evdev.KEYFromString[n]
	if !ok {
		return 0, fmt.Errorf("unknown key %q", name)
	}
	return uint16(code), nil
}

func parseUint8(s, what string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be 0-255", what, s)
	}
	return uint8(v), nil
}

var keyCmd = &cobra.Command{
	Use:   "key (tap|press|release) KEY",
	Short: "Inject a key transition as if it came from the keyboard",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseKey(args[1])
		if err != nil {
			return err
		}
		press, _ := encodeEvent("key", keyEvent{Code: code, Pressed: true})
		release, _ := encodeEvent("key", keyEvent{Code: code, Pressed: false})
		switch args[0] {
		case "tap":
			return send(press, release)
		case "press":
			return send(press)
		case "release":
			return send(release)
		default:
			return fmt.Errorf("unknown key action %q (tap, press or release)", args[0])
		}
	},
}

var opCmd = &cobra.Command{
	Use:   "op NAME",
	Short: "Invoke a keyboard operation (sentence_case, winlock, socd_mode, nkro, bootloader, clear_config, type_alchemy, night_mode, game_mode, audio_viz)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne("op", map[string]string{"op": args[0]})
	},
}

var encoderCmd = &cobra.Command{
	Use:   "encoder STEPS",
	Short: "Turn the encoder (positive is clockwise)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid steps %q", args[0])
		}
		return sendOne("encoder_turn", map[string]int{"steps": steps})
	},
}

var alchemyCmd = &cobra.Command{
	Use:   "alchemy",
	Short: "Manage type alchemy mappings",
}

var alchemyAddCmd = &cobra.Command{
	Use:   "add WORD REPLACEMENT",
	Short: "Add a word mapping at runtime",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendOne("alchemy_add", map[string]string{"word": args[0], "replacement": args[1]})
	},
}

var audioCmd = &cobra.Command{
	Use:   "audio LEVEL...",
	Short: "Send one visualiser frame (up to 6 band levels, 0-6)",
	Args:  cobra.RangeArgs(1, 6),
	RunE: func(cmd *cobra.Command, args []string) error {
		bands := make([]int, 0, len(args))
		for _, a := range args {
			v, err := parseUint8(a, "level")
			if err != nil {
				return err
			}
			bands = append(bands, int(v))
		}
		return sendOne("audio_frame", map[string][]int{"bands": bands})
	},
}

var nightColorCmd = &cobra.Command{
	Use:   "night-color H S V",
	Short: "Set the night mode colour (8-bit HSV)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var c hsv
		var err error
		if c.H, err = parseUint8(args[0], "hue"); err != nil {
			return err
		}
		if c.S, err = parseUint8(args[1], "saturation"); err != nil {
			return err
		}
		if c.V, err = parseUint8(args[2], "value"); err != nil {
			return err
		}
		return sendOne("night_color", map[string]hsv{"hsv": c})
	},
}

func init() {
	alchemyCmd.AddCommand(alchemyAddCmd)
	rootCmd.AddCommand(keyCmd, opCmd, encoderCmd, alchemyCmd, audioCmd, nightColorCmd)
}
