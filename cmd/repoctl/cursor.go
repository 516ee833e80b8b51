package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"baserepo"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Encode and decode cursor tokens",
}

var cursorEncodeCmd = &cobra.Command{
	Use:   "encode <json>",
	Short: "Encode a JSON object into a cursor token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCursor(args[0])
		if err != nil {
			return err
		}
		token, err := baserepo.EncodeCursor(c)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var cursorDecodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Decode a cursor token into a JSON object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := baserepo.DecodeCursor(args[0])
		if err != nil {
			return err
		}
		out, err := cursorJSON(c)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	cursorCmd.AddCommand(cursorEncodeCmd, cursorDecodeCmd)
	rootCmd.AddCommand(cursorCmd)
}

// cursorJSON renders c as a JSON object with keys in cursor order.
func cursorJSON(c baserepo.Cursor) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return "", err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return "", fmt.Errorf("cursor key %s: %w", e.Key, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String(), nil
}
