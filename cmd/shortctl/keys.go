package main

import (
	"fmt"
	"strconv"

	"shortener/pkg/keycodec"

	"github.com/spf13/cobra"
)

var encodeCmd = &cobra.Command{
	Use:   "encode <number>",
	Short: "Print the base62 key for a non-negative integer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), keycodec.Encode(n))
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <key>",
	Short: "Print the integer a base62 key encodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := keycodec.Decode(args[0])
		if err != nil {
			return fmt.Errorf("cannot decode %q: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
}
