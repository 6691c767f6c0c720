package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/sitechat-backend/internal/platform/apikey"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key utilities",
}

var apikeyHashCmd = &cobra.Command{
	Use:   "hash [key]",
	Short: "Print the stored digest of an API key (reads stdin when no key is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) == 1 {
			raw = args[0]
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			raw = strings.TrimSpace(line)
		}
		key, err := apikey.Parse(raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "prefix=%s hash=%s\n", apikey.DisplayPrefix(key), apikey.Hash(key))
		return nil
	},
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a key offline and print plaintext, prefix and digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := apikey.Generate()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key=%s\nprefix=%s\nhash=%s\n", gen.Plaintext, gen.Display, gen.Hash)
		return nil
	},
}

func init() {
	apikeyCmd.AddCommand(apikeyHashCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd)
}
