package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/mcp"
	"github.com/goliatone/go-crmbridge/operations"
)

// NewCallCmd creates the "call" subcommand.
func NewCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its result envelope",
		Example: `  crmbridge call get_module_data --arg module=Leads --arg limit=5
  crmbridge call create_record --args '{"module":"Leads","record":{"Last_Name":"Lovelace"}}'`,
		Args: cobra.ExactArgs(1),
		RunE: runCall,
	}
	cmd.Flags().String("args", "", "Tool arguments as a JSON object")
	cmd.Flags().StringArray("arg", nil, "Tool argument as key=value; JSON values are decoded (repeatable)")
	return cmd
}

// NewRefreshCmd creates the "refresh" subcommand.
func NewRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force an access token refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invokeTool(cmd, operations.OpRefreshToken, mcp.Arguments{})
		},
	}
}

func runCall(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("args")
	pairs, _ := cmd.Flags().GetStringArray("arg")
	arguments, err := parseToolArguments(raw, pairs)
	if err != nil {
		return exitError(exitUsage, "%v", err)
	}
	return invokeTool(cmd, args[0], arguments)
}

func invokeTool(cmd *cobra.Command, name string, arguments mcp.Arguments) error {
	bridge, err := openBridge(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = bridge.Close()
	}()

	env, ok := bridge.Tools().Call(cmd.Context(), name, arguments)
	if !ok {
		return exitError(exitUsage, "unknown tool %q (see crmbridge tools)", name)
	}
	if err := writeEnvelope(cmd.OutOrStdout(), env); err != nil {
		return err
	}
	if !env.IsSuccess() {
		return exitError(exitFailure, "%s failed: %s", name, env.Message)
	}
	return nil
}

func writeEnvelope(w io.Writer, env core.Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func parseToolArguments(raw string, pairs []string) (mcp.Arguments, error) {
	arguments := mcp.Arguments{}
	if strings.TrimSpace(raw) != "" {
		if err := decodeJSON(raw, &arguments); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("--arg %q must be key=value", pair)
		}
		var decoded any
		if err := decodeJSON(value, &decoded); err != nil {
			decoded = value
		}
		arguments[key] = decoded
	}
	return arguments, nil
}

func decodeJSON(raw string, target any) error {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}
