package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-crmbridge/mcp"
)

// NewToolsCmd creates the "tools" subcommand. It needs no credentials.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools announced to agents",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().Bool("schema", false, "Print the tools/list payload with input schemas as JSON")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	tools, err := mcp.NewCatalogToolset(mcp.NewCatalogHandlers(nil, nil))
	if err != nil {
		return err
	}
	if schema, _ := cmd.Flags().GetBool("schema"); schema {
		data, err := json.MarshalIndent(sdk.ListToolsResult{Tools: tools.Tools()}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding tools: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, tool := range tools.Tools() {
		fmt.Fprintf(w, "%s\t%s\n", tool.Name, tool.Description)
	}
	return w.Flush()
}
