package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	gocmd "github.com/goliatone/go-crmbridge/adapters/gocommand"
	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/query"
	sqlstore "github.com/goliatone/go-crmbridge/store/sql"
)

// NewActivityCmd creates the "activity" subcommand group.
func NewActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Inspect the operation activity ledger",
	}
	cmd.AddCommand(newActivityListCmd())
	cmd.AddCommand(newActivityPruneCmd())
	return cmd
}

func newActivityListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded operations, newest first",
		Args:  cobra.NoArgs,
		RunE:  runActivityList,
	}
	cmd.Flags().String("operation", "", "Filter by operation name")
	cmd.Flags().String("module", "", "Filter by module")
	cmd.Flags().String("status", "", "Filter by status: ok or error")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("per-page", 25, "Entries per page")
	cmd.Flags().Bool("json", false, "Print the page as JSON")
	return cmd
}

func newActivityPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old activity entries",
		Args:  cobra.NoArgs,
		RunE:  runActivityPrune,
	}
	cmd.Flags().Duration("ttl", 0, "Delete entries older than this age")
	cmd.Flags().Int("row-cap", 0, "Keep at most this many entries")
	return cmd
}

// openActivityStore needs only the ledger DSN, not CRM credentials.
func openActivityStore(cmd *cobra.Command) (*sqlstore.ActivityStore, func(), error) {
	dsn, err := resolveActivityDSN(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := sqlstore.Open(cmd.Context(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening activity ledger: %w", err)
	}
	store, err := sqlstore.NewActivityStoreFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

func resolveActivityDSN(cmd *cobra.Command) (string, error) {
	if dsn := strings.TrimSpace(runtimeConfig(cmd).ActivityDSN); dsn != "" {
		return dsn, nil
	}
	for _, loader := range configLoaders(cmd) {
		raw, err := loader.LoadRaw(cmd.Context())
		if err != nil {
			return "", exitError(exitUsage, "configuration: %v", err)
		}
		if dsn, ok := raw["activity_dsn"].(string); ok && strings.TrimSpace(dsn) != "" {
			return strings.TrimSpace(dsn), nil
		}
	}
	return "", exitError(exitUsage, "activity ledger is not configured (set --activity-dsn or CRMBRIDGE_ACTIVITY_DSN)")
}

func runActivityList(cmd *cobra.Command, _ []string) error {
	operation, _ := cmd.Flags().GetString("operation")
	module, _ := cmd.Flags().GetString("module")
	status, _ := cmd.Flags().GetString("status")
	page, _ := cmd.Flags().GetInt("page")
	perPage, _ := cmd.Flags().GetInt("per-page")
	asJSON, _ := cmd.Flags().GetBool("json")

	msg := query.ListActivityMessage{Filter: core.ActivityFilter{
		Operation: strings.TrimSpace(operation),
		Module:    strings.TrimSpace(module),
		Status:    core.ActivityStatus(strings.TrimSpace(status)),
		Page:      page,
		PerPage:   perPage,
	}}
	if err := gocmd.ValidateMessageContract(msg); err != nil {
		return exitError(exitUsage, "%s", describeError(err))
	}

	store, closeStore, err := openActivityStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := query.NewListActivityQuery(store).Query(cmd.Context(), msg)
	if err != nil {
		return fmt.Errorf("listing activity: %w", err)
	}
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding activity: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPERATION\tMODULE\tRECORD\tSTATUS\tCODE\tDURATION")
	for _, entry := range result.Items {
		code := ""
		if entry.Code != 0 {
			code = fmt.Sprint(entry.Code)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\n",
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.Operation,
			entry.Module,
			entry.RecordID,
			entry.Status,
			code,
			entry.DurationMS,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "page %d, %d of %d entries\n", result.Page, len(result.Items), result.Total)
	return nil
}

func runActivityPrune(cmd *cobra.Command, _ []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")
	rowCap, _ := cmd.Flags().GetInt("row-cap")
	if ttl <= 0 && rowCap <= 0 {
		return exitError(exitUsage, "set --ttl or --row-cap")
	}

	store, closeStore, err := openActivityStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	deleted, err := store.Prune(cmd.Context(), sqlstore.RetentionPolicy{TTL: ttl, RowCap: rowCap})
	if err != nil {
		return fmt.Errorf("pruning activity: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", deleted)
	return nil
}
