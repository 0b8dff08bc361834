package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/domain/enforcement"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate and inspect the release gate",
}

var gateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate the release gate for a tenant",
	Long: `Evaluate the release gate for a tenant and record the decision.

The exit code mirrors the verdict so the command can gate a CI step
directly: 0 for ALLOW or WARN, 1 for BLOCK.`,
	RunE: runGateCheck,
}

var gateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent gate decisions",
	RunE:  runGateHistory,
}

var gateQuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show a tenant's HARD_FAIL quota for the current month",
	RunE:  runGateQuota,
}

func init() {
	gateCheckCmd.Flags().String("tenant", "", "Tenant ID (required)")
	gateCheckCmd.Flags().String("pipeline", "", "Pipeline identifier recorded with the decision")
	_ = gateCheckCmd.MarkFlagRequired("tenant")

	gateHistoryCmd.Flags().String("tenant", "", "Tenant ID (required)")
	gateHistoryCmd.Flags().Int("limit", 20, "Maximum decisions to list")
	_ = gateHistoryCmd.MarkFlagRequired("tenant")

	gateQuotaCmd.Flags().String("tenant", "", "Tenant ID (required)")
	_ = gateQuotaCmd.MarkFlagRequired("tenant")

	gateCmd.AddCommand(gateCheckCmd)
	gateCmd.AddCommand(gateHistoryCmd)
	gateCmd.AddCommand(gateQuotaCmd)
}

func runGateCheck(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	tenantID, _ := cmd.Flags().GetString("tenant")
	pipelineID, _ := cmd.Flags().GetString("pipeline")

	result, err := svcs.Enforcement.Gate(cmd.Context(), app.GateInput{
		TenantID:   tenantID,
		PipelineID: pipelineID,
	})
	if err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(result)
	case outputYAML:
		printYAML(result)
	default:
		fmt.Printf("Decision:  %s\n", result.Decision)
		fmt.Printf("Level:     %s\n", result.EnforcementLevel)
		fmt.Printf("Reason:    %s\n", result.Reason)
		if result.AssetAtRisk != "" {
			fmt.Printf("At risk:   %s\n", result.AssetAtRisk)
		}
		if result.FinancialRiskUSD > 0 {
			fmt.Printf("Exposure:  $%.0f\n", result.FinancialRiskUSD)
		}
		if result.RequiredAction != "" {
			fmt.Printf("Action:    %s\n", result.RequiredAction)
		}
		if result.QuotaExhausted {
			fmt.Println("Quota:     HARD_FAIL quota exhausted")
		}
	}

	if result.Decision == enforcement.OutcomeBlock {
		return fmt.Errorf("release blocked: %s", result.Reason)
	}
	return nil
}

func runGateHistory(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	tenantID, _ := cmd.Flags().GetString("tenant")
	limit, _ := cmd.Flags().GetInt("limit")

	decisions, err := svcs.Enforcement.History(cmd.Context(), tenantID, limit)
	if err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON, outputYAML:
		rows := make([]map[string]any, len(decisions))
		for i, d := range decisions {
			rows[i] = map[string]any{
				"id":           d.ID().String(),
				"pipeline_id":  d.PipelineID(),
				"decision":     string(d.Outcome()),
				"level":        string(d.Level()),
				"max_priority": d.MaxPriority(),
				"acknowledged": d.IsAcknowledged(),
				"decided_at":   d.DecidedAt(),
			}
		}
		if flagOutput == outputJSON {
			printJSON(rows)
		} else {
			printYAML(rows)
		}
	default:
		table := newTable("ID", "PIPELINE", "DECISION", "LEVEL", "PRIORITY", "ACKED", "DECIDED")
		for _, d := range decisions {
			table.AddRow(d.ID().String(), d.PipelineID(), string(d.Outcome()), string(d.Level()),
				strconv.FormatFloat(d.MaxPriority(), 'f', 1, 64),
				strconv.FormatBool(d.IsAcknowledged()),
				d.DecidedAt().Format(time.RFC3339))
		}
		table.Flush()
	}
	return nil
}

func runGateQuota(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	tenantID, _ := cmd.Flags().GetString("tenant")
	status, err := svcs.Enforcement.Quota(cmd.Context(), tenantID)
	if err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(status)
	case outputYAML:
		printYAML(status)
	default:
		remaining := strconv.Itoa(status.Remaining)
		if status.Remaining < 0 {
			remaining = "unlimited"
		}
		fmt.Printf("Plan:      %s\n", status.Plan)
		fmt.Printf("Used:      %d\n", status.UsedThisMonth)
		fmt.Printf("Remaining: %s\n", remaining)
		fmt.Printf("Allowed:   %t\n", status.Allowed)
	}
	return nil
}
