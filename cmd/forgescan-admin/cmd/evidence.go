package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgescan/api/internal/app"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Inspect and export the audit evidence ledger",
}

var evidenceVerifyCmd = &cobra.Command{
	Use:   "verify ID",
	Short: "Re-hash a ledger record and compare against the stored hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvidenceVerify,
}

var evidenceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail as gzip-compressed JSON lines",
	RunE:  runEvidenceExport,
}

func init() {
	evidenceVerifyCmd.Flags().String("tenant", "", "Tenant ID (required)")
	_ = evidenceVerifyCmd.MarkFlagRequired("tenant")

	evidenceExportCmd.Flags().String("tenant", "", "Tenant ID (required)")
	evidenceExportCmd.Flags().String("from", "", "Range start, RFC 3339 (required)")
	evidenceExportCmd.Flags().String("to", "", "Range end, RFC 3339 (required)")
	evidenceExportCmd.Flags().String("out", "", "Output file (default: stdout)")
	_ = evidenceExportCmd.MarkFlagRequired("tenant")
	_ = evidenceExportCmd.MarkFlagRequired("from")
	_ = evidenceExportCmd.MarkFlagRequired("to")

	evidenceCmd.AddCommand(evidenceVerifyCmd)
	evidenceCmd.AddCommand(evidenceExportCmd)
}

func runEvidenceVerify(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	tenantID, _ := cmd.Flags().GetString("tenant")
	result, err := svcs.Evidence.Verify(cmd.Context(), tenantID, args[0])
	if err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(result)
	case outputYAML:
		printYAML(result)
	default:
		fmt.Printf("Record:   %s\n", args[0])
		fmt.Printf("Entity:   %s\n", result.Record.RelatedEntity())
		fmt.Printf("Stored:   %s\n", result.StoredHash)
		fmt.Printf("Computed: %s\n", result.ComputedHash)
		if result.Valid {
			fmt.Println("Status:   VALID")
		} else {
			fmt.Println("Status:   TAMPERED")
		}
	}

	if !result.Valid {
		return fmt.Errorf("evidence record %s failed verification", args[0])
	}
	return nil
}

func runEvidenceExport(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	tenantID, _ := cmd.Flags().GetString("tenant")
	fromRaw, _ := cmd.Flags().GetString("from")
	toRaw, _ := cmd.Flags().GetString("to")
	outPath, _ := cmd.Flags().GetString("out")

	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return fmt.Errorf("invalid --from, expected RFC 3339: %w", err)
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return fmt.Errorf("invalid --to, expected RFC 3339: %w", err)
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	count, err := svcs.Evidence.ExportAuditTrail(cmd.Context(), out, app.ExportInput{
		TenantID: tenantID,
		From:     from,
		To:       to,
	})
	if err != nil {
		return err
	}

	if outPath != "" {
		fmt.Printf("Exported %d records to %s.\n", count, outPath)
	} else {
		fmt.Fprintf(os.Stderr, "Exported %d records.\n", count)
	}
	return nil
}
