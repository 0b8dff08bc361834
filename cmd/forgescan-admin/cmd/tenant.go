package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgescan/api/internal/app"
	"github.com/forgescan/api/pkg/domain/tenant"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tenant",
	RunE:  runTenantCreate,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active tenants",
	RunE:  runTenantList,
}

var tenantGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantGet,
}

var tenantChangePlanCmd = &cobra.Command{
	Use:   "change-plan ID PLAN",
	Short: "Move a tenant to a new plan (free, developer, team, enterprise)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTenantChangePlan,
}

var tenantDeactivateCmd = &cobra.Command{
	Use:   "deactivate ID",
	Short: "Disable a tenant; its gate evaluations fail closed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantDeactivate,
}

func init() {
	tenantCreateCmd.Flags().String("name", "", "Tenant name (required)")
	tenantCreateCmd.Flags().String("plan", "free", "Plan: free, developer, team, enterprise")
	_ = tenantCreateCmd.MarkFlagRequired("name")

	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantGetCmd)
	tenantCmd.AddCommand(tenantChangePlanCmd)
	tenantCmd.AddCommand(tenantDeactivateCmd)
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	name, _ := cmd.Flags().GetString("name")
	plan, _ := cmd.Flags().GetString("plan")

	t, err := svcs.Tenant.CreateTenant(cmd.Context(), app.CreateTenantInput{Name: name, Plan: plan})
	if err != nil {
		return err
	}
	printTenant(t)
	return nil
}

func runTenantList(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	tenants, err := svcs.Tenant.ListTenants(cmd.Context())
	if err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(tenants)
	case outputYAML:
		printYAML(tenants)
	default:
		table := newTable("ID", "NAME", "PLAN", "ACTIVE", "CREATED")
		for _, t := range tenants {
			table.AddRow(t.ID.String(), t.Name, t.Plan.String(),
				fmt.Sprintf("%t", t.IsActive), t.CreatedAt.Format(time.RFC3339))
		}
		table.Flush()
	}
	return nil
}

func runTenantGet(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	t, err := svcs.Tenant.GetTenant(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printTenant(t)
	return nil
}

func runTenantChangePlan(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	t, err := svcs.Tenant.ChangePlan(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	printTenant(t)
	return nil
}

func runTenantDeactivate(cmd *cobra.Command, args []string) error {
	svcs, err := connect()
	if err != nil {
		return err
	}
	defer svcs.Close()

	t, err := svcs.Tenant.DeactivateTenant(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Tenant %s deactivated.\n", t.ID)
	return nil
}

func printTenant(t *tenant.Tenant) {
	switch flagOutput {
	case outputJSON:
		printJSON(t)
	case outputYAML:
		printYAML(t)
	default:
		fmt.Printf("ID:      %s\n", t.ID)
		fmt.Printf("Name:    %s\n", t.Name)
		fmt.Printf("Plan:    %s\n", t.Plan)
		fmt.Printf("Active:  %t\n", t.IsActive)
		fmt.Printf("Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	}
}
