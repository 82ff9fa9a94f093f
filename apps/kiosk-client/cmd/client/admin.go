package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/smartcart/libs/wire"
)

var (
	adminUsername string
	adminPassword string

	updateName     string
	updatePhone    string
	updateBirthday string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage customers",
}

var adminLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check administrator credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := newAPIClient().AdminLogin(cmd.Context(), wire.AdminLoginRequest{Username: adminUsername, Password: adminPassword})
		if err != nil {
			return fmt.Errorf("admin login failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Administrator login succeeded")
		return nil
	},
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List customers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := newAPIClient().AdminUsers(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), tabMinWidth, tabWidth, tabPadding, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPHONE\tPURCHASES\tSPENT\tLAST VISIT")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\n", u.ID, u.Name, u.Phone, u.TotalTransactions, u.TotalSpent, u.LastVisit)
		}
		return w.Flush()
	},
}

var adminUserCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Show one customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := newAPIClient().AdminUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:         %s\n", u.ID)
		fmt.Fprintf(out, "name:       %s\n", u.Name)
		fmt.Fprintf(out, "phone:      %s\n", u.Phone)
		fmt.Fprintf(out, "birthday:   %s\n", u.Birthday)
		fmt.Fprintf(out, "created:    %s\n", u.CreatedAt)
		fmt.Fprintf(out, "last visit: %s\n", u.LastVisit)
		fmt.Fprintf(out, "purchases:  %d (%.2f)\n", u.TotalTransactions, u.TotalSpent)
		return nil
	},
}

var adminUpdateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Update a customer's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := wire.UpdateUserRequest{Name: updateName, Phone: updatePhone, Birthday: updateBirthday}
		if req == (wire.UpdateUserRequest{}) {
			return fmt.Errorf("nothing to update: pass --name, --phone or --birthday")
		}
		if err := newAPIClient().UpdateUser(cmd.Context(), args[0], req); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Customer updated")
		return nil
	},
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a customer and their purchases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient().DeleteUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Customer deleted")
		return nil
	},
}

var adminStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newAPIClient().AdminStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "customers:    %d\ntransactions: %d\nrevenue:      %.2f\n",
			stats.TotalUsers, stats.TotalTransactions, stats.TotalRevenue)
		return nil
	},
}

func init() {
	adminLoginCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "administrator user name")
	adminLoginCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "administrator password")
	_ = adminLoginCmd.MarkFlagRequired("username")
	_ = adminLoginCmd.MarkFlagRequired("password")

	adminUpdateCmd.Flags().StringVar(&updateName, "name", "", "new name")
	adminUpdateCmd.Flags().StringVar(&updatePhone, "phone", "", "new phone number")
	adminUpdateCmd.Flags().StringVar(&updateBirthday, "birthday", "", "new birthday as YYYY-MM-DD")

	adminCmd.AddCommand(adminLoginCmd, adminUsersCmd, adminUserCmd, adminUpdateCmd, adminDeleteCmd, adminStatsCmd)
	rootCmd.AddCommand(adminCmd)
}
