package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/bunx"
)

var (
	userIDFlag     string
	userEmailFlag  string
	userNameFlag   string
	permsPageFlag  int
	permsPerPage   int
	showAsUserFlag string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the users organizations refer to",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userEmailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		st, err := newStack(db, slog.Default())
		if err != nil {
			return err
		}
		user, err := st.users.CreateUser(ctx, userIDFlag, userEmailFlag, userNameFlag)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", user.ID, user.Email)
		return nil
	},
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Inspect the permission catalog",
}

var permissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		st, err := newStack(db, slog.Default())
		if err != nil {
			return err
		}
		perms, total, err := st.orgs.ListPermissions(ctx, permsPageFlag, permsPerPage)
		if err != nil {
			return fmt.Errorf("failed to list permissions: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCATEGORY\tDESCRIPTION")
		for _, p := range perms {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Category, p.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d permissions\n", len(perms), total)
		return nil
	},
}

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Inspect organizations",
}

var orgsShowCmd = &cobra.Command{
	Use:   "show <organization-id>",
	Short: "Show an organization with its members and roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showAsUserFlag == "" {
			return fmt.Errorf("--as flag is required")
		}
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer bunx.Close(db)

		st, err := newStack(db, slog.Default())
		if err != nil {
			return err
		}
		org, err := st.orgs.GetOrganization(ctx, showAsUserFlag, args[0])
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		members, err := st.orgs.ListMembers(ctx, showAsUserFlag, args[0], "")
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}

		out := cmd.OutOrStdout()
		state := "active"
		if !org.IsActive() {
			state = "inactive"
		}
		fmt.Fprintf(out, "%s (%s) owner=%s version=%d %s\n\n", org.Name(), org.ID(), org.OwnerID(), org.Version(), state)

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER_ID\tROLES\tJOINED_AT")
		for _, m := range members {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.UserID, strings.Join(m.RoleNames, ","), m.JoinedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userIDFlag, "id", "", "User ID as issued by the identity provider (generated when empty)")
	usersCreateCmd.Flags().StringVar(&userEmailFlag, "email", "", "Email address of the user")
	usersCreateCmd.Flags().StringVar(&userNameFlag, "display-name", "", "Display name of the user")
	usersCmd.AddCommand(usersCreateCmd)

	permissionsListCmd.Flags().IntVar(&permsPageFlag, "page", 1, "Page number")
	permissionsListCmd.Flags().IntVar(&permsPerPage, "page-size", 50, "Permissions per page")
	permissionsCmd.AddCommand(permissionsListCmd)

	orgsShowCmd.Flags().StringVar(&showAsUserFlag, "as", "", "User ID to read the organization as")
	orgsCmd.AddCommand(orgsShowCmd)

	rootCmd.AddCommand(usersCmd, permissionsCmd, orgsCmd)
}
