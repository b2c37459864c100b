package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erazemk/orozarna/internal/auth"
	"github.com/erazemk/orozarna/internal/config"
	"github.com/erazemk/orozarna/internal/custody"
	"github.com/erazemk/orozarna/internal/model"
	"github.com/erazemk/orozarna/internal/serial"
	"github.com/erazemk/orozarna/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database, an admin account and the serial identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		existing, err := store.GetUserByUsername(cmd.Context(), a.db, username)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("user %q already exists", username)
		}

		password, err := generatePassword(16)
		if err != nil {
			return fmt.Errorf("generating password: %w", err)
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		if _, err := store.CreateUser(cmd.Context(), a.db, username, hash, model.RoleAdmin, false); err != nil {
			return fmt.Errorf("creating admin user: %w", err)
		}

		fmt.Printf("Database ready: %s\n", a.cfg.Database.Path)
		fmt.Println()
		fmt.Println("Admin account created:")
		fmt.Printf("  Username: %s\n", username)
		fmt.Printf("  Password: %s\n", password)
		fmt.Println()
		fmt.Println("Save this password, it cannot be recovered.")

		if path := a.cfg.Serial.IdentityPath; path != "" {
			identity, err := serial.GenerateIdentity(path)
			switch {
			case errors.Is(err, fs.ErrExist):
				fmt.Printf("Serial identity already present: %s\n", path)
			case err != nil:
				return err
			default:
				fmt.Printf("Serial identity written: %s (%s)\n", path, identity.Recipient())
				fmt.Println("Back it up: sealed serial numbers cannot be read without it.")
			}
		}
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user with a generated password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		verified, _ := cmd.Flags().GetBool("verified-adult")
		if !model.Role(role).Valid() {
			return fmt.Errorf("invalid role %q", role)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := generatePassword(16)
		if err != nil {
			return fmt.Errorf("generating password: %w", err)
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		user, err := store.CreateUser(cmd.Context(), a.db, args[0], hash, model.Role(role), verified)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		fmt.Printf("User %s created (id %d, role %s)\n", user.Username, user.ID, user.Role)
		fmt.Printf("  Password: %s\n", password)
		return nil
	},
}

var kitCmd = &cobra.Command{
	Use:   "kit",
	Short: "Manage kits",
}

var kitRegisterCmd = &cobra.Command{
	Use:   "register <code>",
	Short: "Register a new kit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		serialNumber, _ := cmd.Flags().GetString("serial")
		as, _ := cmd.Flags().GetString("as")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := store.GetUserByUsername(cmd.Context(), a.db, as)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %q not found", as)
		}

		kit, err := a.custody.RegisterKit(cmd.Context(), user.Actor(), custody.RegisterKitInput{
			Code:        args[0],
			Name:        name,
			Description: description,
			Serial:      serialNumber,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Kit %s registered (id %d)\n", kit.Code, kit.ID)
		return nil
	},
}

var warningsCmd = &cobra.Command{
	Use:   "warnings",
	Short: "List kits with overdue, extended custody or maintenance warnings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		warnings, err := a.custody.AllWarnings(cmd.Context())
		if err != nil {
			return err
		}
		if len(warnings) == 0 {
			fmt.Println("No warnings.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIT\tNAME\tOVERDUE\tCHECKED OUT\tSINCE MAINTENANCE")
		for _, w := range warnings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.KitCode, w.KitName,
				days(w.OverdueReturn, w.DaysOverdue),
				days(w.ExtendedCustody, w.DaysCheckedOut),
				days(w.OverdueMaintenance, w.DaysSinceMaintenance))
		}
		return tw.Flush()
	},
}

func days(raised bool, n int) string {
	if !raised {
		return "-"
	}
	return fmt.Sprintf("%dd", n)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay every kit's ledger and report registry drift",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Schema version %d.\n", a.schemaVersion)
		drifts, err := a.custody.Verify(cmd.Context())
		if err != nil {
			return err
		}
		if len(drifts) == 0 {
			fmt.Println("Registry matches the ledger.")
			return nil
		}

		for _, d := range drifts {
			if d.Error != "" {
				fmt.Printf("%s: ledger does not replay: %s\n", d.KitCode, d.Error)
				continue
			}
			fmt.Printf("%s: stored %s, replayed %s\n", d.KitCode, d.Stored.Status, d.Replayed.Status)
		}
		return fmt.Errorf("%d kit(s) drifted from their ledger", len(drifts))
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		cfg.Serial.IdentityPath = "orozarna.key"
		if err := config.Init(configPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Configuration initialized at %s\n", configPath)
		return nil
	},
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
