package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ct-go/internal/app"
	"ct-go/internal/config"
	"ct-go/internal/model"
)

func main() {
	// A .env next to the binary can override CT_CONFIG_PATH / CT_HOME
	// and AWS credentials without touching the shell profile.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Add", "SyncAll").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// closeApp releases app resources, marking the journaled operation failed
// when the command returned an error. Use with a named return value.
func closeApp(a *app.App, errp *error) {
	if *errp != nil {
		a.FailOperation()
	}
	if cerr := a.Close(); cerr != nil && *errp == nil {
		*errp = cerr
	}
}

// readPassphrase prompts on stderr and reads a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// statusFromFlags maps the --wishlist flag to an ownership status.
func statusFromFlags(cmd *cobra.Command) model.OwnershipStatus {
	if wishlist, _ := cmd.Flags().GetBool("wishlist"); wishlist {
		return model.StatusWishlist
	}
	return model.StatusCollection
}

var rootCmd = &cobra.Command{
	Use:   "ct",
	Short: "Offline-first critter figure collection tracker",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:   %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Catalog URL: %s\n", cfg.Catalog.BaseURL)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage backup encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate an encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "SetupKeys")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the catalog cache from the remote service",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp(cmd, "SyncAll")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Sync(cmd.Context(), force)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		if !res.Synced {
			fmt.Println("Catalog cache is fresh; nothing to do. Use --force to refresh anyway.")
			return nil
		}

		fmt.Printf("Synced %d families, %d characters, %d variants\n",
			res.Families, res.Characters, res.Variants)
		return nil
	},
}

// browse command
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the cached catalog",
}

var browseFamiliesCmd = &cobra.Command{
	Use:   "families",
	Short: "List critter families",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "BrowseFamilies")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		families, err := a.BrowseFamilies(cmd.Context())
		if err != nil {
			return err
		}

		if len(families) == 0 {
			fmt.Println("No families cached. Run 'ct sync' first.")
			return nil
		}

		for _, f := range families {
			fmt.Printf("%s  %-30s  %-15s  %d figures\n", f.UUID, f.Name, f.Series, f.FigureCount)
		}
		return nil
	},
}

var browseCharactersCmd = &cobra.Command{
	Use:   "characters [FAMILY_UUID]",
	Short: "List characters, optionally scoped to a family",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "BrowseCharacters")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		familyUUID := ""
		if len(args) > 0 {
			familyUUID = args[0]
		}

		characters, err := a.BrowseCharacters(cmd.Context(), familyUUID)
		if err != nil {
			return err
		}

		if len(characters) == 0 {
			fmt.Println("No characters found.")
			return nil
		}

		for _, c := range characters {
			fmt.Printf("%s  %-30s  %-15s  %d variants\n", c.UUID, c.Name, c.Species, c.VariantCount)
		}
		return nil
	},
}

var browseVariantsCmd = &cobra.Command{
	Use:   "variants CHARACTER_UUID",
	Short: "List the variants of a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "BrowseVariants")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		variants, err := a.BrowseVariants(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(variants) == 0 {
			fmt.Println("No variants found.")
			return nil
		}

		for _, v := range variants {
			year := ""
			if v.ReleaseYear != 0 {
				year = fmt.Sprintf("%d", v.ReleaseYear)
			}
			fmt.Printf("%s  %-30s  %-20s  %s\n", v.UUID, v.Name, v.SetName, year)
		}
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add VARIANT_UUID",
	Short: "Add a catalog variant to your collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Add")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		rec, err := a.Add(cmd.Context(), args[0], statusFromFlags(cmd))
		if err != nil {
			return fmt.Errorf("adding variant: %w", err)
		}

		fmt.Printf("Added %s (%s) to %s\n", rec.VariantName, rec.CharacterName, rec.Status)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan BARCODE",
	Short: "Add a variant by scanning its barcode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Scan")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		rec, err := a.Scan(cmd.Context(), args[0], statusFromFlags(cmd))
		if err != nil {
			return fmt.Errorf("scanning barcode: %w", err)
		}

		fmt.Printf("Added %s (%s) to %s\n", rec.VariantName, rec.CharacterName, rec.Status)
		return nil
	},
}

// remove command
var removeCmd = &cobra.Command{
	Use:   "remove VARIANT_UUID",
	Short: "Remove a variant from your collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Remove")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Remove(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("removing variant: %w", err)
		}

		fmt.Println("Removed.")
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List owned and wished-for variants",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "List")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		status := model.OwnershipStatus("")
		if collection, _ := cmd.Flags().GetBool("collection"); collection {
			status = model.StatusCollection
		}
		if wishlist, _ := cmd.Flags().GetBool("wishlist"); wishlist {
			status = model.StatusWishlist
		}

		records, err := a.List(cmd.Context(), status)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("Nothing here yet.")
			return nil
		}

		for _, r := range records {
			qty := ""
			if r.Details.Quantity > 1 {
				qty = fmt.Sprintf("  x%d", r.Details.Quantity)
			}
			fmt.Printf("%s  %-10s  %-25s  %-25s  added %s%s\n",
				r.VariantUUID,
				r.Status,
				r.VariantName,
				r.CharacterName,
				r.AddedDate.Format("2006-01-02"),
				qty,
			)
		}
		return nil
	},
}

// set command
var setCmd = &cobra.Command{
	Use:   "set VARIANT_UUID",
	Short: "Set collector details on an owned variant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "SetDetails")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		rec, err := a.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("variant %s is not in your collection", args[0])
		}

		// Start from the existing details so unset flags are preserved.
		details := rec.Details

		if cmd.Flags().Changed("price") {
			price, _ := cmd.Flags().GetFloat64("price")
			details.Price = &price
		}
		if cmd.Flags().Changed("purchase-date") {
			raw, _ := cmd.Flags().GetString("purchase-date")
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return fmt.Errorf("invalid purchase date %q (want YYYY-MM-DD)", raw)
			}
			details.PurchaseDate = &d
		}
		if cmd.Flags().Changed("location") {
			loc, _ := cmd.Flags().GetString("location")
			details.PurchaseLocation = &loc
		}
		if cmd.Flags().Changed("condition") {
			cond, _ := cmd.Flags().GetString("condition")
			details.Condition = &cond
		}
		if cmd.Flags().Changed("notes") {
			notes, _ := cmd.Flags().GetString("notes")
			details.Notes = &notes
		}
		if cmd.Flags().Changed("quantity") {
			details.Quantity, _ = cmd.Flags().GetInt("quantity")
		}

		if _, err := a.SetDetails(cmd.Context(), args[0], details); err != nil {
			return fmt.Errorf("setting details: %w", err)
		}

		fmt.Println("Details updated.")
		return nil
	},
}

// photo command
var photoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Manage collector photos",
}

var photoAddCmd = &cobra.Command{
	Use:   "add VARIANT_UUID IMAGE_FILE",
	Short: "Attach a photo to an owned variant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		caption, _ := cmd.Flags().GetString("caption")

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading image file: %w", err)
		}

		a, err := newApp(cmd, "AttachPhoto")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		photo, err := a.AttachPhoto(cmd.Context(), args[0], data, caption)
		if err != nil {
			return fmt.Errorf("attaching photo: %w", err)
		}

		fmt.Printf("Photo %s attached.\n", photo.ID)
		return nil
	},
}

var photoListCmd = &cobra.Command{
	Use:   "list VARIANT_UUID",
	Short: "List photos attached to a variant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Photos")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		photos, err := a.Photos(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(photos) == 0 {
			fmt.Println("No photos attached.")
			return nil
		}

		for _, p := range photos {
			caption := ""
			if p.Caption != nil {
				caption = *p.Caption
			}
			fmt.Printf("%s  %s  %d bytes  %s\n",
				p.ID, p.CapturedAt.Format("2006-01-02 15:04:05"), len(p.Data), caption)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the ledger and upload it to the vault",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Backup")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		version, err := a.Backup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup uploaded (version %d)\n", version)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local ledger with the vault snapshot",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Restore")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase, err := readPassphrase("Passphrase (empty for unencrypted backups): ")
		if err != nil {
			return err
		}

		if err := a.Restore(cmd.Context(), passphrase); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Println("Ledger restored from vault.")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View journaled operations",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			params := ""
			if op.Parameters != "" {
				params = "  " + strings.TrimSpace(op.Parameters)
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %s%s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				params,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// browse subcommands
	browseCmd.AddCommand(browseFamiliesCmd)
	browseCmd.AddCommand(browseCharactersCmd)
	browseCmd.AddCommand(browseVariantsCmd)

	// photo subcommands
	photoCmd.AddCommand(photoAddCmd)
	photoCmd.AddCommand(photoListCmd)
	photoAddCmd.Flags().StringP("caption", "c", "", "Caption for the photo")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("force", "f", false, "Refresh even if the cache is fresh")
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolP("wishlist", "w", false, "Add to the wishlist instead of the collection")
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolP("wishlist", "w", false, "Add to the wishlist instead of the collection")
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("collection", false, "Show only the collection")
	listCmd.Flags().Bool("wishlist", false, "Show only the wishlist")
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().Float64("price", 0, "Purchase price")
	setCmd.Flags().String("purchase-date", "", "Purchase date (YYYY-MM-DD)")
	setCmd.Flags().String("location", "", "Purchase location")
	setCmd.Flags().String("condition", "", "Condition (e.g. mint, loose)")
	setCmd.Flags().String("notes", "", "Free-form notes")
	setCmd.Flags().IntP("quantity", "q", 1, "Number of copies owned")
	rootCmd.AddCommand(photoCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
