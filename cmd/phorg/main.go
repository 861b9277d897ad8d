package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"phorg/internal/app"
	"phorg/internal/config"
	"phorg/internal/phorg"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PhorgApp. The caller must defer app.Close().
func newApp() (*app.PhorgApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewPhorgApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// absAll resolves every argument to an absolute path.
func absAll(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving path %s: %w", arg, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

var rootCmd = &cobra.Command{
	Use:   "phorg",
	Short: "Personal media library organizer",
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

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Extractor: %s\n", cfg.Extractor.Type)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import PATH...",
	Short: "Import media files into the library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		extensions, _ := cmd.Flags().GetStringSlice("extensions")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := absAll(args)
		if err != nil {
			return err
		}

		stats, err := a.Import(paths, extensions)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Println(stats.Summary())
		return nil
	},
}

// remove command
var removeCmd = &cobra.Command{
	Use:   "remove PATH...",
	Short: "Remove files from the library and block them from re-import",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := absAll(args)
		if err != nil {
			return err
		}

		stats, err := a.Remove(paths)
		if err != nil {
			return fmt.Errorf("remove failed: %w", err)
		}

		fmt.Println(stats.Summary())
		return nil
	},
}

// undo command
var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the most recent import batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.UndoLastImport()
		if err != nil {
			return fmt.Errorf("undo failed: %w", err)
		}

		fmt.Println(stats.Summary())
		return nil
	},
}

// rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Regenerate view links from the content store",
	RunE: func(cmd *cobra.Command, args []string) error {
		reset, _ := cmd.Flags().GetBool("reset")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Rebuild(reset)
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}

		fmt.Println(stats.Summary())
		return nil
	},
}

// infer command
var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Infer missing GPS positions from temporally nearby files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Infer()
		if err != nil {
			return fmt.Errorf("infer failed: %w", err)
		}

		fmt.Println(stats.Summary())
		return nil
	},
}

// stop command
var stopCmd = &cobra.Command{
	Use:   "stop PATH...",
	Short: "Mark directories so imports skip them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := absAll(args)
		if err != nil {
			return err
		}

		for _, p := range paths {
			if err := phorg.WriteStopMarker(p); err != nil {
				return fmt.Errorf("writing stop marker in %s: %w", p, err)
			}
			fmt.Printf("Stop marker written: %s\n", filepath.Join(p, phorg.StopMarker))
		}
		return nil
	},
}

// extensions command
var extensionsCmd = &cobra.Command{
	Use:   "extensions",
	Short: "List recognized file extensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println(strings.Join(a.Extensions(), " "))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringSliceP("extensions", "e", nil, "Additional file extensions to import")
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().Bool("reset", false, "Rebuild catalog metadata rows as well as views")
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(extensionsCmd)
}
