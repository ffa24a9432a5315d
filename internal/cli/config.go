package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/crudkit/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}
	cmd.AddCommand(newConfigInitCommand(rootOpts), newConfigShowCommand(rootOpts))
	return cmd
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Write a commented default " + config.FileName,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			if err := config.WriteDefault(path, force); err != nil {
				if errors.Is(err, config.ErrExists) {
					_ = formatter.Error("E_CONFIG_EXISTS", err.Error(), nil)
					return WrapExitError(ExitCommandError, "config init (use --force to overwrite)", err)
				}
				return WrapExitError(ExitFailure, "config init", err)
			}
			if formatter.JSON() {
				return formatter.Success(map[string]string{"path": path})
			}
			fmt.Fprintf(formatter.Writer, "✓ Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", config.FileName, "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration after file and environment",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, source, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if source == "" {
				source = "defaults"
			}
			formatter.VerboseLog("config source: %s", source)

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "encode config", err)
			}
			if formatter.JSON() {
				return formatter.Success(map[string]string{"source": source, "yaml": string(data)})
			}
			fmt.Fprintf(formatter.Writer, "# source: %s\n%s", source, data)
			return nil
		},
	}
}
