package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solarafrica/solarplanner/pkg/solar"
)

func calculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calculate [input.json]",
		Short: "Size a system for a JSON load profile read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var in solar.CalculationInput
			if err := json.NewDecoder(r).Decode(&in); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}
			if err := solar.CheckInput(in); err != nil {
				return err
			}

			engine, err := loadEngine(configFrom(cmd))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(engine.Calculate(in))
		},
	}
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices [name...]",
		Short: "List the appliance catalog, or look up the named appliances",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := solar.Catalog()
			if len(args) > 0 {
				devices = make([]solar.CatalogDevice, 0, len(args))
				for _, name := range args {
					d, found := solar.LookupDevice(name)
					if !found {
						return fmt.Errorf("unknown device %q", name)
					}
					devices = append(devices, d)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tWATTS")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", d.Name, d.Category, d.PowerConsumption)
			}
			return tw.Flush()
		},
	}
}

func locationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List locations with known average sunlight hours",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOCATION\tHOURS/DAY")
			for _, name := range solar.SunlightLocations() {
				hours, _ := solar.SunlightHours(name)
				fmt.Fprintf(tw, "%s\t%.1f\n", name, hours)
			}
			return tw.Flush()
		},
	}
}
