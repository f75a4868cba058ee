package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"curtis-cluster/canlog"
	"curtis-cluster/ecu"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <log>",
	Short: "Decode a candump log offline and print the final telemetry",
	Long: `Feed a recorded candump log through the decoder and telemetry store
without touching hardware or Redis, then print a summary of the end state
and of the lines that were skipped. Use "-" to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var src io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer f.Close()
		src = f
	}

	store := ecu.NewStore(cfg.StoreConfig(), logger)
	reader := canlog.NewReader(src, store, canlog.ReaderConfig{}, logger)
	if err := reader.Run(context.Background()); err != nil {
		return err
	}

	printDecodeReport(args[0], store.Read(), reader.Stats())
	return nil
}

func printDecodeReport(name string, r ecu.Reading, st canlog.Stats) {
	pterm.DefaultSection.Println("Telemetry at end of " + name)

	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Value", "Reading"},
		{"Speed", fmt.Sprintf("%.1f km/h", r.Speed)},
		{"RPM", fmt.Sprintf("%d", r.RPM)},
		{"Motor power", fmt.Sprintf("%.1f kW", r.MotorPower)},
		{"Battery current", fmt.Sprintf("%.1f A", r.BatteryCurrent)},
		{"Voltage", fmt.Sprintf("%.2f V", r.Voltage)},
		{"Motor temp", fmt.Sprintf("%.1f °C", r.MotorTemp)},
		{"Controller temp", fmt.Sprintf("%.1f °C", r.ControllerTemp)},
		{"Contactor", r.ContactorState},
		{"Error", fmt.Sprintf("%d (%s)", r.ErrorCode, ecu.GetFaultDescription(ecu.Fault(r.ErrorCode)))},
		{"Odometer", fmt.Sprintf("%.1f", r.Odometer)},
		{"Trip", fmt.Sprintf("%.0f m", r.Distance)},
		{"State of charge", fmt.Sprintf("%.1f %%", r.StateOfCharge*100)},
		{"Range", fmt.Sprintf("%.1f km", r.Range/1000)},
		{"Consumption", fmt.Sprintf("%.1f Wh/km", r.AverageConsumption/3.6)},
	}).Render()

	pterm.DefaultSection.Println("Input")

	pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Lines", "Frames", "Skipped", "Unparsable", "Unknown", "Malformed"},
		{
			fmt.Sprintf("%d", st.Lines),
			fmt.Sprintf("%d", st.Frames),
			fmt.Sprintf("%d", st.Skipped),
			fmt.Sprintf("%d", st.Unparsable),
			fmt.Sprintf("%d", st.Unknown),
			fmt.Sprintf("%d", st.Malformed),
		},
	}).Render()

	if st.Malformed > 0 || st.Unparsable > 0 {
		pterm.Warning.Printf("%d lines could not be decoded\n", st.Malformed+st.Unparsable)
	}
}
