package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/holidays"
	"github.com/nextlevelbuilder/deskbot/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("deskbot doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Provider:")
	checkProvider("OpenAI", cfg.Providers.OpenAI.APIKey)
	ai := cfg.AISettings()
	fmt.Printf("    %-12s %s (temperature %g, max tokens %d)\n", "Model:", ai.Model, ai.Temperature, ai.MaxTokens)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("WhatsApp", cfg.Channels.WhatsApp.Enabled, cfg.Channels.WhatsApp.BridgeURL != "")
	fmt.Printf("    %-12s %s\n", "Bridge:", cfg.Channels.WhatsApp.BridgeURL)

	fmt.Println()
	fmt.Println("  Operators:")
	ops := cfg.OperatorSettings()
	if len(ops.IDs) == 0 {
		fmt.Println("    (none configured, commands are only accepted from the bot account)")
	} else {
		fmt.Printf("    %-12s %s\n", "IDs:", strings.Join(ops.IDs, ", "))
	}
	fmt.Printf("    %-12s %s\n", "Group:", valueOr(ops.CommandGroup, "(not configured)"))
	fmt.Printf("    %-12s %s\n", "Test number:", valueOr(ops.TestNumber, "(not configured)"))

	fmt.Println()
	fmt.Println("  Schedule:")
	start, end := cfg.Hours()
	loc := cfg.Location()
	fmt.Printf("    %-12s %d:00 to %d:00, days %v\n", "Hours:", start, end, cfg.BusinessDays())
	fmt.Printf("    %-12s %s (now %s)\n", "Time zone:", loc, time.Now().In(loc).Format(time.DateTime))

	fmt.Println()
	fmt.Println("  Holidays:")
	checkHolidays(ctx, cfg)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkHolidays(ctx context.Context, cfg *config.Config) {
	if !cfg.HasHolidaySource() {
		fmt.Printf("    %-12s (not configured, no holidays applied)\n", "Airtable:")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	days, err := holidays.NewAirtable(cfg.Schedule.Airtable, cfg.Location()).Fetch(ctx)
	if err != nil {
		fmt.Printf("    %-12s FETCH FAILED (%s)\n", "Airtable:", err)
		return
	}
	fmt.Printf("    %-12s %d holiday dates\n", "Airtable:", len(days))
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := strings.Repeat("*", len(apiKey))
	if len(apiKey) > 8 {
		masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing bridge_url)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
