package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"classdb/pkg/config"
	"classdb/pkg/database"
	"classdb/pkg/logging"
	"classdb/pkg/script"
	"classdb/pkg/ui"
	"classdb/pkg/ui/base"
)

type Configuration struct {
	DatabaseName string
	ConfigPath   string
	ScriptPath   string
	Describe     string
	LogLevel     string
}

func main() {
	cfg := parseArguments()
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseArguments processes command-line flags
func parseArguments() Configuration {
	var cfg Configuration

	flag.StringVar(&cfg.DatabaseName, "db", "classdb", "Database name")
	flag.StringVar(&cfg.ConfigPath, "config", "", "YAML parameter file")
	flag.StringVar(&cfg.ScriptPath, "script", "", "YAML statement script to run")
	flag.StringVar(&cfg.Describe, "describe", "", "Class to describe after the script has run")
	flag.StringVar(&cfg.LogLevel, "log-level", "", "Override the configured log level")
	flag.Parse()

	return cfg
}

func loadParameters(cfg Configuration) (config.Parameters, error) {
	params := config.Default()
	if cfg.ConfigPath != "" {
		var err error
		if params, err = config.Load(cfg.ConfigPath); err != nil {
			return config.Parameters{}, err
		}
	}
	if cfg.LogLevel != "" {
		params.Logging.Level = logging.LogLevel(cfg.LogLevel)
	}
	return params, nil
}

func run(cfg Configuration) error {
	params, err := loadParameters(cfg)
	if err != nil {
		return err
	}
	if err := logging.Init(params.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()

	db, err := database.NewDatabase(cfg.DatabaseName, params)
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.NewStyles(base.PaletteFor(lipgloss.HasDarkBackground())))

	if cfg.ScriptPath != "" {
		s, err := script.Load(cfg.ScriptPath)
		if err != nil {
			return err
		}
		results, err := s.Run(context.Background(), db)
		for _, res := range results {
			fmt.Println(renderer.Result(res))
		}
		if err != nil {
			fmt.Println(renderer.Error(err))
		}
	}

	if cfg.Describe != "" {
		res, err := db.DescribeClass(cfg.Describe)
		if err != nil {
			fmt.Println(renderer.Error(err))
		} else {
			fmt.Println(renderer.Result(res))
		}
	}

	fmt.Println(renderer.Summary(db.GetStatistics()))
	return nil
}
