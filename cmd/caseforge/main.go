package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/caseforge/caseforge/internal/apispec"
	internalConfig "github.com/caseforge/caseforge/internal/config"
	"github.com/caseforge/caseforge/internal/infra/logger"
	"github.com/caseforge/caseforge/internal/llm"
	"github.com/caseforge/caseforge/internal/llm/common"
	"github.com/caseforge/caseforge/internal/pipeline"
	"github.com/caseforge/caseforge/internal/replay"
	"github.com/caseforge/caseforge/internal/store"
	"github.com/caseforge/caseforge/internal/toolkit"
)

var version = "dev"

var (
	debugFilePath string
	storageRoot   string

	interfaceID    string
	environmentID  string
	knowledge      string
	additionalInfo string
	concurrent     bool

	caseID     string
	jsonOutput bool

	specFile string
	baseURL  string
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var rootCmd = &cobra.Command{
	Use:   "caseforge",
	Short: "Caseforge - AI-powered API test case generation and replay",
	Long:  `Caseforge generates executable API test cases with an LLM and replays them against live services.`,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import interface definitions from an OpenAPI/Swagger document",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		specs, err := apispec.ImportOpenAPI(specFile)
		if err != nil {
			return err
		}
		for i := range specs {
			if baseURL != "" {
				specs[i].BaseURL = baseURL
			}
			if err := s.WriteAPISpec(&specs[i]); err != nil {
				return err
			}
			fmt.Printf("%s %s %s  %s\n",
				labelStyle.Render("imported"),
				specs[i].Method, specs[i].Path,
				dimStyle.Render(specs[i].ID))
		}
		fmt.Printf("\n%d interfaces imported\n", len(specs))
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate base and runnable cases for an interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := internalConfig.Load()
		if err != nil {
			return err
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		provider, err := llm.CreateProvider(common.ProviderConfig{
			Provider: cfg.Provider,
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		defer provider.Close()

		stream := pipeline.NewStream(64)
		orchestrator := pipeline.NewOrchestrator(provider, s, toolkit.DefaultLibrary(), cfg.UploadsDir, cfg.Concurrency, stream)

		done := make(chan error, 1)
		go func() {
			defer stream.Close()
			done <- orchestrator.Run(cmd.Context(), pipeline.GenerateRequest{
				InterfaceID:    interfaceID,
				EnvironmentID:  environmentID,
				Knowledge:      knowledge,
				AdditionalInfo: additionalInfo,
				Concurrent:     concurrent,
			})
		}()

		for event := range stream.Events() {
			renderEvent(event)
		}
		return <-done
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Execute a stored runnable case against an environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		result, err := pipeline.ReplayCase(cmd.Context(), s, caseID, environmentID, toolkit.DefaultLibrary())
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			renderResult(result)
		}

		if result.Status == replay.StatusError || result.Status == replay.StatusFailed {
			os.Exit(1)
		}
		return nil
	},
}

func openStore() (*store.Store, error) {
	root := storageRoot
	if root == "" {
		cfg, err := internalConfig.Load()
		if err != nil {
			return nil, err
		}
		root = cfg.StorageRoot
	}
	return store.New(root)
}

func renderEvent(event pipeline.Event) {
	switch event.Type {
	case pipeline.EventError:
		fmt.Printf("%s %s\n", errorStyle.Render("error"), event.Message)
	case pipeline.EventComplete:
		fmt.Printf("%s %s", successStyle.Render("done"), event.Message)
		if len(event.Data) > 0 {
			data, _ := json.Marshal(event.Data)
			fmt.Printf(" %s", dimStyle.Render(string(data)))
		}
		fmt.Println()
	case pipeline.EventProgress:
		fmt.Printf("%s %s\n", labelStyle.Render("•"), event.Message)
	default:
		fmt.Printf("%s %s\n", dimStyle.Render("·"), event.Message)
	}
}

func renderResult(result *replay.CaseResult) {
	var status string
	switch result.Status {
	case replay.StatusSuccess:
		status = successStyle.Render("SUCCESS")
	case replay.StatusFailed:
		status = failedStyle.Render("FAILED")
	case replay.StatusSkip:
		status = skipStyle.Render("SKIP")
	default:
		status = errorStyle.Render("ERROR")
	}

	fmt.Printf("%s  %s  %s\n", status, result.CaseName, dimStyle.Render(fmt.Sprintf("%.2fs", result.Duration)))
	if result.ErrorMessage != "" {
		fmt.Printf("  %s %s\n", errorStyle.Render("cause:"), result.ErrorMessage)
	}
	for _, req := range result.APIRequests {
		code := "-"
		if req.StatusCode != nil {
			code = fmt.Sprintf("%d", *req.StatusCode)
		}
		fmt.Printf("  %s %s %s -> %s\n", labelStyle.Render("http"), req.Method, req.URL, code)
	}
	for _, entry := range result.Logs {
		fmt.Printf("  %s %s\n", dimStyle.Render(entry.Level), entry.Message)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&debugFilePath, "debug-file", "", "Path to debug log file (enables file logging)")
	rootCmd.PersistentFlags().StringVar(&storageRoot, "storage", "", "Storage root directory (defaults to config)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		initLogger()
	}

	importCmd.Flags().StringVarP(&specFile, "spec", "s", "", "Path to OpenAPI/Swagger file")
	importCmd.Flags().StringVarP(&baseURL, "url", "u", "", "Base URL override for imported interfaces")
	_ = importCmd.MarkFlagRequired("spec")

	generateCmd.Flags().StringVarP(&interfaceID, "interface", "i", "", "Interface ID to generate cases for")
	generateCmd.Flags().StringVarP(&environmentID, "env", "e", "", "Environment ID for pre-flight execution")
	generateCmd.Flags().StringVar(&knowledge, "knowledge", "", "Business knowledge passed to the generator")
	generateCmd.Flags().StringVar(&additionalInfo, "notes", "", "Additional notes for runnable case compilation")
	generateCmd.Flags().BoolVar(&concurrent, "concurrent", false, "Compile runnable cases concurrently")
	_ = generateCmd.MarkFlagRequired("interface")
	_ = generateCmd.MarkFlagRequired("env")

	replayCmd.Flags().StringVarP(&caseID, "case", "c", "", "Runnable case ID to execute")
	replayCmd.Flags().StringVarP(&environmentID, "env", "e", "", "Environment ID to execute against")
	replayCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw result as JSON")
	_ = replayCmd.MarkFlagRequired("case")
	_ = replayCmd.MarkFlagRequired("env")

	rootCmd.AddCommand(importCmd, generateCmd, replayCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", logger.Err(err))
		os.Exit(1)
	}
	if debugFilePath != "" {
		logger.Close()
	}
}

func initLogger() {
	if debugFilePath != "" {
		if err := logger.Init(true, debugFilePath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
		logger.Info("Caseforge starting", logger.String("log_file", debugFilePath), logger.String("version", version))
	}
}
