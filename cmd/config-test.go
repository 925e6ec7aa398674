package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/antispoof-pipeline/configs"
	"github.com/RyanBlaney/antispoof-pipeline/internal/app"
)

var (
	generateConfig  string
	generateSources string
	validateFile    string
)

// configTestCmd represents the config test command
var configTestCmd = &cobra.Command{
	Use:   "config-test",
	Short: "Test and display all configuration values",
	Long: `Test configuration loading and display all values to verify proper parsing.

This command loads the configuration and displays all values in a structured format
to help verify that your YAML configuration is being parsed correctly.

Examples:
  # Test with default config file
  antispoof config-test

  # Test with specific config file
  antispoof --config /path/to/config.yaml config-test

  # Write an example configuration or sources file
  antispoof config-test --generate antispoof.yaml
  antispoof config-test --generate-sources sources.yaml`,
	RunE: runConfigTest,
}

func init() {
	rootCmd.AddCommand(configTestCmd)

	configTestCmd.Flags().StringVar(&generateConfig, "generate", "",
		"write an example configuration file and exit")
	configTestCmd.Flags().StringVar(&generateSources, "generate-sources", "",
		"write an example manifest sources file and exit")
	configTestCmd.Flags().StringVar(&validateFile, "validate", "",
		"validate a configuration file instead of the active one")
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	if generateConfig != "" || generateSources != "" {
		if generateConfig != "" {
			if err := app.GenerateExampleConfig(generateConfig); err != nil {
				return err
			}
			fmt.Printf("Example configuration written to %s\n", generateConfig)
		}
		if generateSources != "" {
			if err := app.GenerateExampleSourcesFile(generateSources); err != nil {
				return err
			}
			fmt.Printf("Example sources written to %s\n", generateSources)
		}
		return nil
	}

	fmt.Println("ANTISPOOF CONFIGURATION TEST")
	fmt.Println(strings.Repeat("=", 80))

	var (
		config *configs.Config
		err    error
		source = GetConfig().ConfigFileUsed()
	)
	if validateFile != "" {
		config, err = app.ValidateConfigFile(validateFile)
		source = validateFile
	} else {
		config, err = configs.LoadConfig()
		if err == nil {
			err = configs.ValidateConfig(config)
		}
	}
	if err != nil {
		fmt.Println(ColorRed + "CONFIGURATION INVALID" + ColorReset)
		return err
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Log Format", config.LogFormat)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Output Precision", fmt.Sprintf("%d", config.Output.Precision))

	printSection("AUDIO CONFIGURATION")
	printKeyValue("Sample Rate", fmt.Sprintf("%d Hz", config.Audio.SampleRate))
	printKeyValue("Window Duration", config.Audio.WindowDuration.String())
	printKeyValue("FFT Size", fmt.Sprintf("%d", config.Audio.NFFT))
	printKeyValue("Hop Length", fmt.Sprintf("%d", config.Audio.HopLength))
	printKeyValue("MFCC Coefficients", fmt.Sprintf("%d", config.Audio.NMFCC))
	printKeyValue("Mel Bands", fmt.Sprintf("%d", config.Audio.NMels))
	printKeyValue("Chroma Bins", fmt.Sprintf("%d", config.Audio.NChroma))
	printKeyValue("Contrast Bands", fmt.Sprintf("%d", config.Audio.ContrastBands))
	printKeyValue("Rolloff Percent", fmt.Sprintf("%.2f", config.Audio.RolloffPercent))
	printKeyValue("Window Workers", fmt.Sprintf("%d", config.Audio.Workers))

	printSection("STORAGE CONFIGURATION")
	printKeyValue("Backend", config.Storage.Backend)
	switch config.Storage.Backend {
	case "s3":
		printKeyValue("Bucket", config.Storage.Bucket)
		printKeyValue("Prefix", config.Storage.Prefix)
		printKeyValue("Region", config.Storage.Region)
		printKeyValue("Endpoint", config.Storage.Endpoint)
		printKeyValue("Path Style", fmt.Sprintf("%t", config.Storage.UsePathStyle))
		printKeyValue("Credentials", fmt.Sprintf("%t", config.Storage.AccessKeyID != ""))
	default:
		printKeyValue("Root", config.Storage.Root)
	}
	printKeyValue("Max File Size", fmt.Sprintf("%d bytes", config.Storage.MaxFileBytes))

	printSection("PIPELINE CONFIGURATION")
	printKeyValue("Workers", fmt.Sprintf("%d", config.Pipeline.Workers))
	printKeyValue("Write Disposition", config.Pipeline.WriteDisposition)
	printKeyValue("Sources File", config.Pipeline.SourcesFile)
	if len(config.Pipeline.LabelFilter) > 0 {
		printKeyValue("Label Filter", strings.Join(config.Pipeline.LabelFilter, ", "))
	}
	printKeyValue("Sources", fmt.Sprintf("(%d)", len(config.Pipeline.Sources)))
	for _, src := range config.Pipeline.Sources {
		printSubsection(src.Name)
		printKeyValue("    Manifest", src.Manifest)
		printKeyValue("    ID Column", fmt.Sprintf("%d", src.IDColumn))
		printKeyValue("    Label Column", fmt.Sprintf("%d", src.LabelColumn))
		printKeyValue("    Path Template", src.PathTemplate)
	}

	printSection("WAREHOUSE CONFIGURATION")
	printKeyValue("Backend", config.Warehouse.Backend)
	printKeyValue("DSN", config.Warehouse.DSN)
	printKeyValue("Table", config.Warehouse.Table)

	printSection("TRIGGER CONFIGURATION")
	printKeyValue("Listen Address", config.Trigger.ListenAddr)
	printKeyValue("Collection", config.Trigger.Collection)
	printKeyValue("Timeout", config.Trigger.Timeout.String())
	printKeyValue("Classify Workers", fmt.Sprintf("%d", config.Trigger.ClassifyWorkers))
	printKeyValue("Confidence Threshold", fmt.Sprintf("%.3f", config.Trigger.ConfidenceThreshold))
	printKeyValue("Small Sample Max", fmt.Sprintf("%d windows", config.Aggregation.SmallSampleMax))
	printKeyValue("Small Sample Ratio", fmt.Sprintf("%.2f", config.Aggregation.SmallSampleRatio))
	printKeyValue("Large Sample Ratio", fmt.Sprintf("%.2f", config.Aggregation.LargeSampleRatio))

	printSection("CLASSIFIER CONFIGURATION")
	printKeyValue("Endpoint", config.Classifier.Endpoint)
	printKeyValue("Project", config.Classifier.Project)
	printKeyValue("Region", config.Classifier.Region)
	printKeyValue("Endpoint ID", config.Classifier.EndpointID)
	printKeyValue("Token", fmt.Sprintf("%t", config.Classifier.Token != ""))
	printKeyValue("Timeout", config.Classifier.Timeout.String())

	printSection("VERDICT STORE CONFIGURATION")
	printKeyValue("Backend", config.Verdicts.Backend)
	printKeyValue("Directory", config.Verdicts.Dir)

	if source == "" {
		source = "(defaults only)"
	}
	fmt.Println()
	fmt.Println(ColorGreen + strings.Repeat("-", 80))
	fmt.Println("CONFIGURATION TEST COMPLETED SUCCESSFULLY")
	fmt.Printf("Config file: %s\n", source)
	fmt.Println(strings.Repeat("=", 80) + ColorReset)

	return nil
}
