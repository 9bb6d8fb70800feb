// Package clientcli holds the pieces of the bgst command line client that
// are not commands themselves: saved credentials, a client for the read
// and housekeeping operations, and output formatting.
//
// # Profiles
//
// API keys are kept per profile in a YAML file readable only by its owner:
//
//	cfgFile, err := clientcli.LoadOrEmpty(clientcli.DefaultConfigPath(dir))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	profile, err := cfgFile.GetProfile("default")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg := clientcli.MergeConfig(clientcli.ConfigFromProfile(profile), clientcli.ConfigFromEnv())
//	client, err := clientcli.New(cfg)
//
// # Output Formatting
//
// Use formatters for human-readable or JSON output:
//
//	formatter := clientcli.NewFormatter(jsonOutput, quiet)
//	formatter.FormatArchives(os.Stdout, archives)
package clientcli
