package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sofmeright/webfreight/src/build"
	_ "github.com/sofmeright/webfreight/src/build/engines"
	"github.com/sofmeright/webfreight/src/config"
	"github.com/sofmeright/webfreight/src/deploy"
	"github.com/sofmeright/webfreight/src/gitver"
	"github.com/sofmeright/webfreight/src/guard"
	"github.com/sofmeright/webfreight/src/notify"
	"github.com/sofmeright/webfreight/src/output"
	"github.com/sofmeright/webfreight/src/version"
)

var (
	dpConfigDir   string
	dpSecretsFile string
	dpBundler     string
	dpDryRun      bool
	dpNoFetch     bool
)

// deployFlagKeys maps config keys to the flags that override them.
// Keys not listed use the key itself as the flag name.
var deployFlagKeys = map[string]string{
	config.KeyStaticDir: "static-file-directory",
	config.KeyUploadRPS: "upload-rps",
	config.KeyLeakCheck: "leak-check",
	config.KeyBadgeFont: "badge-embed-font",
}

var deployCmd = &cobra.Command{
	Use:   "deploy [entries...]",
	Short: "Build entries and publish them",
	Long: `Verify the configuration repository, decrypt its secrets, bundle every
entry and publish the result to S3, invalidating CloudFront when configured.

Entries are "source" or "source:destination"; positional entries come before
those listed under "entries" in the configuration. With
--static-file-directory nothing is built and the top-level files of that
directory are published instead.

Settings resolve from flags, then WEBFREIGHT_* environment variables, then
<config>/<env>.yml, then <config>/default.yml.`,
	RunE: runDeploy,
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&dpConfigDir, "config", config.DefaultDir, "configuration directory")
	f.StringVar(&dpSecretsFile, "secrets-file", guard.DefaultSecretsFile, "encrypted secrets file inside the configuration directory")
	f.StringVar(&dpBundler, "bundler", "esbuild", fmt.Sprintf("bundler engine (%s)", strings.Join(build.All(), ", ")))
	f.BoolVar(&dpDryRun, "dry-run", false, "build and log uploads without publishing")
	f.BoolVar(&dpNoFetch, "no-fetch", false, "compare against the last fetched remote state instead of fetching")

	// Config overrides. Defaults live in the config layers, not here, so
	// only explicitly set flags take precedence.
	f.String(config.KeyEnv, "", "environment name (selects <config>/<env>.yml)")
	f.Bool(config.KeyMinify, false, "minify bundles")
	f.String(config.KeyOutDir, "", "build output directory (default build)")
	f.String(config.KeyCloudFront, "", "CloudFront distribution id to invalidate")
	f.String(config.KeyBucket, "", "S3 bucket to publish to")
	f.String(config.KeyPrefix, "", "key prefix inside the bucket")
	f.String(config.KeyRegion, "", "AWS region (default us-east-1)")
	f.String(deployFlagKeys[config.KeyStaticDir], "", "publish the files of this directory instead of building")
	f.Int(config.KeyConcurrency, 0, "parallel builds (default 4)")
	f.Float64(deployFlagKeys[config.KeyUploadRPS], 0, "maximum uploads started per second (0 = unlimited)")
	f.Bool(deployFlagKeys[config.KeyLeakCheck], false, "refuse to publish artifacts containing secrets")
	f.Bool(config.KeyBadge, false, "publish a badges/<env>.svg deploy badge")
	f.Bool(deployFlagKeys[config.KeyBadgeFont], false, "embed the badge font in the SVG")

	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	color := output.UseColor()
	w := os.Stdout

	output.Banner(w, output.NewBannerInfo(version.Version, version.Commit, ""), color)

	id, err := gitver.DetectIdentity(".")
	if err != nil {
		logger.Warn("deploy identity incomplete", zap.Error(err))
	}

	bundler, err := build.Get(dpBundler)
	if err != nil {
		return err
	}

	stores := deploy.AWSStores
	if dpDryRun {
		stores = deploy.DryRunStores(logger)
	}

	r := &deploy.Runner{
		Guard: &guard.Guard{
			Inspector:   gitver.GoGitInspector{Fetch: !dpNoFetch},
			Decryptor:   guard.NewCommandDecryptor(),
			SecretsFile: dpSecretsFile,
		},
		Bundler: bundler,
		Stores:  stores,
		Logger:  logger,
		Out:     w,
		Color:   color,
	}

	return r.Run(ctx, deploy.Options{
		ConfigDir: dpConfigDir,
		Args:      args,
		Flags:     config.FlagLayer{Flags: cmd.Flags(), Keys: deployFlagKeys},
		Environ:   config.EnvLayer{Prefix: config.EnvPrefix},
		Identity:  id,
		Notify:    notify.SettingsFromEnv(nil),
	})
}
