/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/blacktop/crosspost/internal/xpost"
	"github.com/blacktop/crosspost/internal/xpost/mastodon"
	"github.com/blacktop/crosspost/internal/xpost/twitter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	messageFlag string
	imagePaths  []string
	imageAlts   []string
	targetsFlag []string
	envFile     string
	dryRun      bool
	verboseFlag bool

	cfg config.Config
)

// platformOrder is the fixed order posts are sent in.
var platformOrder = []string{"twitter", "mastodon"}

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crosspost [message]",
		Short: "Cross-post to Twitter/X and Mastodon",
		Long: "crosspost publishes the same update to Twitter/X and Mastodon. " +
			"Platforms without credentials are skipped with a warning; a failure on one platform never stops the other.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		RunE:              runRoot,
		Example: `  crosspost --message "hello world" --image ./shot.png --alt-text "a screenshot"
  crosspost "Ship it!" --target mastodon
  echo "Release shipped" | crosspost --dry-run`,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringArrayVar(&imagePaths, "image", nil, "Path to an image to attach (repeatable)")
	cmd.Flags().StringArrayVar(&imageAlts, "alt-text", nil, "Alternative text for the image at the same position (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.PersistentFlags().StringSliceVar(&targetsFlag, "target", platformOrder, "Targets to post to (twitter, mastodon, or all)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with credentials (environment variables take precedence)")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return err
	}

	if err := logutil.SetLevel(cfg.LogLevel); err != nil {
		logutil.Warnf("%v; using info", err)
	}
	if err := logutil.SetFormat(cfg.LogFormat); err != nil {
		logutil.Warnf("%v; using text", err)
	}
	if verboseFlag {
		logutil.SetVerbose(true)
	}
	return nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	media, err := loadMedia(imagePaths, imageAlts)
	if err != nil {
		return err
	}

	post, err := xpost.NewPost(message, media...)
	if err != nil {
		return err
	}

	resolvedTargets, err := normalizeTargets(targetsFlag)
	if err != nil {
		return err
	}

	poster := xpost.New(buildTargets(resolvedTargets, dryRun || cfg.DryRun)...)
	results := poster.Send(ctx, post)
	report(cmd.OutOrStdout(), results)

	return results.Err()
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

func loadMedia(paths, alts []string) ([]xpost.MediaItem, error) {
	if len(alts) > len(paths) {
		return nil, fmt.Errorf("got %d --alt-text values for %d --image values", len(alts), len(paths))
	}

	media := make([]xpost.MediaItem, 0, len(paths))
	for i, path := range paths {
		var alt string
		if i < len(alts) {
			alt = alts[i]
		}
		item, err := xpost.LoadMedia(path, alt)
		if err != nil {
			return nil, err
		}
		media = append(media, item)
	}
	return media, nil
}

func normalizeTargets(values []string) ([]string, error) {
	if len(values) == 0 {
		return platformOrder, nil
	}

	selected := map[string]bool{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		switch raw {
		case "":
			continue
		case "all":
			return platformOrder, nil
		case "twitter", "x":
			selected["twitter"] = true
		case "mastodon":
			selected["mastodon"] = true
		default:
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
	}

	result := make([]string, 0, len(selected))
	for _, name := range platformOrder {
		if selected[name] {
			result = append(result, name)
		}
	}
	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}
	return result, nil
}

// buildTargets resolves credentials into enabled or disabled targets.
// Missing credentials disable a platform without failing the run.
func buildTargets(names []string, simulate bool) []xpost.Target {
	constructors := map[string]func() (xpost.Platform, error){
		"twitter": func() (xpost.Platform, error) {
			c, err := twitter.New(cfg.Twitter, twitter.Options{HTTPTimeout: cfg.HTTPTimeout})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		"mastodon": func() (xpost.Platform, error) {
			c, err := mastodon.New(cfg.Mastodon, mastodon.Options{HTTPTimeout: cfg.HTTPTimeout})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}

	targets := make([]xpost.Target, 0, len(names))
	for _, name := range names {
		platform, err := constructors[name]()
		if err != nil {
			targets = append(targets, xpost.Disabled(name, err))
			continue
		}
		if simulate {
			platform = xpost.Simulate(platform.Name())
		}
		targets = append(targets, xpost.Enabled(platform))
	}
	return targets
}

func report(out io.Writer, results xpost.Results) {
	for _, res := range results {
		switch res.Status {
		case xpost.StatusPosted:
			if res.Published.URL != "" {
				fmt.Fprintf(out, "%s: posted %s\n", res.Platform, res.Published.URL)
			} else {
				fmt.Fprintf(out, "%s: posted (id %s)\n", res.Platform, res.Published.ID)
			}
		default:
			fmt.Fprintf(out, "%s: %s (%v)\n", res.Platform, res.Status, res.Err)
		}
	}
}
