// Package cli is the placement-chat terminal client.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mikepea/placement/pkg/placement/chatclient"
	"github.com/mikepea/placement/pkg/placement/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

// options are the persistent flags shared by every command
type options struct {
	profilePath string
	server      string
	verbose     bool
}

func (o *options) path() (string, error) {
	if o.profilePath != "" {
		return o.profilePath, nil
	}
	return config.DefaultProfilePath()
}

// load reads the profile and applies --server
func (o *options) load() (*config.Profile, string, error) {
	path, err := o.path()
	if err != nil {
		return nil, "", err
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return nil, "", err
	}
	if o.server != "" {
		p.Server = o.server
	}
	return p, path, nil
}

// client returns an authenticated API client, or an error when not logged in
func (o *options) client() (*chatclient.Client, *config.Profile, error) {
	p, _, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	if p.Token == "" {
		return nil, nil, fmt.Errorf("not logged in to %s: run 'placement-chat login' first", p.Server)
	}
	return chatclient.New(p.Server, chatclient.WithToken(p.Token)), p, nil
}

func (o *options) logger(p *config.Profile, w io.Writer) (*zap.Logger, error) {
	level := p.LogLevel
	if o.verbose {
		level = "debug"
	}
	return newLogger(level, w)
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "placement-chat",
		Short: "Terminal client for placement group chats",
		Long: `placement-chat connects to a placement server and lets students and
placement staff read and post in their drive and department groups.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&opts.profilePath, "config", "c", "", "profile path (default is $HOME/.placement-chat.yaml)")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "server URL, overrides the profile")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newGroupsCmd(opts),
		newChatCmd(opts),
	)
	return root
}

// Execute runs the client. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
