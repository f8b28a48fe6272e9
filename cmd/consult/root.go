package main

import (
	"strings"
	"sync"

	"ai-consultation-be/pkg/relay"

	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	once    sync.Once
	profile profile
	err     error
}

func (c *commandContext) ensureProfile() (profile, error) {
	c.once.Do(func() {
		p, err := loadProfile(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		if v := strings.TrimSpace(*c.serverFlag); v != "" {
			p.ServerURL = v
		}
		if v := strings.TrimSpace(*c.tokenFlag); v != "" {
			p.Token = v
		}
		c.profile = p
	})
	return c.profile, c.err
}

// withClient opens the local cache and a relay client for one command.
func (c *commandContext) withClient(fn func(*relay.Client) error) error {
	p, err := c.ensureProfile()
	if err != nil {
		return err
	}
	cache, err := relay.OpenSQLiteCache(p.CachePath, p.CacheSize)
	if err != nil {
		return err
	}
	defer cache.Close()

	client, err := relay.NewClient(relay.Options{
		BaseURL: p.ServerURL,
		Token:   p.Token,
		Cache:   cache,
	})
	if err != nil {
		return err
	}
	return fn(client)
}

func newRootCommand() *cobra.Command {
	var configFlag, serverFlag, tokenFlag string
	ctx := &commandContext{configFlag: &configFlag, serverFlag: &serverFlag, tokenFlag: &tokenFlag}

	rootCmd := &cobra.Command{
		Use:           "consult",
		Short:         "Summarize consultation notes with the consultation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureProfile()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Profile file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Bearer token")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newRecentCommand(ctx))
	rootCmd.AddCommand(newWhoamiCommand(ctx))

	return rootCmd
}
