package cli

import (
	"errors"
	"time"

	"github.com/mikepea/placement/pkg/placement/chat"
	"github.com/mikepea/placement/pkg/placement/chat/render"
	"github.com/spf13/cobra"
)

func newGroupsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List your chat groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := opts.client()
			if err != nil {
				return err
			}
			groups, err := client.ListGroups(cmd.Context())
			if err != nil {
				return errors.New(chatErrorText(err))
			}
			return render.NewPrinter(cmd.OutOrStdout(), 0, time.Local).Groups(groups, 0, time.Now())
		},
	}
}

func chatErrorText(err error) string {
	return chat.ErrorMessage(err, err.Error())
}
