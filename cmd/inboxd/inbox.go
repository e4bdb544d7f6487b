package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
	sqlstore "github.com/goliatone/go-inbox/store/sql"
	"github.com/spf13/cobra"
)

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Manage inbox configuration",
	}
	cmd.AddCommand(inboxAddCmd())
	return cmd
}

func inboxAddCmd() *cobra.Command {
	var inbox core.Inbox
	var lock bool
	var pending bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a Baileys WhatsApp inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inbox.AccountID) == "" {
				return fmt.Errorf("inboxd: --account is required")
			}
			if strings.TrimSpace(inbox.WebhookVerifyToken) == "" {
				return fmt.Errorf("inboxd: --verify-token is required")
			}
			ctx := cmd.Context()
			cfg, _, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			client, err := sqlstore.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()
			factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
			if err != nil {
				return err
			}

			inbox.ChannelType = core.ChannelTypeWhatsApp
			inbox.Provider = core.ProviderBaileys
			inbox.LockToSingleConversation = lock
			if pending {
				inbox.DefaultConversationStatus = core.ConversationStatusPending
			}
			stored, err := factory.Inboxes().PutInbox(ctx, inbox)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", stored.ID)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&inbox.AccountID, "account", "", "owning account id")
	flags.StringVar(&inbox.Name, "name", "WhatsApp", "display name")
	flags.StringVar(&inbox.WebhookVerifyToken, "verify-token", "", "shared webhook verify token")
	flags.StringVar(&inbox.ProviderURL, "provider-url", "", "Baileys API base url")
	flags.StringVar(&inbox.APIKey, "api-key", "", "Baileys API key")
	flags.StringVar(&inbox.PhoneNumber, "phone", "", "connected phone number")
	flags.BoolVar(&lock, "lock-single-conversation", false, "reopen the latest conversation instead of creating a new one")
	flags.BoolVar(&pending, "pending", false, "start new conversations as pending")
	return cmd
}
