package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// applicationCommands are the slash commands registered with Discord.
var applicationCommands = []*discordgo.ApplicationCommand{
	{
		Name:        CmdScan,
		Description: "Scan a fee payer for sponsored accounts",
		Options:     []*discordgo.ApplicationCommandOption{addressOption("Fee payer address to scan")},
	},
	{
		Name:        CmdTrack,
		Description: "Get alerts when sponsored accounts become closeable",
		Options:     []*discordgo.ApplicationCommandOption{addressOption("Fee payer address to track")},
	},
	{
		Name:        CmdUntrack,
		Description: "Stop tracking an address",
		Options:     []*discordgo.ApplicationCommandOption{addressOption("Address to stop tracking")},
	},
	{
		Name:        CmdStatus,
		Description: "Show the latest results for your tracked addresses",
	},
	{
		Name:        CmdAlerts,
		Description: "Turn alert messages on or off",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "state",
				Description: "on or off",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "on", Value: "on"},
					{Name: "off", Value: "off"},
				},
			},
		},
	},
	{
		Name:        CmdNetwork,
		Description: "Choose the Solana network",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "network",
				Description: "devnet or mainnet-beta",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "devnet", Value: "devnet"},
					{Name: "mainnet-beta", Value: "mainnet-beta"},
				},
			},
		},
	},
	{
		Name:        CmdRPC,
		Description: "Set a custom RPC endpoint",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "url",
				Description: "RPC URL, or \"clear\" to use the default",
			},
		},
	},
	{
		Name:        CmdCancel,
		Description: "Abandon the current prompt",
	},
	{
		Name:        CmdHelp,
		Description: "List the available commands",
	},
}

func addressOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "address",
		Description: description,
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	for _, cmd := range applicationCommands {
		if _, err := b.session.ApplicationCommandCreate(appID, b.config.GuildID, cmd); err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
	}
	return nil
}

// commandFromInteraction extracts the command name and its single optional argument.
func commandFromInteraction(data discordgo.ApplicationCommandInteractionData) Command {
	cmd := Command{Name: data.Name}
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			cmd.Arg = opt.StringValue()
			break
		}
	}
	return cmd
}
