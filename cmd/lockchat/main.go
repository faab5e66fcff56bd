// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/lockchat"
	"github.com/luxfi/lockchat/config"
	"github.com/luxfi/lockchat/evm"
	log "github.com/luxfi/log"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"

	configFile string
	demoMode   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lockchat",
	Short: "LockChat - confidential on-chain group messaging CLI",
	Long: `LockChat is a client for a confidentiality-preserving group messaging
protocol: rooms and messages live on a public ledger, but their sensitive
fields are submitted as ciphertexts with zero-knowledge validity proofs.

This CLI creates rooms, sends encrypted messages, manages profiles, and
streams contract events. With --demo it runs against a deterministic
in-memory ledger instead of a live endpoint.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, config.ConfigFileKey, "", "path to JSON config file")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "run against an in-memory ledger")

	rootCmd.AddCommand(createRoomCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(leaveCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(roomCmd)
	rootCmd.AddCommand(reputationCmd)
	rootCmd.AddCommand(deactivateCmd)
	rootCmd.AddCommand(listenCmd)
}

var createRoomCmd = &cobra.Command{
	Use:   "create-room <name> <description>",
	Short: "Create a chat room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		private, _ := cmd.Flags().GetBool("private")
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		roomID, err := session.CreateRoom(cmd.Context(), args[0], args[1], private)
		if err != nil {
			return err
		}
		fmt.Printf("created room %d\n", roomID)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <room-id> <message>",
	Short: "Send an encrypted message to a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
		if err != nil {
			return err
		}
		plaintext, _ := cmd.Flags().GetBool("plaintext")
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		messageID, err := session.SendMessage(cmd.Context(), roomID, args[1], !plaintext)
		if err != nil {
			return err
		}
		fmt.Printf("sent message %d\n", messageID)
		return nil
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
		if err != nil {
			return err
		}
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		joined, err := session.JoinRoom(cmd.Context(), roomID)
		if err != nil {
			return err
		}
		if !joined {
			fmt.Printf("did not join room %d\n", roomID)
			return nil
		}
		fmt.Printf("joined room %d\n", roomID)
		return nil
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave <room-id>",
	Short: "Leave a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
		if err != nil {
			return err
		}
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := session.LeaveRoom(cmd.Context(), roomID); err != nil {
			return err
		}
		fmt.Printf("left room %d\n", roomID)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a profile for the configured account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := session.CreateUserProfile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("created profile %q\n", args[0])
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show the publicly decodable profile fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		profile, err := session.GetUserProfile(cmd.Context(), common.HexToAddress(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("username:   %s\n", profile.Username)
		fmt.Printf("joined at:  %d\n", profile.JoinedAt)
		fmt.Printf("reputation: %s\n", profile.Reputation)
		return nil
	},
}

var roomCmd = &cobra.Command{
	Use:   "room <room-id>",
	Short: "Show the publicly decodable room fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
		if err != nil {
			return err
		}
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		room, err := session.GetRoomInfo(cmd.Context(), roomID)
		if err != nil {
			return err
		}
		fmt.Printf("name:        %s\n", room.Name)
		fmt.Printf("description: %s\n", room.Description)
		fmt.Printf("creator:     %s\n", room.Creator)
		fmt.Printf("created at:  %d\n", room.CreatedAt)
		fmt.Printf("private:     %s\n", room.Private)
		return nil
	},
}

var reputationCmd = &cobra.Command{
	Use:   "reputation <address> <delta>",
	Short: "Adjust a user's reputation (moderator only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}
		delta, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid delta %q: %w", args[1], err)
		}
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := session.UpdateReputation(cmd.Context(), common.HexToAddress(args[0]), delta); err != nil {
			return err
		}
		fmt.Println("reputation updated")
		return nil
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <room-id>",
	Short: "Deactivate a room (terminal, creator only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
		if err != nil {
			return err
		}
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := session.DeactivateRoom(cmd.Context(), roomID); err != nil {
			return err
		}
		fmt.Printf("deactivated room %d\n", roomID)
		return nil
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream contract events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, cleanup, err := newSession()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("listening for contract events, ctrl-c to stop")
		<-ctx.Done()

		for _, room := range session.State().Rooms() {
			fmt.Printf("room %d %q created by %s [%s]\n", room.ID, room.Name, room.Creator, room.State)
			for _, msg := range session.State().RoomMessages(room.ID) {
				fmt.Printf("  message %d from %s [%s]\n", msg.ID, msg.Sender, msg.State)
			}
		}
		return nil
	},
}

func init() {
	createRoomCmd.Flags().Bool("private", false, "mark the room private")
	sendCmd.Flags().Bool("plaintext", false, "mark the content as not confidential")
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileShowCmd)
}

// newLogger builds the process logger at the given level.
func newLogger(levelStr string) (log.Logger, error) {
	logLevel, err := log.ToLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	return log.NewLogger(
		"lockchat",
		*log.NewWrappedCore(
			logLevel,
			os.Stdout,
			log.JSON.ConsoleEncoder(),
		),
	), nil
}

// newSession builds a session over either the in-memory demo ledger or a
// live chain per the config file.
func newSession() (*lockchat.Session, func(), error) {
	if demoMode {
		logger, err := newLogger("info")
		if err != nil {
			return nil, nil, err
		}
		contract := common.HexToAddress("0x0c7a7a7a0000000000000000000000000000c4a7")
		sender := common.HexToAddress("0xa11ce00000000000000000000000000000000001")
		ledger := lockchat.NewMemoryLedger(contract, sender)
		session, err := lockchat.NewSession(logger, ledger, ledger, lockchat.SessionConfig{})
		if err != nil {
			return nil, nil, err
		}
		return session, session.Close, nil
	}

	if configFile == "" {
		return nil, nil, fmt.Errorf("either --%s or --demo is required", config.ConfigFileKey)
	}
	v, err := config.BuildViper(rootCmd.PersistentFlags())
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.AccountPrivateKey, "0x"))
	if err != nil {
		return nil, nil, err
	}
	var blockchainID ids.ID
	if cfg.BlockchainID != "" {
		blockchainID, err = ids.FromString(cfg.BlockchainID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid blockchain id: %w", err)
		}
	}

	client, err := evm.NewClient(logger, &evm.Config{
		BlockchainID:       blockchainID,
		RPCEndpoint:        cfg.RPCEndpoint,
		WSEndpoint:         cfg.WSEndpoint,
		ContractAddress:    cfg.Contract(),
		PrivateKey:         key,
		GasLimit:           cfg.GasLimit,
		TxInclusionTimeout: cfg.ConfirmationTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}

	// The encryption gateway is deployment-specific; a production gateway
	// implements lockchat.Gateway over the deployment's FHE coprocessor
	// API. LocalGateway only suits chains running the matching verifier.
	gateway := lockchat.LocalGateway{}

	session, err := lockchat.NewSession(logger, gateway, client, lockchat.SessionConfig{
		ConfirmationTimeout: cfg.ConfirmationTimeout(),
		ProvisionalWindow:   cfg.ProvisionalWindow(),
	})
	if err != nil {
		return nil, nil, err
	}
	return session, session.Close, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
