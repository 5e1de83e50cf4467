package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/micmove/micmove/internal/domain"
	"github.com/micmove/micmove/internal/endpoint"
	"github.com/micmove/micmove/internal/endpoint/rtc"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		relayURL string
		nickname string
	)

	root := &cobra.Command{
		Use:   "micmove-endpoint",
		Short: "Native Mic Move endpoint (sender or receiver)",
	}
	root.PersistentFlags().StringVar(&relayURL, "relay", "wss://localhost:8787/ws", "Relay WebSocket URL")
	root.PersistentFlags().StringVar(&nickname, "nickname", "", "Display name (random if empty)")

	var audioFile string
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Register as a sender and answer inbound offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSender(cmd.Context(), relayURL, nickname, audioFile)
		},
	}
	sendCmd.Flags().StringVar(&audioFile, "audio", "", "Ogg/Opus file streamed as the audio source")

	var target string
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Register as a receiver and call a sender",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceiver(cmd.Context(), relayURL, nickname, domain.Identity(target))
		},
	}
	receiveCmd.Flags().StringVar(&target, "target", "", "Sender identity to call (first sender seen if empty)")

	root.AddCommand(sendCmd)
	root.AddCommand(receiveCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runSender(ctx context.Context, relayURL, nickname, audioFile string) error {
	if nickname == "" {
		nickname = domain.RandomNickname(domain.RoleSender)
	}

	client := endpoint.NewClient(relayURL)

	var source *rtc.OpusFileSource
	newMedia := func() (endpoint.SenderMedia, error) {
		return rtc.NewSenderSession(rtc.DefaultConfig(), source.Track())
	}
	sender := endpoint.NewSender(client, newMedia)
	sender.OnStatus = func(msg string) {
		log.Info().Str("module", "cmd.endpoint").Msg(msg)
	}
	sender.OnState = func(s endpoint.State) {
		log.Info().Str("module", "cmd.endpoint").Str("state", s.String()).Msg("negotiation state")
	}

	ep := endpoint.New(client, domain.RoleSender, nickname, sender)

	if audioFile != "" {
		src, err := rtc.NewOpusFileSource(audioFile)
		if err != nil {
			return err
		}
		source = src
		go func() {
			if err := source.Stream(ctx); err != nil {
				log.Error().Err(err).Str("module", "cmd.endpoint").Msg("audio stream stopped")
			}
		}()
		sender.SourceReady(ctx)
	} else {
		log.Warn().Str("module", "cmd.endpoint").Msg("no --audio file, inbound offers will be held")
	}

	err := ep.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func runReceiver(ctx context.Context, relayURL, nickname string, target domain.Identity) error {
	if nickname == "" {
		nickname = domain.RandomNickname(domain.RoleReceiver)
	}

	client := endpoint.NewClient(relayURL)

	newMedia := func() (endpoint.ReceiverMedia, error) {
		sess, err := rtc.NewReceiverSession(rtc.DefaultConfig())
		if err != nil {
			return nil, err
		}
		sess.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			log.Info().Str("module", "cmd.endpoint").Str("codec", track.Codec().MimeType).Msg("remote audio track")
		})
		return sess, nil
	}
	receiver := endpoint.NewReceiver(client, newMedia)
	receiver.OnState = func(s endpoint.State) {
		log.Info().Str("module", "cmd.endpoint").Str("state", s.String()).Msg("negotiation state")
		if s == endpoint.StateFailed {
			// Release the failed attempt so the next roster update redials.
			go receiver.Close()
		}
	}

	ep := endpoint.New(client, domain.RoleReceiver, nickname, receiver)

	var dialing atomic.Bool
	ep.OnRoster = func([]domain.Peer) {
		if receiver.State() != endpoint.StateIdle || !dialing.CompareAndSwap(false, true) {
			return
		}
		senders := ep.PeersWithRole(domain.RoleSender)
		var pick *domain.Peer
		for i := range senders {
			if target == "" || senders[i].ID == target {
				pick = &senders[i]
				break
			}
		}
		if pick == nil {
			dialing.Store(false)
			return
		}
		go func(p domain.Peer) {
			defer dialing.Store(false)
			log.Info().Str("module", "cmd.endpoint").Str("target", string(p.ID)).
				Str("nickname", p.Nickname).Msg("calling sender")
			if err := receiver.Dial(ctx, p.ID); err != nil {
				log.Error().Err(err).Str("module", "cmd.endpoint").Msg("dial failed")
			}
		}(*pick)
	}

	err := ep.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
