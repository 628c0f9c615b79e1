package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/warpcall/cli/internal/ui"
	"github.com/BioHazard786/warpcall/cli/internal/version"
)

var (
	flagDomain        string
	flagInsecure      bool
	flagCodec         string
	flagName          string
	flagSTUN          string
	flagTURN          string
	flagTURNUser      string
	flagTURNPass      string
	flagRelay         bool
	flagAnswerTimeout time.Duration
	flagCamera        string
	flagScreen        string
	flagAudio         string
	flagPlain         bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Peer-to-peer video calls in the terminal using WebRTC",
	Long: `WarpCall joins multi-party video rooms from the command line. A small relay
introduces participants; audio, video and screenshare then flow directly
between peers over WebRTC. Media is played from local IVF (VP8/VP9) and
Ogg (Opus) files.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorBoxView(err))
		stop()
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&flagDomain, "domain", "d", "", "Relay domain (host[:port])")
	f.BoolVar(&flagInsecure, "insecure", false, "Use ws:// and http:// instead of wss:// and https://")
	f.StringVar(&flagCodec, "codec", "", "Signaling codec: json or msgpack")
	f.StringVarP(&flagName, "name", "n", "", "Display name for chat")
	f.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	f.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	f.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	f.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	f.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	f.DurationVar(&flagAnswerTimeout, "answer-timeout", 0, "How long an offer waits for its answer")
	f.StringVar(&flagCamera, "camera", "", "IVF file played as the camera track")
	f.StringVar(&flagScreen, "screen", "", "IVF file played when sharing the screen")
	f.StringVar(&flagAudio, "audio", "", "Ogg/Opus file played as the microphone track")
	f.BoolVar(&flagPlain, "plain", false, "Log call events instead of running the interactive view")
}
