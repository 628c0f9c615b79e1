package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/warpcall/cli/internal/call"
	"github.com/BioHazard786/warpcall/cli/internal/config"
	"github.com/BioHazard786/warpcall/cli/internal/media"
	"github.com/BioHazard786/warpcall/cli/internal/peer"
	"github.com/BioHazard786/warpcall/cli/internal/signaling"
	"github.com/BioHazard786/warpcall/cli/internal/ui"
	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/BioHazard786/warpcall/internal/protocol"
)

// callContext holds everything one invocation needs to talk to the relay
// and its peers.
type callContext struct {
	cfg      *config.Config
	client   *signaling.Client
	session  *call.Session
	capture  *media.FileCapture
	notifier *ui.ProgramNotifier // nil in plain mode

	handlerDone chan error
}

func mediaFiles() media.Files {
	return media.Files{
		Camera:      flagCamera,
		Screenshare: flagScreen,
		Audio:       flagAudio,
	}
}

// validateMedia checks the capture files up front and shows what will be sent.
func validateMedia() error {
	infos, err := mediaFiles().Validate()
	if err != nil {
		return err
	}

	rows := make([]ui.MediaFile, len(infos))
	for i, f := range infos {
		rows[i] = ui.MediaFile{Source: string(f.Source), Name: f.Name, Size: f.Size}
	}
	fmt.Println()
	fmt.Println(ui.MediaTableView(rows))
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:        flagDomain,
		Insecure:      flagInsecure,
		Codec:         flagCodec,
		Name:          flagName,
		STUNServer:    flagSTUN,
		TURNServer:    flagTURN,
		TURNUser:      flagTURNUser,
		TURNPass:      flagTURNPass,
		ForceRelay:    flagRelay,
		AnswerTimeout: flagAnswerTimeout,
	})
	if err != nil {
		return nil, call.NewError("load config", err)
	}
	return cfg, nil
}

// connect dials the relay, wires a session to it and waits for the welcome.
func connect(ctx context.Context) (*callContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	if flagPlain {
		logging.Init(slog.LevelInfo)
	}

	sp := ui.NewConnectionSpinner(ui.IconConnect + " Connecting to relay...")
	sp.Start()
	defer sp.Stop()

	client := signaling.NewClient(cfg.WebSocketURL, codec)
	if err := client.Connect(ctx); err != nil {
		return nil, call.NewError("connect to relay", err)
	}

	cc := &callContext{
		cfg:         cfg,
		client:      client,
		handlerDone: make(chan error, 1),
	}

	var notifier call.Notifier = call.LogNotifier{}
	if !flagPlain {
		cc.notifier = ui.NewProgramNotifier()
		notifier = cc.notifier
	}

	tracks := media.NewTracks()
	cc.capture = media.NewFileCapture(tracks, mediaFiles())
	cc.session = call.NewSession(ctx, call.Options{
		Signaler:      client,
		Notifier:      notifier,
		Tracks:        tracks,
		Capture:       cc.capture,
		Factory:       peer.NewFactory(cfg),
		AnswerTimeout: cfg.AnswerTimeout,
		Name:          cfg.Name,
	})

	go func() {
		err := signaling.NewHandler(client).Run(ctx, cc.session)
		cc.session.Disconnected()
		cc.handlerDone <- err
	}()

	sp.UpdateMessage(ui.IconWaiting + " Waiting for the relay to assign an id...")
	if err := cc.session.WaitWelcome(ctx); err != nil {
		cc.Close()
		return nil, call.NewError("connect to relay", err)
	}
	sp.Success(fmt.Sprintf("Connected to %s as %s", cfg.Domain, cc.session.Self()))
	return cc, nil
}

func (cc *callContext) Close() {
	cc.session.Close()
	cc.client.Close()
	if err := <-cc.handlerDone; err != nil && !errors.Is(err, signaling.ErrClosed) && !errors.Is(err, context.Canceled) {
		slog.Debug("signaling handler stopped", "err", err)
	}
}

// run starts local media and stays in the call until it ends or the user
// leaves.
func (cc *callContext) run(ctx context.Context, room protocol.RoomID) error {
	if err := cc.capture.StartAll(ctx); err != nil {
		ui.PrintWarningf("Media capture: %v", err)
	}
	for _, src := range []media.Source{media.SourceCamera, media.SourceAudio} {
		if !cc.capture.Has(src) {
			slog.Debug("no file for source, receiving only", "source", src)
		}
	}

	var err error
	if cc.notifier != nil {
		err = cc.runInteractive(ctx, room)
	} else {
		err = cc.runPlain(ctx, room)
	}
	if err != nil {
		return err
	}

	switch serr := cc.session.Err(); {
	case errors.Is(serr, call.ErrRoomEnded):
		ui.PrintInfof("%s Room %s has ended", ui.IconHangup, room)
	case errors.Is(serr, call.ErrDisconnected):
		return call.NewError("call", serr)
	default:
		ui.PrintInfof("%s Left room %s", ui.IconHangup, room)
	}
	return nil
}

func (cc *callContext) runInteractive(ctx context.Context, room protocol.RoomID) error {
	model := ui.NewCallModel(room, cc.session.Self(), cc.cfg.GetRoomLink(room), cc.session)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	cc.notifier.Attach(program)

	go func() {
		select {
		case <-cc.session.Done():
			cc.notifier.Done(cc.session.Err())
		case <-ctx.Done():
		}
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("call view: %w", err)
	}
	return nil
}

// runPlain reads chat lines from stdin until the session ends. "/end" ends
// the room and "/share" starts the screenshare file.
func (cc *callContext) runPlain(ctx context.Context, room protocol.RoomID) error {
	ui.PrintInfof("In room %s as %s. Type to chat, /share, /end or /quit.", room, cc.session.Self())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-cc.session.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-cc.session.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed, keep the call up until it ends
				lines = nil
				continue
			}
			if quit := cc.plainCommand(strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (cc *callContext) plainCommand(line string) bool {
	var err error
	switch {
	case line == "":
	case line == "/quit":
		return true
	case line == "/end":
		err = cc.session.End()
	case line == "/share":
		err = cc.session.ShareScreen()
	case strings.HasPrefix(line, "/name "):
		err = cc.session.SetName(strings.TrimSpace(strings.TrimPrefix(line, "/name ")))
	default:
		err = cc.session.SendChat(line)
	}
	if err != nil {
		ui.PrintError(err.Error())
	}
	return false
}
