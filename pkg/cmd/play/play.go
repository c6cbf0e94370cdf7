package play

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/racesim-client/log"
	"github.com/mpapenbr/racesim-client/pkg/channel"
	"github.com/mpapenbr/racesim-client/pkg/config"
	"github.com/mpapenbr/racesim-client/pkg/mirror"
	"github.com/mpapenbr/racesim-client/pkg/session"
	"github.com/mpapenbr/racesim-client/pkg/track"
	"github.com/mpapenbr/racesim-client/pkg/utils"
)

var ErrConnectionLost = errors.New("connection lost, reconnect attempts exhausted")

var (
	appConfig config.Config // holds processed config values
	numRaces  int
)

//nolint:funlen // by design
func NewPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "connects to the race simulator and plays a race",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&config.PlayerName,
		"player-name",
		"n",
		"Player",
		"name of the player")
	cmd.Flags().StringVar(&config.SessionID,
		"session-id",
		"",
		"session id to use (random if empty)")
	cmd.Flags().IntVar(&config.TotalLaps,
		"laps",
		0,
		"number of laps (0: use the laps of the circuit)")
	cmd.Flags().IntVar(&config.RainLap,
		"rain-lap",
		0,
		"lap on which rain starts (0: simulator decides)")
	cmd.Flags().IntVar(&config.SafetyCarLap,
		"safety-car-lap",
		0,
		"lap on which the safety car is deployed (0: simulator decides)")
	cmd.Flags().IntVar(&numRaces,
		"races",
		1,
		"number of consecutive races in this session")
	cmd.Flags().StringVar(&config.ReconnectInterval,
		"reconnect-interval",
		channel.DefaultReconnectInterval.String(),
		"duration between reconnect attempts")
	cmd.Flags().IntVar(&config.MaxReconnectAttempts,
		"max-reconnect-attempts",
		channel.DefaultMaxReconnectAttempts,
		"max number of reconnect attempts")
	cmd.Flags().StringVar(&config.HandshakeTimeout,
		"handshake-timeout",
		channel.DefaultHandshakeTimeout.String(),
		"timeout for the websocket handshake")
	cmd.Flags().StringVar(&config.DecisionTimeout,
		"decision-timeout",
		"5s",
		"a recommended strategy is chosen after this duration (0: wait for input)")
	cmd.Flags().IntVar(&config.StrategyIndex,
		"strategy-index",
		0,
		"index of the recommended strategy to choose")
	cmd.Flags().StringVar(&config.Circuit,
		"circuit",
		track.Bahrain.Name,
		"name of the built-in circuit")
	cmd.Flags().StringVar(&config.CircuitFile,
		"circuit-file",
		"",
		"yaml file with a circuit definition (overrides --circuit)")
	cmd.Flags().BoolVar(&appConfig.PrintPositions,
		"print-positions",
		false,
		"if true, the track positions of all cars are printed on each lap")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"if set, session snapshots are published to this NATS server")
	cmd.Flags().BoolVar(&config.NatsKV,
		"nats-kv",
		false,
		"keep the latest snapshot in a JetStream key value bucket")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout prints them)")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	return cmd
}

func parseDuration(name, value string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("Invalid duration value, using default",
			log.String("flag", name),
			log.String("value", value),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return d
}

func loadCircuit() (track.Circuit, error) {
	if config.CircuitFile != "" {
		return track.LoadCircuit(config.CircuitFile)
	}
	return track.Lookup(config.Circuit)
}

// retryBudget is the time after which a lost connection is considered final
func retryBudget(interval, handshake time.Duration, maxAttempts int) time.Duration {
	return time.Duration(maxAttempts+1) * (interval + handshake)
}

type playParams struct {
	start          session.StartOptions
	races          int
	retryBudget    time.Duration
	decisionTimer  *session.DecisionTimer
	printPositions bool
	input          <-chan string // lines typed by the player
}

//nolint:funlen,cyclop // by design
func runPlay(ctx context.Context, in io.Reader, out io.Writer) error {
	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	gameURL, err := utils.GameURL(config.URL, sessionID)
	if err != nil {
		return err
	}
	circuit, err := loadCircuit()
	if err != nil {
		return err
	}
	path, err := circuit.Path()
	if err != nil {
		return err
	}
	totalLaps := config.TotalLaps
	if totalLaps <= 0 {
		totalLaps = circuit.Laps
	}
	reconnectInterval := parseDuration("reconnect-interval",
		config.ReconnectInterval, channel.DefaultReconnectInterval)
	handshakeTimeout := parseDuration("handshake-timeout",
		config.HandshakeTimeout, channel.DefaultHandshakeTimeout)
	decisionTimeout := parseDuration("decision-timeout", config.DecisionTimeout, 0)

	log.Debug("Config:",
		log.String("url", gameURL),
		log.String("player", config.PlayerName),
		log.String("circuit", circuit.Name),
		log.Int("laps", totalLaps),
		log.Duration("reconnectInterval", reconnectInterval),
		log.Int("maxReconnectAttempts", config.MaxReconnectAttempts),
		log.Duration("decisionTimeout", decisionTimeout),
	)

	if config.ProfilingPort > 0 {
		startProfiling(config.ProfilingPort)
	}
	if err := waitForRequiredServices(ctx, gameURL); err != nil {
		return err
	}
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, tErr := config.SetupTelemetry(ctx); tErr == nil {
			defer telemetry.Shutdown()
		} else {
			log.Warn("Could not setup telemetry", log.ErrorField(tErr))
		}
		if rErr := otlpruntime.Start(
			otlpruntime.WithMinimumReadMemStatsInterval(time.Second)); rErr != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(rErr))
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := channel.NewManager(gameURL,
		channel.WithReconnectInterval(reconnectInterval),
		channel.WithMaxReconnectAttempts(config.MaxReconnectAttempts),
		channel.WithHandshakeTimeout(handshakeTimeout))
	ctrl := session.NewController(mgr,
		session.WithSessionID(sessionID),
		session.WithErrorHandler(func(err error) {
			log.Debug("channel error", log.ErrorField(err))
		}))
	defer ctrl.Close()

	if config.NatsURL != "" {
		m, mErr := mirror.Connect(ctx, config.NatsURL, config.NatsKV)
		if mErr != nil {
			return mErr
		}
		defer m.Close()
		go m.Run(ctx, ctrl.Subscribe())
		log.Info("Mirroring snapshots", log.String("subject", mirror.Subject(sessionID)))
	}

	dt := session.NewDecisionTimer(decisionTimeout, ctrl.ChooseStrategyFor,
		session.WithStrategyPicker(session.StrategyAt(config.StrategyIndex)))
	defer dt.Stop()

	params := playParams{
		start: session.StartOptions{
			PlayerName:   config.PlayerName,
			TotalLaps:    totalLaps,
			RainLap:      optionalLap(config.RainLap),
			SafetyCarLap: optionalLap(config.SafetyCarLap),
		},
		races:          max(numRaces, 1),
		retryBudget:    retryBudget(reconnectInterval, handshakeTimeout, config.MaxReconnectAttempts),
		decisionTimer:  dt,
		printPositions: appConfig.PrintPositions,
		input:          readLines(in),
	}
	sub := ctrl.Subscribe()
	ctrl.Start(ctx)
	log.Info("Connecting", log.String("url", gameURL))
	return playLoop(ctx, ctrl, sub, newPrinter(out, path, params.printPositions), params)
}

// controller is the part of session.Controller used by the play loop
type controller interface {
	StartRace(opts session.StartOptions) bool
	ChooseStrategyFor(d *session.DecisionPoint, strategyID string) bool
	Restart()
}

//nolint:cyclop,funlen // by design
func playLoop(
	ctx context.Context,
	ctrl controller,
	sub <-chan session.Session,
	p *printer,
	params playParams,
) error {
	racesDone := 0
	raceRequested := false
	wasComplete := false
	var current *session.DecisionPoint
	input := params.input
	var giveUp <-chan time.Time
	var giveUpTimer *time.Timer
	stopGiveUp := func() {
		if giveUpTimer != nil {
			giveUpTimer.Stop()
			giveUpTimer = nil
			giveUp = nil
		}
	}
	defer stopGiveUp()

	for {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")
			return nil
		case <-giveUp:
			log.Error("Giving up", log.Duration("retryBudget", params.retryBudget))
			return ErrConnectionLost
		case line, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			if current == nil {
				p.notice("no decision pending")
				continue
			}
			id, valid := strategyFromInput(current, line)
			if !valid {
				p.notice(fmt.Sprintf("invalid choice %q", strings.TrimSpace(line)))
				continue
			}
			ctrl.ChooseStrategyFor(current, id)
		case s, ok := <-sub:
			if !ok {
				return nil
			}
			current = s.ActiveDecision
			if params.decisionTimer != nil {
				params.decisionTimer.Observe(s)
			}
			p.update(s)

			switch s.ConnectionState {
			case channel.Connected:
				stopGiveUp()
				if !raceRequested {
					raceRequested = ctrl.StartRace(params.start)
				}
			case channel.Disconnected:
				if giveUpTimer == nil {
					log.Warn("Disconnected, waiting for reconnect")
					giveUpTimer = time.NewTimer(params.retryBudget)
					giveUp = giveUpTimer.C
				}
			case channel.Connecting:
			}

			complete := s.RaceComplete && !wasComplete
			wasComplete = s.RaceComplete
			if complete {
				racesDone++
				if racesDone >= params.races {
					return nil
				}
				log.Info("Starting next race", log.Int("race", racesDone+1))
				ctrl.Restart()
				raceRequested = false
				if s.ConnectionState == channel.Connected {
					raceRequested = ctrl.StartRace(params.start)
				}
			}
		}
	}
}

// strategyFromInput accepts the index of a recommendation or a strategy id
func strategyFromInput(d *session.DecisionPoint, line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if idx, err := strconv.Atoi(line); err == nil {
		if idx < 0 || idx >= len(d.Recommended) {
			return "", false
		}
		return d.Recommended[idx].ID, true
	}
	return line, true
}

// readLines delivers the lines of r until r is exhausted
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	if r == nil {
		close(ch)
		return ch
	}
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

func optionalLap(lap int) *int {
	if lap <= 0 {
		return nil
	}
	return &lap
}

func startProfiling(port int) {
	log.Info("Starting profiling server on port", log.Int("port", port))
	go func() {
		//nolint:gosec // by design
		err := http.ListenAndServe(fmt.Sprintf("localhost:%d", port), nil)
		if err != nil {
			log.Error("Profiling server stopped", log.ErrorField(err))
		}
	}()
}

func waitForRequiredServices(ctx context.Context, gameURL string) error {
	timeout := parseDuration("wait-for-services", config.WaitForServices, 60*time.Second)
	if timeout <= 0 {
		return nil
	}
	var addrs []string
	for _, u := range []string{gameURL, config.NatsURL} {
		if u == "" {
			continue
		}
		addr, err := utils.HostPort(u)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}
	log.Debug("Waiting for required services", log.Any("addrs", addrs))
	if err := utils.WaitForServices(ctx, addrs, timeout); err != nil {
		log.Error("required services not ready", log.ErrorField(err))
		return err
	}
	log.Debug("Required services are available")
	return nil
}
