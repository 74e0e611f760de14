package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/config"
	"github.com/beagle-term/beagle/internal/console"
	"github.com/beagle-term/beagle/internal/discovery"
	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/host"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/metrics"
	"github.com/beagle-term/beagle/internal/serial"
	"github.com/beagle-term/beagle/internal/server"
	"github.com/beagle-term/beagle/internal/surface"
	"github.com/beagle-term/beagle/internal/ui"
)

// Picker modes
const (
	pickerLocal  = "local"
	pickerRemote = "remote"
)

// Terminal command flags
var (
	termPort    string
	termBaud    int
	termLast    bool
	pickerMode  string
	listenAddr  string
	metricsAddr string
	certPath    string
	keyPath     string
)

// Picker command flags
var (
	windowURL string
)

// Ports command flags
var (
	showAll bool
)

func init() {
	rootCmd.AddCommand(termCmd)
	rootCmd.AddCommand(pickerCmd)
	rootCmd.AddCommand(portsCmd)

	for _, cmd := range []*cobra.Command{rootCmd, termCmd} {
		flags := cmd.Flags()
		flags.StringVar(&termPort, "port", "", "Connect to this port instead of prompting")
		flags.IntVar(&termBaud, "baud", 0, "Baud rate for --port (default: serial.default_baud_rate)")
		flags.BoolVar(&termLast, "last", false, "Reconnect to the port used most recently")
		flags.StringVar(&pickerMode, "picker", pickerLocal, "Where the port picker runs (local, remote)")
		flags.StringVar(&listenAddr, "listen", net.JoinHostPort(server.DefaultHost, "0"), "Rendezvous address for --picker remote")
		flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
		flags.StringVar(&certPath, "cert", "", "TLS certificate for the rendezvous (serves wss://)")
		flags.StringVar(&keyPath, "key", "", "TLS private key for the rendezvous")
	}

	pickerCmd.Flags().StringVar(&windowURL, "window", "", "Window URL printed by 'beagle term --picker remote'")
	_ = pickerCmd.MarkFlagRequired("window")

	portsCmd.Flags().BoolVar(&showAll, "all", false, "Include ports hidden by serial.exclude_pattern")
}

// termCmd opens the terminal
var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Open the serial terminal",
	Long: `Open the serial terminal.

The terminal prompts for a port with the port picker, opens it and forwards
every keystroke to the device. When the device goes away or cannot be
opened, the picker is shown again. Closing the picker without choosing a
port leaves the terminal.

With --picker remote the picker is not drawn in this terminal. Instead the
terminal prints a 'beagle picker --window ...' command to run in another
terminal, which is useful when the device output must stay on screen.`,
	Example: `  # Prompt for a port
  beagle term

  # Connect straight to a USB adapter at 9600 baud
  beagle term --port /dev/ttyUSB0 --baud 9600

  # Connect to a ser2net bridge
  beagle term --port tcp://192.168.1.20:3001

  # Reconnect to the last port
  beagle term --last

  # Run the picker in another terminal
  beagle term --picker remote

  # Expose metrics and log to a file
  beagle term --metrics-addr 127.0.0.1:9464 --log-level debug --log-file beagle.log`,
	RunE: runTerm,
}

func runTerm(cmd *cobra.Command, args []string) error {
	if pickerMode != pickerLocal && pickerMode != pickerRemote {
		return fmt.Errorf("unknown picker mode %q (want %s or %s)", pickerMode, pickerLocal, pickerRemote)
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	defer logging.Sync()
	logger := logging.L()

	exclude, err := settings.ExcludeRegexp()
	if err != nil {
		return err
	}

	target, err := resolveTarget(settings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if addr := firstNonEmpty(metricsAddr, settings.Metrics.Addr); addr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, addr); err != nil {
				logger.Warn("Metrics endpoint failed", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}

	catalog := userCatalog()
	transport := buildTransport(settings, logger)
	loop := eventloop.New()
	con := console.New(logger)

	picker := surface.PickerOptions{
		Lister:    transport,
		Exclude:   exclude,
		Catalog:   catalog,
		BaudRates: settings.BaudRateChoices(),
		BaudRate:  settings.Serial.DefaultBaudRate,
	}

	var surfaces host.SurfaceFactory
	switch pickerMode {
	case pickerLocal:
		picker.ProgramOptions = []tea.ProgramOption{tea.WithoutSignalHandler()}
		surfaces = surface.NewLocalFactory(surface.LocalConfig{
			PickerOptions: picker,
			Loop:          loop,
			Keyboard:      con,
			Observer:      m,
			Logger:        logger,
		})
	case pickerRemote:
		srv, err := startRendezvous(logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		surfaces = surface.NewRemoteFactory(surface.RemoteConfig{
			Loop:   loop,
			Server: srv,
			Announce: func(url string) {
				con.Println(catalog.Get("PICKER_WAITING", "beagle picker --window "+url))
			},
			Logger: logger,
		})
	}

	exitCode := 0
	ctrl, err := host.New(host.Config{
		Loop:           loop,
		IO:             con,
		Surfaces:       surfaces,
		Transport:      transport,
		Grace:          settings.Handshake.GraceDelay,
		ReadBufferSize: settings.Serial.ReadBufferSize,
		Term:           os.Getenv("TERM"),
		Target:         target,
		Catalog:        catalog,
		Metrics:        m,
		Logger:         logger,
		OnConnected: func(port string, baud int) {
			rememberTarget(settings, port, baud, logger)
		},
		OnExit: func(code int) {
			exitCode = code
			loop.Stop()
		},
	})
	if err != nil {
		return err
	}

	con.OnExitKey(func() { loop.Post(func() { ctrl.Exit(0) }) })
	if err := con.Start(); err != nil {
		return fmt.Errorf("failed to prepare terminal: %w", err)
	}
	defer con.Close()

	go func() {
		<-ctx.Done()
		loop.Post(ctrl.Unload)
	}()

	loop.Post(func() { ctrl.Run(ctx) })
	_ = loop.Run(context.Background())

	_ = con.Close()
	fmt.Println()
	if exitCode != 0 {
		return fmt.Errorf("terminal exited with status %d", exitCode)
	}
	return nil
}

// resolveTarget turns --port, --baud and --last into a preselected target.
func resolveTarget(settings *config.Settings) (*host.Target, error) {
	baud := termBaud
	if baud == 0 {
		baud = settings.Serial.DefaultBaudRate
	}
	if baud < 0 {
		return nil, fmt.Errorf("invalid baud rate: %d", baud)
	}

	switch {
	case termPort != "":
		return &host.Target{Port: termPort, BaudRate: baud}, nil
	case termLast:
		if settings.Serial.LastPort == "" {
			return nil, errors.New("no port has been used yet")
		}
		if termBaud == 0 && settings.Serial.LastBaudRate > 0 {
			baud = settings.Serial.LastBaudRate
		}
		return &host.Target{Port: settings.Serial.LastPort, BaudRate: baud}, nil
	}
	return nil, nil
}

// rememberTarget records the port in the config file, but only when the
// user has one.
func rememberTarget(settings *config.Settings, port string, baud int, logger *zap.Logger) {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	settings.RememberTarget(port, baud)
	if err := settings.Save(path); err != nil {
		logger.Warn("Failed to remember port", zap.String("port", port), zap.Error(err))
	}
}

func startRendezvous(logger *zap.Logger) (*server.Server, error) {
	addr, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid --listen address %q: %w", listenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --listen port %q: %w", portStr, err)
	}

	srv, err := server.New(server.Config{
		Host:     addr,
		Port:     port,
		CertPath: certPath,
		KeyPath:  keyPath,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rendezvous server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return nil, err
	}
	return srv, nil
}

// buildTransport routes sim: ports to the simulator, tcp:// ports to
// network bridges and everything else to local serial devices.
func buildTransport(settings *config.Settings, logger *zap.Logger) *serial.MultiTransport {
	var routes []serial.Route

	if settings.Simulator.Enabled {
		sim := serial.NewSimulatorTransport(settings.Simulator.Shell, logger)
		routes = append(routes, serial.Route{Prefix: serial.SimulatorPrefix, Transport: sim})
	}

	var scanner serial.BridgeScanner
	if settings.Discovery.Enabled {
		s := discovery.NewScanner()
		s.Service = settings.Discovery.Service
		s.Timeout = settings.Discovery.Timeout
		scanner = s
	}
	routes = append(routes,
		serial.Route{Prefix: serial.NetworkPrefix, Transport: serial.NewNetworkTransport(scanner, logger)},
		serial.Route{Transport: serial.NewDeviceTransport(logger)},
	)

	return serial.NewMultiTransport(logger, routes...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// pickerCmd runs the picker for a remote terminal
var pickerCmd = &cobra.Command{
	Use:   "picker",
	Short: "Run the port picker for a terminal started with --picker remote",
	Long: `Run the port picker in this terminal on behalf of another one.

'beagle term --picker remote' prints the exact command to run, including
the window URL. The picker lists the ports visible from this machine and
sends the chosen port and baud rate back to the terminal.`,
	Example: `  beagle picker --window ws://127.0.0.1:41234/window`,
	RunE:    runPicker,
}

func runPicker(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	defer logging.Sync()
	logger := logging.L()

	exclude, err := settings.ExcludeRegexp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return surface.RunStandalone(ctx, surface.StandaloneConfig{
		PickerOptions: surface.PickerOptions{
			Lister:    buildTransport(settings, logger),
			Exclude:   exclude,
			Catalog:   userCatalog(),
			BaudRates: settings.BaudRateChoices(),
			BaudRate:  settings.Serial.DefaultBaudRate,
		},
		WindowURL: windowURL,
		Logger:    logger,
	})
}

// portsCmd lists ports without opening the terminal
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List the serial ports the picker would offer: local serial devices,
network serial bridges found over mDNS and, when enabled, the simulator.`,
	Example: `  # Ports shown in the picker
  beagle ports

  # Include Bluetooth and other excluded ports
  beagle ports --all`,
	RunE: runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	defer logging.Sync()

	exclude, err := settings.ExcludeRegexp()
	if err != nil {
		return err
	}
	if showAll {
		exclude = nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), settings.Discovery.Timeout+5*time.Second)
	defer cancel()

	ports, err := buildTransport(settings, logging.L()).ListPorts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ports: %w", err)
	}
	ports = serial.FilterPorts(ports, exclude)

	header := ui.Header{
		Title:   userCatalog().Get("PICKER_TITLE"),
		Command: cmd.CommandPath(),
		Params: []ui.Param{
			{Key: "Exclude", Value: excludeLabel(exclude)},
			{Key: "Discovery", Value: discoveryLabel(settings)},
			{Key: "Found", Value: strconv.Itoa(len(ports))},
		},
		Width: ui.TerminalWidth(int(os.Stdout.Fd())),
	}
	fmt.Println(header.Render())
	fmt.Println()

	if len(ports) == 0 {
		fmt.Println(userCatalog().Get("PICKER_NO_PORTS"))
		return nil
	}
	fmt.Print(ui.RenderPorts(ports))
	fmt.Println()
	fmt.Println(ui.RenderHint("Use 'beagle term --port <name>' to connect"))
	return nil
}

func excludeLabel(re *regexp.Regexp) string {
	if re == nil {
		return "none"
	}
	return re.String()
}

func discoveryLabel(settings *config.Settings) string {
	if !settings.Discovery.Enabled {
		return "disabled"
	}
	return settings.Discovery.Service
}
