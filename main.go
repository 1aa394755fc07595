package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"murmur/audio"
	"murmur/capture"
	"murmur/config"
	"murmur/history"
	"murmur/log"
	"murmur/recorder"
	"murmur/shutdown"
	"murmur/transcriber"
	"murmur/vad"
)

var version = "dev"

func main() {
	configFlag := flag.String("config", "", "YAML config file (default: OS config dir)")
	sourceFlag := flag.String("source", "", "Audio source: microphone or system-audio")
	modeFlag := flag.String("mode", "", "Capture mode: on-demand or always-on")
	deviceFlag := flag.String("device", "", "Use named input device")
	setupFlag := flag.Bool("setup", false, "Select input device interactively")
	listFlag := flag.Bool("list-devices", false, "List capture devices and exit")
	helperFlag := flag.String("helper", "", "System audio capture helper binary")
	sttFlag := flag.String("stt", "", "Speech-to-text command (reads WAV on stdin, prints transcript)")
	historyFlag := flag.String("history", "", "Directory to archive transcriptions")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("murmur", version)
		return
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, *sourceFlag, *modeFlag, *deviceFlag, *helperFlag, *historyFlag)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logDir, err := log.ResolveDir(firstNonEmpty(*logPathFlag, cfg.LogDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "initializing logs: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Infof("murmur %s starting", version)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	if *listFlag {
		if err := listDevices(ctx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if *setupFlag {
		dev, err := selectDevice(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.Device = dev.Name
	}

	events := consoleSink{}
	selector := capture.NewSelector(ctx, func(format string, args ...any) {
		events.Diagnostic(fmt.Sprintf(format, args...))
	})
	selector.SetMicrophone(cfg.Device)
	selector.SetHelperPath(cfg.HelperPath)

	var consumer transcriber.Consumer
	if *sttFlag != "" {
		consumer = &transcriber.ExecConsumer{Path: *sttFlag}
	} else {
		consumer = transcriber.Null{}
		events.Diagnostic("no -stt command configured; transcripts will be empty")
	}

	var sink transcriber.HistorySink
	if cfg.HistoryDir != "" {
		archive, err := history.NewArchive(cfg.HistoryDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		sink = archive
		log.Infof("archiving transcriptions to %s", archive.Dir())
	}

	orch := recorder.New(recorder.Options{
		Selector:    selector,
		Consumer:    consumer,
		History:     sink,
		Events:      events,
		Mode:        modeOf(cfg.Mode),
		Source:      sourceOf(cfg.Source),
		NewDetector: detectorFactory(cfg.VAD),
	})
	defer orch.Close()
	if err := orch.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "opening capture: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	shutdown.Notify(sig)
	go func() {
		<-sig
		orch.Close()
		log.Close()
		os.Exit(0)
	}()

	runConsole(orch, events)
}

// runConsole drives the orchestrator from stdin: one command per line.
func runConsole(orch *recorder.Orchestrator, events consoleSink) {
	fmt.Println("commands: start | stop | cancel | source <microphone|system-audio> | " +
		"mode <on-demand|always-on> | device <name> | quit")

	var nextSession uint64
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		var err error
		switch cmd {
		case "":
		case "start":
			nextSession++
			err = orch.TryStart(nextSession)
		case "stop":
			var segment []float32
			segment, err = orch.Stop(nextSession)
			if len(segment) > 0 {
				go orch.Submit(segment, orch.Source().String())
			}
		case "cancel":
			err = orch.Cancel()
		case "source":
			switch config.Source(arg) {
			case config.SourceMicrophone:
				err = orch.SetSource(capture.Microphone)
			case config.SourceSystemAudio:
				err = orch.SetSource(capture.SystemAudio)
			default:
				err = fmt.Errorf("unknown source %q", arg)
			}
		case "mode":
			switch config.Mode(arg) {
			case config.ModeOnDemand:
				err = orch.SetMode(recorder.OnDemand)
			case config.ModeAlwaysOn:
				err = orch.SetMode(recorder.AlwaysOn)
			default:
				err = fmt.Errorf("unknown mode %q", arg)
			}
		case "device":
			err = orch.UpdateSelectedDevice(arg)
		case "quit", "exit":
			return
		default:
			err = fmt.Errorf("unknown command %q", cmd)
		}
		if err != nil {
			events.Diagnostic(err.Error())
		}
	}
}

func loadConfig(flagPath string) (config.Config, error) {
	path := flagPath
	if path == "" {
		home, err := os.UserConfigDir()
		if err != nil {
			return config.Default(), nil
		}
		path = filepath.Join(home, "murmur", "config.yaml")
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, source, mode, device, helper, historyDir string) {
	if source != "" {
		cfg.Source = config.Source(source)
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if device != "" {
		cfg.Device = device
	}
	if helper != "" {
		cfg.HelperPath = helper
	}
	if historyDir != "" {
		cfg.HistoryDir = historyDir
	}
}

func sourceOf(s config.Source) capture.Source {
	if s == config.SourceSystemAudio {
		return capture.SystemAudio
	}
	return capture.Microphone
}

func modeOf(m config.Mode) recorder.Mode {
	if m == config.ModeAlwaysOn {
		return recorder.AlwaysOn
	}
	return recorder.OnDemand
}

func detectorFactory(v config.VADConfig) func() *vad.Smoothed {
	attack, release, preroll := v.Attack, v.Release, v.Preroll
	if attack == 0 {
		attack = vad.DefaultAttack
	}
	if release == 0 {
		release = vad.DefaultRelease
	}
	if preroll == 0 {
		preroll = vad.DefaultPreroll
	}
	return func() *vad.Smoothed {
		base, err := vad.NewWebRTC(2)
		if err != nil {
			log.Warnf("webrtc vad unavailable, using energy detector: %v", err)
			return vad.NewSmoothed(vad.NewEnergy(0), attack, release, preroll)
		}
		return vad.NewSmoothed(base, attack, release, preroll)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
