package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fltr/config"
	"fltr/logger"

	"github.com/spf13/afero"
)

const usage = `usage: fltr [flags] <command> [args]

commands:
  listen                      record and classify words from the microphone (default)
  classify <file>             classify a recorded word (.wav or raw .pcm)
  calibrate                   measure ambient noise and print a silence threshold
  serve                       run the HTTP API
  register <name> <gender>    register a speaker
  translate <word>            print the Baybayin rendering of a word
  heatmap <file> <out.png>    render the MFCC matrix of a recording

flags:
`

type options struct {
	configPath string
	logLevel   string
	pretty     bool
	model      string
	labels     string
	backend    string
	addr       string
	serve      bool
	calibrate  bool
	save       bool
	speaker    string
	skipSilent bool
}

func main() {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.BoolVar(&opts.pretty, "pretty", false, "human readable logs")
	flag.StringVar(&opts.model, "m", "", "model file (tflite model or whisper ggml model)")
	flag.StringVar(&opts.labels, "labels", "", "labels file, one word per line")
	flag.StringVar(&opts.backend, "backend", "", "classifier backend: tflite or whisper")
	flag.StringVar(&opts.addr, "addr", "", "HTTP listen address")
	flag.BoolVar(&opts.serve, "serve", false, "also run the HTTP API while listening")
	flag.BoolVar(&opts.calibrate, "calibrate", false, "calibrate the silence threshold before listening")
	flag.BoolVar(&opts.save, "save", false, "save recordings and MFCC dumps")
	flag.StringVar(&opts.speaker, "speaker", "", "speaker id to attach to results")
	flag.BoolVar(&opts.skipSilent, "skip-silent", false, "leave silent frames out of heatmaps")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := config.Load(afero.NewOsFs(), opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	opts.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	log := logger.Base()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := "listen"
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	app := &app{cfg: cfg, opts: opts, fs: afero.NewOsFs(), log: log}

	switch command {
	case "listen":
		err = app.listen(ctx)
	case "classify":
		err = app.classify(ctx, args)
	case "calibrate":
		err = app.calibrateThreshold(ctx)
	case "serve":
		err = app.serve(ctx)
	case "register":
		err = app.register(ctx, args)
	case "translate":
		err = app.translate(args)
	case "heatmap":
		err = app.heatmap(args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// apply lets explicit flags win over file and environment settings.
func (o options) apply(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.pretty {
		cfg.LogPretty = true
	}
	if o.model != "" {
		cfg.Model.Path = o.model
	}
	if o.labels != "" {
		cfg.Model.LabelsPath = o.labels
	}
	if o.backend != "" {
		cfg.Model.Backend = o.backend
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.calibrate {
		cfg.Audio.Calibrate = true
	}
	if o.save {
		cfg.Storage.SaveRecordings = true
		cfg.Storage.SaveMFCC = true
	}
}
