package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/tl-spam/app/lexfiles"
	"github.com/umputun/tl-spam/app/scan"
	"github.com/umputun/tl-spam/app/storage"
	"github.com/umputun/tl-spam/app/storage/engine"
	"github.com/umputun/tl-spam/app/verify"
	"github.com/umputun/tl-spam/app/webapi"
	"github.com/umputun/tl-spam/lib/lexicon"
	"github.com/umputun/tl-spam/lib/scorer"
	"github.com/umputun/tl-spam/lib/scorer/lua"
	"github.com/umputun/tl-spam/lib/spamcheck"
)

type options struct {
	Listen      string `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
	AuthPasswd  string `long:"auth-passwd" env:"AUTH_PASSWD" default:"" description:"basic auth password for user tl-spam, 'auto' to generate"`
	Threshold   int    `long:"threshold" env:"THRESHOLD" default:"50" description:"score to flag a post"`
	PaidBadge   string `long:"paid-badge" env:"PAID_BADGE" default:"blue" description:"badge treated as paid verification"`
	InstanceID  string `long:"instance-id" env:"INSTANCE_ID" default:"tl-spam" description:"instance id, separates records in shared db"`
	DataBaseURL string `long:"db" env:"DB" default:"tl-spam.db" description:"sqlite file or postgres url, empty to disable storage"`

	Session struct {
		TTL     time.Duration `long:"ttl" env:"TTL" default:"30m" description:"session expiration after last scan"`
		Max     int           `long:"max" env:"MAX" default:"1000" description:"max number of active sessions"`
		History int           `long:"history" env:"HISTORY" default:"100" description:"number of recent verdicts kept in memory"`
	} `group:"session" namespace:"session" env-namespace:"SESSION"`

	Files struct {
		Lexicon []string `long:"lexicon" env:"LEXICON" env-delim:"," description:"lexicon files"`
		Watch   bool     `long:"watch" env:"WATCH" description:"reload lexicon files on change"`
	} `group:"files" namespace:"files" env-namespace:"FILES"`

	Plugins struct {
		Enabled bool   `long:"enabled" env:"ENABLED" description:"enable lua plugin rules"`
		Dir     string `long:"dir" env:"DIR" default:"plugins" description:"directory with lua scripts"`
		Weight  int    `long:"weight" env:"WEIGHT" default:"10" description:"weight of a plugin rule without its own"`
		Watch   bool   `long:"watch" env:"WATCH" description:"reload lua scripts on change"`
	} `group:"plugins" namespace:"plugins" env-namespace:"PLUGINS"`

	Verify struct {
		Token   string        `long:"token" env:"TOKEN" description:"bearer token of the web client, lookup disabled if not set"`
		API     string        `long:"api" env:"API" default:"https://api.twitter.com/1.1" description:"v1 api url"`
		GraphQL string        `long:"graphql" env:"GRAPHQL" default:"https://twitter.com/i/api/graphql" description:"graphql api url"`
		Retries int           `long:"retries" env:"RETRIES" default:"3" description:"number of attempts"`
		Delay   time.Duration `long:"delay" env:"DELAY" default:"1s" description:"delay between attempts"`
		TTL     time.Duration `long:"ttl" env:"TTL" default:"1h" description:"ttl of cached results"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"http client timeout"`
	} `group:"verify" namespace:"verify" env-namespace:"VERIFY"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable spam rotated logs"`
		FileName   string `long:"file" env:"FILE"  default:"tl-spam.log" description:"location of spam log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("tl-spam %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); !ok || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Verify.Token, opts.AuthPasswd)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	matcher := lexicon.NewDefault()
	var reloader webapi.LexiconReloader
	if len(opts.Files.Lexicon) > 0 {
		lf, err := makeLexicon(ctx, opts, matcher)
		if err != nil {
			return fmt.Errorf("can't load lexicon, %w", err)
		}
		reloader = lf
	}

	sc := scorer.New(scorer.Config{PaidBadge: spamcheck.ParseBadge(opts.PaidBadge), Lexicon: matcher, Quiet: !opts.Dbg})

	if opts.Plugins.Enabled {
		stop, err := initLuaPlugins(sc, opts)
		if err != nil {
			return fmt.Errorf("can't init lua plugins, %w", err)
		}
		defer stop()
	}

	scanner := scan.New(sc, scan.Config{Threshold: opts.Threshold, SessionTTL: opts.Session.TTL,
		MaxSessions: opts.Session.Max, HistorySize: opts.Session.History})

	// make spam logger
	loggerWr, err := makeSpamLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make spam log writer, %w", err)
	}
	defer loggerWr.Close()
	if opts.Logger.Enabled {
		scanner.WithSpamLog(loggerWr)
	}

	var flagged webapi.FlaggedReader
	if opts.DataBaseURL != "" {
		db, err := engine.New(ctx, opts.DataBaseURL, opts.InstanceID)
		if err != nil {
			return fmt.Errorf("can't make db, %w", err)
		}
		defer db.Close()
		store, err := storage.NewFlaggedPosts(ctx, db)
		if err != nil {
			return fmt.Errorf("can't make flagged posts storage, %w", err)
		}
		scanner.WithStore(store)
		flagged = store
		log.Printf("[INFO] flagged posts stored in %s db, instance %q", db.Type(), opts.InstanceID)
	}

	var verifier webapi.Verifier
	if opts.Verify.Token != "" {
		verifier = verify.New(verify.Config{APIURL: opts.Verify.API, GraphQLURL: opts.Verify.GraphQL, Token: opts.Verify.Token,
			Retries: opts.Verify.Retries, RetryDelay: opts.Verify.Delay, CacheTTL: opts.Verify.TTL},
			&http.Client{Timeout: opts.Verify.Timeout})
		log.Printf("[INFO] verification lookup enabled")
	}

	authPasswd := opts.AuthPasswd
	if authPasswd == "auto" {
		if authPasswd, err = webapi.GenerateRandomPassword(20); err != nil {
			return fmt.Errorf("can't generate random password, %w", err)
		}
		log.Printf("[WARN] generated basic auth password for user tl-spam: %q", authPasswd)
	}

	srv := webapi.NewServer(webapi.Config{
		Version:    revision,
		ListenAddr: opts.Listen,
		Scanner:    scanner,
		Lexicon:    matcher,
		Reloader:   reloader,
		Flagged:    flagged,
		Verifier:   verifier,
		AuthPasswd: authPasswd,
		Dbg:        opts.Dbg,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("webapi server failed, %w", err)
	}
	return nil
}

// makeLexicon loads lexicon files into the matcher and starts watching them if enabled
func makeLexicon(ctx context.Context, opts options, matcher *lexicon.Matcher) (*lexfiles.Files, error) {
	lf := lexfiles.New(matcher, opts.Files.Lexicon...)
	if _, err := lf.Reload(); err != nil {
		return nil, err
	}
	if opts.Files.Watch {
		go func() {
			if err := lf.Watch(ctx); err != nil {
				log.Printf("[WARN] lexicon watcher failed, %v", err)
			}
		}()
	}
	return lf, nil
}

// initLuaPlugins loads lua scripts as plugin rules of the scorer, returns a function to release them
func initLuaPlugins(sc *scorer.Engine, opts options) (stop func(), err error) {
	checker := lua.NewChecker(opts.Plugins.Weight)
	if err := checker.LoadDirectory(opts.Plugins.Dir); err != nil {
		checker.Close()
		return nil, err
	}
	sc.WithPlugins(checker)
	log.Printf("[INFO] lua plugins enabled: %v", checker.Names())

	if !opts.Plugins.Watch {
		return checker.Close, nil
	}
	watcher, err := lua.NewWatcher(checker, opts.Plugins.Dir)
	if err != nil {
		checker.Close()
		return nil, err
	}
	if err := watcher.Start(); err != nil {
		checker.Close()
		return nil, err
	}
	return func() {
		watcher.Stop()
		checker.Close()
	}, nil
}

// makeSpamLogWriter creates spam log writer to keep reports about flagged posts
// it parses options and makes lumberjack logger with rotation
func makeSpamLogWriter(opts options) (accessLog io.WriteCloser, err error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	sizeParse := func(inp string) (uint64, error) {
		if inp == "" {
			return 0, errors.New("empty value")
		}
		for i, sfx := range []string{"k", "m", "g", "t"} {
			if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
				val, err := strconv.Atoi(inp[:len(inp)-1])
				if err != nil {
					return 0, fmt.Errorf("can't parse %s: %w", inp, err)
				}
				return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
			}
		}
		return strconv.ParseUint(inp, 10, 64)
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}

	maxSize /= 1048576

	log.Printf("[INFO] logger enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	nonEmpty := []string{}
	for _, s := range secrets {
		if s != "" && s != "auto" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
