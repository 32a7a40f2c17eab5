// X1-Cirrus: native program runtime harness.
//
// cirrus runs the bundled programs against a local accounts database, the
// way the on-chain runtime would invoke them: every instruction is
// serialized into a call buffer, executed, checked and committed. Calls can
// be captured to an archive and replayed later as regression fixtures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

var configPath = flag.String("config", "cirrus.yaml", "configuration file path")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, config Config, args []string) error
}

var commands = []command{
	{"derive", "derive a program address from seeds", runDerive},
	{"airdrop", "credit lamports to a system account", runAirdrop},
	{"hello", "run the hello program", runHello},
	{"hash", "hash the arguments with the digest program", runHash},
	{"counter", "drive the counter program", runCounter},
	{"accounts", "list stored accounts and the state hash", runAccounts},
	{"replay", "replay captured calls", runReplay},
	{"version", "print version and exit", runVersion},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: cirrus [-config file] <command> [flags] [args]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	logger := logrus.StandardLogger().WithField("type", "cirrus")

	config, err := loadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		os.Exit(1)
	}
	if err := configureLogger(config); err != nil {
		logger.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	name := flag.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, config, flag.Args()[1:]); err != nil {
			logger.WithError(err).WithField("command", name).Error("command failed")
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func runVersion(context.Context, Config, []string) error {
	fmt.Printf("X1-Cirrus %s (%s)\n", Version, GitCommit)
	return nil
}
