// Command tracklorenode runs a single tracklore Kademlia peer: it opens the
// keyword repository, binds the UDP transport, optionally bootstraps against
// a known peer, then serves the store/search control surface from stdin
// until interrupted.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tracklore/tracklore/config"
	"github.com/tracklore/tracklore/dht"
	"github.com/tracklore/tracklore/id"
	"github.com/tracklore/tracklore/repository"
	"github.com/tracklore/tracklore/transport"
)

var version = "dev"

var configFile string

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tracklorenode",
		Short: "A Kademlia-based peer for audio-track metadata and keyword search",
	}

	v := config.BindFlags(root.PersistentFlags())

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the peer and serve the interactive control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			opts, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return runPeer(opts)
		},
	}
	root.AddCommand(runCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("tracklorenode", version)
			return nil
		},
	}
	root.AddCommand(versionCmd)

	return root
}

func runPeer(opts config.Options) error {
	if level, err := logrus.ParseLevel(opts.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	instanceID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"component":   "cmd.tracklorenode",
		"instance_id": instanceID,
	})

	store, err := repository.Open(opts.KeywordRepositoryPath)
	if err != nil {
		return fmt.Errorf("opening keyword repository: %w", err)
	}

	tr, err := transport.NewUDPTransport(fmt.Sprintf("0.0.0.0:%d", opts.UDPPort))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("binding UDP transport: %w", err)
	}

	selfID, err := id.New()
	if err != nil {
		_ = tr.Close()
		_ = store.Close()
		return fmt.Errorf("generating node id: %w", err)
	}

	node := dht.NewNode(selfID, opts.KademliaEndpoint, tr, store, instanceID)
	node.Start()
	defer func() {
		if err := node.Stop(); err != nil {
			log.WithFields(logrus.Fields{"error": err.Error()}).Warn("error during shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"self_id":           selfID.String(),
		"kademlia_endpoint": opts.KademliaEndpoint,
	}).Info("peer started")

	if opts.BootstrapEndpoint != "" {
		if ok := node.Bootstrap(opts.BootstrapEndpoint); !ok {
			log.WithFields(logrus.Fields{"bootstrap_endpoint": opts.BootstrapEndpoint}).
				Warn("bootstrap peer did not respond; starting as the first node of this swarm")
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	go serveControlSurface(node, log)

	<-done
	log.Info("received interrupt, shutting down")
	return nil
}

// serveControlSurface implements the peer's store/search control surface
// as line-oriented stdin commands. Audio streaming (connect/flow control)
// is out of scope for this peer.
func serveControlSurface(node *dht.Node, log *logrus.Entry) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(`commands: store <title>|<artist>|<album>, search <query>, quit`)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		switch fields[0] {
		case "store":
			if len(fields) < 2 {
				fmt.Println("usage: store <title>|<artist>|<album>")
				continue
			}
			parts := strings.SplitN(fields[1], "|", 3)
			for len(parts) < 3 {
				parts = append(parts, "")
			}
			tag := repository.CompleteTag{
				Title:   parts[0],
				Artist:  parts[1],
				Album:   parts[2],
				TagHash: id.Derive([]byte(parts[0] + "|" + parts[1] + "|" + parts[2])),
			}
			node.Put(tag)
			fmt.Println("stored", tag.TagHash.String())
		case "search":
			if len(fields) < 2 {
				fmt.Println("usage: search <query>")
				continue
			}
			results := node.Get(fields[1])
			fmt.Printf("%d result(s)\n", len(results))
			for _, r := range results {
				fmt.Printf("  %s — %s (%s) [%d peer(s)]\n", r.Tag.Title, r.Tag.Artist, r.Tag.Album, len(r.URLs))
			}
		case "quit", "exit":
			log.Info("quit requested")
			_ = os.Stdin.Close()
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
