// Command mwa-demo wires the MWA protocol core over a real websocket
// connection end to end, as a worked example of the core's intended usage.
// It is not part of the core: it exists to exercise the core's client and
// server halves against each other and against real transport and metrics
// dependencies the core itself never imports.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mwaprotocol/mwa-go/internal/logging"
	"github.com/mwaprotocol/mwa-go/pkg/mwa"
	"github.com/mwaprotocol/mwa-go/pkg/mwaclient"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
	"github.com/mwaprotocol/mwa-go/pkg/mwaserver"
	"github.com/mwaprotocol/mwa-go/transport/wsduplex"
)

func main() {
	app := &cli.App{
		Name:  "mwa-demo",
		Usage: "exercise the Mobile Wallet Adapter protocol core end to end",
		Commands: []*cli.Command{
			serveCommand(),
			authorizeCommand(),
			signCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a wallet endpoint that auto-approves every request",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := cfg.logger()
			metrics := mwarpc.NewMetrics()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())

			upgrader := websocket.Upgrader{}
			mux.HandleFunc("/mwa", func(w http.ResponseWriter, r *http.Request) {
				ws, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					log.Warn("upgrade failed", "err", err)
					return
				}
				conn := wsduplex.New(ws, log)
				ep := mwarpc.NewEndpoint(conn.Send, log).WithMetrics(metrics)
				mwaserver.New(ep, newAutoApproveHandlers(log), log)

				go func() {
					defer ep.Close()
					defer conn.Close()
					if err := conn.Serve(r.Context(), ep); err != nil {
						log.Info("connection ended", "err", err)
					}
				}()
			})

			log.Info("listening", "addr", cfg.ListenAddr, "metrics_addr", cfg.MetricsAddr)
			go func() {
				if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
					log.Error("metrics server exited", "err", err)
				}
			}()
			return http.ListenAndServe(cfg.ListenAddr, mux)
		},
	}
}

func dial(urlFlag string, log logging.Logger) (*mwaclient.Client, *mwarpc.RpcEndpoint, error) {
	ws, _, err := websocket.DefaultDialer.Dial(urlFlag, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", urlFlag, err)
	}
	conn := wsduplex.New(ws, log)
	ep := mwarpc.NewEndpoint(conn.Send, log)
	go conn.Serve(context.Background(), ep)
	return mwaclient.New(ep), ep, nil
}

func authorizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "authorize",
		Usage: "request authorization from a running mwa-demo serve instance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:8137/mwa"},
			&cli.StringSliceFlag{Name: "privileged-method", Value: cli.NewStringSlice(string(mwa.PrivilegedSignTransaction))},
		},
		Action: func(c *cli.Context) error {
			log := logging.Default()
			client, ep, err := dial(c.String("url"), log)
			if err != nil {
				return err
			}
			defer ep.Close()

			var privileged []mwa.PrivilegedMethod
			for _, m := range c.StringSlice("privileged-method") {
				privileged = append(privileged, mwa.PrivilegedMethod(m))
			}
			result, err := client.Authorize(context.Background(), &mwa.Identity{Name: "mwa-demo"}, privileged)
			if err != nil {
				return err
			}
			fmt.Println(result.String())
			return nil
		},
	}
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "request signatures for one or more hex-encoded payloads",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:8137/mwa"},
			&cli.StringFlag{Name: "auth-token", Required: true},
			&cli.StringSliceFlag{Name: "payload", Required: true, Usage: "hex-encoded payload bytes, may be repeated"},
		},
		Action: func(c *cli.Context) error {
			log := logging.Default()
			client, ep, err := dial(c.String("url"), log)
			if err != nil {
				return err
			}
			defer ep.Close()

			payloads, err := decodeHexPayloads(c.StringSlice("payload"))
			if err != nil {
				return err
			}
			signed, err := client.SignTransaction(context.Background(), c.String("auth-token"), payloads)
			if err != nil {
				return err
			}
			for _, s := range signed {
				fmt.Printf("%x\n", s)
			}
			return nil
		},
	}
}

func decodeHexPayloads(hexStrings []string) ([][]byte, error) {
	out := make([][]byte, len(hexStrings))
	for i, s := range hexStrings {
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
